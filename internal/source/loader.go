package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ivlev/pdf2lecture/internal/apperr"
)

const pdfScheme = "pdf://"

// Loader resolves visual references to decoded images. Supported forms:
//
//	/path/to/image.png, file:///path/to/image.png
//	pdf:///path/to/doc.pdf#3   (0-based page index)
//	http(s)://host/image.webp
type Loader struct {
	Client   *http.Client
	DPI      int
	MaxBytes int64
}

func NewLoader() *Loader {
	return &Loader{
		Client:   &http.Client{Timeout: 15 * time.Second},
		DPI:      150,
		MaxBytes: 32 << 20,
	}
}

// Load decodes ref. Every failure is an apperr.MediaError so callers can
// degrade to a placeholder.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	img, err := l.load(ctx, ref)
	if err != nil {
		return nil, apperr.Media("load", ref, err)
	}
	return img, nil
}

func (l *Loader) load(ctx context.Context, ref string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case ref == "":
		return nil, fmt.Errorf("empty reference")
	case strings.HasPrefix(ref, pdfScheme):
		path, index, err := ParsePDFRef(ref)
		if err != nil {
			return nil, err
		}
		return renderPDFPage(path, index, l.dpi())
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetch(ctx, ref)
	default:
		return decodeFile(strings.TrimPrefix(ref, "file://"))
	}
}

func (l *Loader) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if l.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, l.MaxBytes)
	}
	img, _, err := image.Decode(body)
	return img, err
}

func (l *Loader) dpi() int {
	if l.DPI <= 0 {
		return 150
	}
	return l.DPI
}

// ParsePDFRef splits a pdf:// reference into file path and page index.
func ParsePDFRef(ref string) (string, int, error) {
	rest := strings.TrimPrefix(ref, pdfScheme)
	hash := strings.LastIndex(rest, "#")
	if hash < 0 {
		return rest, 0, nil
	}
	index, err := strconv.Atoi(rest[hash+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("bad page index in %q", ref)
	}
	return rest[:hash], index, nil
}

// ListImages returns visual references for every page of a PDF or every
// image of a directory, in order.
func ListImages(path string) ([]string, error) {
	var src Source
	var err error
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		src, err = NewFitzPDFSource(path)
	} else {
		src, err = NewImageSource(path)
	}
	if err != nil {
		return nil, err
	}
	defer src.Close()

	refs := make([]string, src.PageCount())
	for i := range refs {
		refs[i] = src.Ref(i)
	}
	return refs, nil
}
