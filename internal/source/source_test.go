package source

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ivlev/pdf2lecture/internal/apperr"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestImageSourceAndListImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 4, 3)
	writePNG(t, filepath.Join(dir, "a.png"), 8, 6)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644)

	refs, err := ListImages(dir)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	if len(refs) != 2 || filepath.Base(refs[0]) != "a.png" || filepath.Base(refs[1]) != "b.png" {
		t.Fatalf("unexpected refs: %v", refs)
	}

	src, err := NewImageSource(dir)
	if err != nil {
		t.Fatal(err)
	}
	w, h, err := src.GetPageDimensions(0)
	if err != nil || w != 8 || h != 6 {
		t.Errorf("GetPageDimensions = %v x %v, %v", w, h, err)
	}
}

func TestLoaderFileAndHTTP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.png")
	writePNG(t, path, 5, 5)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/img.png" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}))
	defer srv.Close()

	l := NewLoader()
	ctx := context.Background()

	for _, ref := range []string{path, "file://" + path, srv.URL + "/img.png"} {
		img, err := l.Load(ctx, ref)
		if err != nil {
			t.Errorf("Load(%q) failed: %v", ref, err)
			continue
		}
		if img.Bounds().Dx() != 5 {
			t.Errorf("Load(%q) width = %d", ref, img.Bounds().Dx())
		}
	}

	for _, ref := range []string{"", filepath.Join(dir, "missing.png"), srv.URL + "/missing.png", "pdf://x.pdf#bad"} {
		if _, err := l.Load(ctx, ref); !apperr.IsRecoverable(err) {
			t.Errorf("Load(%q) error = %v, want MediaError", ref, err)
		}
	}
}

func TestParsePDFRef(t *testing.T) {
	tests := []struct {
		ref   string
		path  string
		index int
		err   bool
	}{
		{PDFRef("/docs/a#b.pdf", 3), "/docs/a#b.pdf", 3, false},
		{"pdf:///docs/a.pdf", "/docs/a.pdf", 0, false},
		{"pdf:///docs/a.pdf#-1", "", 0, true},
	}
	for _, tt := range tests {
		path, index, err := ParsePDFRef(tt.ref)
		if (err != nil) != tt.err {
			t.Errorf("ParsePDFRef(%q) err = %v", tt.ref, err)
			continue
		}
		if !tt.err && (path != tt.path || index != tt.index) {
			t.Errorf("ParsePDFRef(%q) = %q, %d", tt.ref, path, index)
		}
	}
}
