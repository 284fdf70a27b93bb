package source

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// Source is an ordered collection of page-like images: the pages of a PDF or
// the image files of a directory.
type Source interface {
	PageCount() int
	GetPageDimensions(index int) (width, height float64, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	// Ref returns the visual reference the Loader resolves back to page index.
	Ref(index int) string
	Close() error
}

type FitzPDFSource struct {
	doc  *fitz.Document
	path string
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzPDFSource{doc: doc, path: path}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) GetPageDimensions(index int) (float64, float64, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// RenderPage opens a private document handle so pages can be rendered from
// several goroutines at once.
func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	return renderPDFPage(f.path, index, dpi)
}

func (f *FitzPDFSource) Ref(index int) string {
	return PDFRef(f.path, index)
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}

// PDFRef builds the visual reference of one PDF page (0-based index).
func PDFRef(path string, index int) string {
	return fmt.Sprintf("%s%s#%d", pdfScheme, path, index)
}

func renderPDFPage(path string, index, dpi int) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	if index < 0 || index >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (%d pages)", index, doc.NumPage())
	}
	return doc.ImageDPI(index, float64(dpi))
}
