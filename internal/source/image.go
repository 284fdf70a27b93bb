package source

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".bmp": true,
}

// IsImagePath reports whether path has a decodable image extension.
func IsImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

type ImageSource struct {
	paths []string
}

func NewImageSource(path string) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var paths []string
	if fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() && IsImagePath(entry.Name()) {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}

	return &ImageSource{paths: paths}, nil
}

func (s *ImageSource) PageCount() int {
	return len(s.paths)
}

func (s *ImageSource) GetPageDimensions(index int) (float64, float64, error) {
	f, err := os.Open(s.paths[index])
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	img, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return float64(img.Width), float64(img.Height), nil
}

func (s *ImageSource) RenderPage(index int, dpi int) (image.Image, error) {
	return decodeFile(s.paths[index])
}

func (s *ImageSource) Ref(index int) string {
	return s.paths[index]
}

func (s *ImageSource) Close() error {
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
