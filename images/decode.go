package images

import (
	"bufio"
	"image"
	_ "image/jpeg" // register JPEG decoding
	_ "image/png"  // register PNG decoding
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
)

func init() {
	image.RegisterFormat(string(FormatWebP), "RIFF????WEBPVP8", webp.Decode, webp.DecodeConfig)
}

// Decode decodes a JPEG, PNG or WebP stream.
//
// Arguments:
//   - r: The encoded image.
//
// Returns:
//   - image.Image: The decoded image.
//   - ImageFormat: The detected format.
//   - error: An error if the data is not a supported image.
func Decode(r io.Reader) (image.Image, ImageFormat, error) {
	img, format, err := image.Decode(bufio.NewReader(r))
	if err != nil {
		return nil, "", errors.Wrap(err, "image decoding failed")
	}
	if b := img.Bounds(); b.Empty() {
		return nil, "", errors.Errorf("decoded image has empty bounds %v", b)
	}
	return img, ImageFormat(format), nil
}

// Load reads and decodes the image file at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, errors.Wrapf(err, "open image %s", path)
	}
	defer f.Close()

	img, _, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load image %s", path)
	}
	return img, nil
}

// Files lists the supported image files in dir, sorted by name.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []string: The image paths.
//   - error: Error if the directory cannot be read.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read image directory %s", dir)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := FormatFromPath(entry.Name()); ok {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
