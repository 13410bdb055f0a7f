//go:build gocv

package images

import (
	"image"

	"gocv.io/x/gocv"
)

func init() {
	RegisterResampler("opencv", OpenCV{})
}

// OpenCV resamples through OpenCV's linear interpolation.
//
// Only compiled with the gocv build tag, since it links against OpenCV.
type OpenCV struct{}

// Resample converts img to a Mat, resizes it and converts it back.
//
// Falls back to Bilinear when OpenCV cannot convert the image.
func (OpenCV) Resample(img image.Image, width, height int) image.Image {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return Bilinear.Resample(img, width, height)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Point{X: width, Y: height}, 0, 0, gocv.InterpolationLinear)

	out, err := dst.ToImage()
	if err != nil {
		return Bilinear.Resample(img, width, height)
	}
	return out
}
