package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Stitch places two images side by side, scaling each to the taller height
// while keeping its aspect ratio, and returns the result as JPEG.
func Stitch(left, right []byte) ([]byte, error) {
	leftImg, err := decodeImage(left)
	if err != nil {
		return nil, fmt.Errorf("decoding first image: %w", err)
	}
	rightImg, err := decodeImage(right)
	if err != nil {
		return nil, fmt.Errorf("decoding second image: %w", err)
	}

	height := max(leftImg.Bounds().Dy(), rightImg.Bounds().Dy())
	if height == 0 {
		return nil, fmt.Errorf("images have no height")
	}

	leftW := scaledWidth(leftImg.Bounds(), height)
	rightW := scaledWidth(rightImg.Bounds(), height)

	canvas := image.NewRGBA(image.Rect(0, 0, leftW+rightW, height))
	draw.CatmullRom.Scale(canvas, image.Rect(0, 0, leftW, height), leftImg, leftImg.Bounds(), draw.Src, nil)
	draw.CatmullRom.Scale(canvas, image.Rect(leftW, 0, leftW+rightW, height), rightImg, rightImg.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding stitched image: %w", err)
	}
	return buf.Bytes(), nil
}

func scaledWidth(b image.Rectangle, height int) int {
	if b.Dy() == 0 {
		return 0
	}
	return b.Dx() * height / b.Dy()
}
