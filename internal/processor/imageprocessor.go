// imageprocessor.go - Image preprocessing for better OCR and vision accuracy

package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
)

// PreprocessVariant is one preprocessed rendition of a label photo. The OCR
// engine runs over every variant and the texts are concatenated, since
// different treatments win on different label finishes (matte print vs
// embossed foil vs inkjet date stamps).
type PreprocessVariant struct {
	Name string
	Data []byte
	MIME string
}

const defaultMaxDimension = 2000

// decodeAndResize decodes raw image bytes and caps the longest side.
func decodeAndResize(data []byte, maxDimension int) (image.Image, error) {
	if maxDimension <= 0 {
		maxDimension = defaultMaxDimension
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxDimension || bounds.Dy() > maxDimension {
		if bounds.Dx() > bounds.Dy() {
			img = imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
		}
	}
	return img, nil
}

// PreprocessForOCR produces the rendition set for the text-recognition
// engine: an enhanced grayscale pass, a binary-threshold pass for printed
// dates, and an aggressive low-threshold pass for light text on light
// backgrounds.
func PreprocessForOCR(data []byte, maxDimension int) ([]PreprocessVariant, error) {
	img, err := decodeAndResize(data, maxDimension)
	if err != nil {
		return nil, err
	}

	variants := []struct {
		name    string
		process func(image.Image) image.Image
	}{
		{"enhanced", enhanceForText},
		{"threshold", func(in image.Image) image.Image { return binarize(in, 1.8, 143) }},
		{"aggressive", func(in image.Image) image.Image { return binarize(in, 2.0, 115) }},
	}

	out := make([]PreprocessVariant, 0, len(variants))
	for _, v := range variants {
		var buf bytes.Buffer
		if err := png.Encode(&buf, v.process(img)); err != nil {
			return nil, fmt.Errorf("failed to encode %s variant: %w", v.name, err)
		}
		out = append(out, PreprocessVariant{Name: v.name, Data: buf.Bytes(), MIME: "image/png"})
	}
	return out, nil
}

// PreprocessForVision produces a single balanced rendition for the vision
// model. Models handle color and noise well, so this only normalizes
// orientation, size and sharpness.
func PreprocessForVision(data []byte, maxDimension int) ([]byte, string, error) {
	img, err := decodeAndResize(data, maxDimension)
	if err != nil {
		return nil, "", err
	}

	img = imaging.Sharpen(img, 1.5)
	img = imaging.AdjustContrast(img, 15)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, "", fmt.Errorf("failed to encode processed image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// enhanceForText is the standard OCR treatment: sharpen, boost contrast,
// grayscale, then a second contrast pass plus gamma for thin digit strokes.
func enhanceForText(img image.Image) image.Image {
	result := imaging.Sharpen(img, 2.5)
	result = imaging.AdjustContrast(result, 35)
	result = imaging.Grayscale(result)
	result = imaging.AdjustContrast(result, 25)
	result = imaging.AdjustGamma(result, 1.1)
	return result
}

// binarize converts to grayscale, scales contrast, then snaps every pixel to
// black or white around the cutoff (0-255).
func binarize(img image.Image, contrastGain float64, cutoff uint8) image.Image {
	result := imaging.Grayscale(img)
	result = imaging.AdjustContrast(result, (contrastGain-1)*50)
	return imaging.AdjustFunc(result, func(c color.NRGBA) color.NRGBA {
		v := uint8(0)
		if c.R >= cutoff {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}
