// Package annotate draws detection boxes and labels onto a copy of the
// uploaded image and encodes the result for embedding in a JSON payload.
package annotate

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"

	"github.com/oceanwatch/debris-detection-service/models"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var boxColor = color.NRGBA{R: 0, G: 255, B: 0, A: 255}

const (
	lineWidth   = 2.0
	labelSize   = 14.0
	labelOffset = 10.0
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Overlay returns a copy of img with every detection drawn as a rectangle
// plus a "<class>: <confidence>" label above its top-left corner. The input
// image is never modified. With no detections the copy is returned untouched.
func Overlay(img image.Image, dets []models.Detection) image.Image {
	base := imaging.Clone(img)
	if len(dets) == 0 {
		return base
	}

	dc := gg.NewContextForImage(base)
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: labelSize}))

	for _, det := range dets {
		x1 := float64(int(det.BBox[0]))
		y1 := float64(int(det.BBox[1]))
		x2 := float64(int(det.BBox[2]))
		y2 := float64(int(det.BBox[3]))

		drawRectangleEmpty(dc, x1, y1, x2, y2)

		label := fmt.Sprintf("%s: %.2f", det.Class, det.Confidence)
		dc.SetColor(boxColor)
		dc.DrawString(label, x1, y1-labelOffset)
	}

	return dc.Image()
}

// drawRectangleEmpty strokes the four edges of a box without filling it.
func drawRectangleEmpty(dc *gg.Context, x1, y1, x2, y2 float64) {
	dc.SetColor(boxColor)

	dc.DrawLine(x1, y1, x2, y1)
	dc.SetLineWidth(lineWidth)
	dc.Stroke()

	dc.DrawLine(x1, y1, x1, y2)
	dc.SetLineWidth(lineWidth)
	dc.Stroke()

	dc.DrawLine(x2, y1, x2, y2)
	dc.SetLineWidth(lineWidth)
	dc.Stroke()

	dc.DrawLine(x1, y2, x2, y2)
	dc.SetLineWidth(lineWidth)
	dc.Stroke()
}

// EncodeDataURI re-encodes img as JPEG and wraps it in a data URI suitable
// for direct embedding in a web page or JSON response.
func EncodeDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return "", fmt.Errorf("encode annotated image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
