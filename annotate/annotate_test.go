package annotate

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"

	"github.com/oceanwatch/debris-detection-service/models"

	"github.com/disintegration/imaging"
	"go.viam.com/test"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestOverlayNoDetections(t *testing.T) {
	img := testImage(64, 48)

	out := Overlay(img, nil)
	uri, err := EncodeDataURI(out)
	test.That(t, err, test.ShouldBeNil)

	plain, err := EncodeDataURI(imaging.Clone(img))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, uri, test.ShouldEqual, plain)
}

func TestOverlayDrawsBoxes(t *testing.T) {
	img := testImage(64, 48)
	dets := []models.Detection{
		{BBox: [4]float64{10.7, 12.2, 40.9, 30.1}, Confidence: 0.87, Class: "plastic"},
	}

	out := Overlay(img, dets)
	test.That(t, out.Bounds().Dx(), test.ShouldEqual, 64)
	test.That(t, out.Bounds().Dy(), test.ShouldEqual, 48)

	// The top edge must actually be drawn.
	r, g, b, _ := out.At(25, 12).RGBA()
	test.That(t, uint8(g>>8), test.ShouldEqual, uint8(255))
	test.That(t, uint8(r>>8), test.ShouldEqual, uint8(0))
	test.That(t, uint8(b>>8), test.ShouldEqual, uint8(0))

	// The source image is untouched.
	src := img.NRGBAAt(10, 12)
	test.That(t, src, test.ShouldResemble, color.NRGBA{R: 10, G: 12, B: 128, A: 255})
}

func TestEncodeDataURIRoundTrip(t *testing.T) {
	img := testImage(80, 60)

	uri, err := EncodeDataURI(Overlay(img, []models.Detection{
		{BBox: [4]float64{5, 5, 20, 20}, Confidence: 0.61, Class: "net"},
	}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"), test.ShouldBeTrue)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/jpeg;base64,"))
	test.That(t, err, test.ShouldBeNil)

	decoded, err := jpeg.Decode(bytes.NewReader(raw))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, decoded.Bounds().Dx(), test.ShouldEqual, 80)
	test.That(t, decoded.Bounds().Dy(), test.ShouldEqual, 60)
}
