package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

const (
	MaxImageSize = 10 * 1024 * 1024 // 10MB
	MaxSide      = 1600
	JPEGQuality  = 92
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Image is a decoded-and-re-encoded capture ready for the face providers.
type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Normalize validates a raw upload, applies EXIF orientation, shrinks it to fit
// MaxSide and re-encodes it. PNG stays PNG; JPEG and WebP become JPEG.
func Normalize(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, domain.ErrInvalidImage.WithError(errors.New("empty image"))
	}
	if len(data) > MaxImageSize {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("image exceeds %d bytes", MaxImageSize))
	}

	contentType := http.DetectContentType(data)
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported content type %q", contentType))
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("decode image: %w", err))
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("invalid dimensions %dx%d", bounds.Dx(), bounds.Dy()))
	}
	if bounds.Dx() > MaxSide || bounds.Dy() > MaxSide {
		img = imaging.Fit(img, MaxSide, MaxSide, imaging.Lanczos)
	}

	format, outType := imaging.JPEG, "image/jpeg"
	if contentType == "image/png" {
		format, outType = imaging.PNG, "image/png"
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	out := img.Bounds()
	return &Image{
		Data:        buf.Bytes(),
		ContentType: outType,
		Width:       out.Dx(),
		Height:      out.Dy(),
	}, nil
}
