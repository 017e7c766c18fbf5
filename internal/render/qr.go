// Package render turns check-in payloads into scannable QR images.
package render

import (
	"fmt"
	"image/color"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/qr-checkin/internal/model"
)

// Renderer produces image bytes for a payload.
type Renderer interface {
	Render(payload string, hint color.Color) ([]byte, error)
}

// PNGRenderer renders PNG images at error-correction level High so a
// moderately damaged print still decodes.
type PNGRenderer struct {
	Size int // edge length in pixels
}

// NewPNGRenderer returns a renderer producing size×size images.  Sizes
// below 64 fall back to 256.
func NewPNGRenderer(size int) *PNGRenderer {
	if size < 64 {
		size = 256
	}
	return &PNGRenderer{Size: size}
}

func (r *PNGRenderer) Render(payload string, hint color.Color) ([]byte, error) {
	q, err := qrcode.New(payload, qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	if hint != nil {
		q.ForegroundColor = hint
	}
	q.BackgroundColor = color.White
	png, err := q.PNG(r.Size)
	if err != nil {
		return nil, fmt.Errorf("render png: %w", err)
	}
	return png, nil
}

// ColorFor picks a dark foreground per security level so staff can tell
// levels apart at a glance while keeping enough contrast to scan.
func ColorFor(level model.SecurityLevel) color.Color {
	switch level {
	case model.SecurityStandard:
		return color.RGBA{R: 0x0b, G: 0x3d, B: 0x91, A: 0xff}
	case model.SecurityHigh:
		return color.RGBA{R: 0x8a, G: 0x4b, B: 0x00, A: 0xff}
	case model.SecurityMaximum:
		return color.RGBA{R: 0x8b, G: 0x00, B: 0x00, A: 0xff}
	default:
		return color.Black
	}
}
