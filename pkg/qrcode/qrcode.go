// Package qrcode renders permit verification links as QR images.
package qrcode

import (
	"encoding/base64"
	"fmt"

	qr "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// Renderer encodes URLs into PNG QR codes.
type Renderer struct {
	size int
}

// NewRenderer returns a renderer producing size x size images.
func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = defaultSize
	}
	return &Renderer{size: size}
}

// PNG returns the raw PNG bytes for content.
func (r *Renderer) PNG(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr content required")
	}
	png, err := qr.Encode(content, qr.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// Encode returns content as a data:image/png;base64 URI.
func (r *Renderer) Encode(content string) (string, error) {
	png, err := r.PNG(content)
	if err != nil {
		return "", err
	}
	return DataURI(png), nil
}

// DataURI wraps PNG bytes in a data URI.
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
