package qr

import (
	"fmt"
	"net/url"
	"path"

	qrcode "github.com/skip2/go-qrcode"
)

// Bounds on the rendered QR image size in pixels. The size is caller
// controlled, so PNG clamps it rather than letting one request allocate an
// arbitrarily large image.
const (
	MinSize     = 64
	DefaultSize = 256
	MaxSize     = 1024
)

// MarkURL builds the absolute URL a student scans to mark attendance for a
// session. The session id doubles as the final path segment so it stays
// human-typable.
func MarkURL(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || !u.IsAbs() {
		return "", fmt.Errorf("base url must be absolute: %q", baseURL)
	}
	u.Path = path.Join(u.Path, "attendance", "mark", sessionID)
	return u.String(), nil
}

// PNG renders value as a QR code PNG. The size is clamped to
// [MinSize, MaxSize]; zero or negative means DefaultSize.
func PNG(value string, size int) ([]byte, error) {
	switch {
	case size <= 0:
		size = DefaultSize
	case size < MinSize:
		size = MinSize
	case size > MaxSize:
		size = MaxSize
	}
	return qrcode.Encode(value, qrcode.Medium, size)
}
