package qr

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkURL(t *testing.T) {
	u, err := MarkURL("https://rollcall.test", "S1")
	require.NoError(t, err)
	assert.Equal(t, "https://rollcall.test/attendance/mark/S1", u)

	u, err = MarkURL("https://rollcall.test/app/", "S1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u, "/app/attendance/mark/S1"))
}

func TestMarkURLRejectsRelativeBase(t *testing.T) {
	_, err := MarkURL("/just/a/path", "S1")
	assert.Error(t, err)
}

func TestPNG(t *testing.T) {
	data, err := PNG("https://rollcall.test/attendance/mark/S1", 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())
}

func TestPNGClampsSize(t *testing.T) {
	tests := []struct {
		name string
		size int
		want int
	}{
		{name: "huge", size: 1_000_000_000, want: MaxSize},
		{name: "above max", size: MaxSize + 1, want: MaxSize},
		{name: "tiny", size: 1, want: MinSize},
		{name: "in range", size: 512, want: 512},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := PNG("https://rollcall.test/attendance/mark/S1", tt.size)
			require.NoError(t, err)

			img, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, img.Bounds().Dx())
		})
	}
}
