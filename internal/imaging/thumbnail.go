// Package imaging renders derived images with libvips.
package imaging

import (
	"fmt"

	"github.com/h2non/bimg"
)

const (
	ThumbnailWidth  = 150
	ThumbnailHeight = 150
)

// Thumbnailer turns an encoded image into a thumbnail of the same format.
type Thumbnailer interface {
	Thumbnail(src []byte) ([]byte, error)
}

// Vips crops images to a fixed size with bimg.
type Vips struct {
	Width  int
	Height int
}

func NewVips() *Vips {
	return &Vips{Width: ThumbnailWidth, Height: ThumbnailHeight}
}

func (v *Vips) Thumbnail(src []byte) ([]byte, error) {
	out, err := bimg.NewImage(src).Process(bimg.Options{
		Width:   v.Width,
		Height:  v.Height,
		Crop:    true,
		Gravity: bimg.GravityCentre,
	})
	if err != nil {
		return nil, fmt.Errorf("create thumbnail: %w", err)
	}
	return out, nil
}
