// Package camera defines the capture-device boundary. The device is a
// single exclusively-owned handle: only one logical reader may pull frames
// at a time, and the engine serializes access above this package.
package camera

import (
	"context"
	"image"
)

// Source is a camera handle. Open acquires the device (bounded by the
// context deadline), Grab pulls the next frame, Close releases the handle.
// Implementations are not required to be safe for concurrent Grab calls.
type Source interface {
	Open(ctx context.Context) error
	Grab() (image.Image, error)
	Close() error
}
