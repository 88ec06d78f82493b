// Package vision provides still-image snapshots for visual context
// streaming. Snapshots ride the live session at a low fixed cadence,
// independent of the audio path.
package vision

import (
	"context"
	"errors"
	"io"
)

// ErrCameraUnavailable is returned when the capture device cannot be
// opened or read.
var ErrCameraUnavailable = errors.New("vision: camera unavailable")

// Snapshotter produces encoded still images on demand.
type Snapshotter interface {
	// Snapshot grabs one frame and returns the encoded bytes and
	// their MIME type.
	Snapshot(ctx context.Context) (data []byte, mimeType string, err error)

	// Close releases the underlying device.
	io.Closer
}
