package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// Camera captures JPEG snapshots from a webcam via OpenCV.
type Camera struct {
	logger *slog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	closed bool
}

// OpenCamera opens the capture device with the given id (0 = default).
func OpenCamera(deviceID int, logger *slog.Logger) (*Camera, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cap, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", ErrCameraUnavailable, deviceID, err)
	}

	logger.Info("camera opened", "device", deviceID)

	return &Camera{
		logger: logger.With("component", "vision"),
		cap:    cap,
	}, nil
}

// Snapshot grabs one frame and encodes it as JPEG.
func (c *Camera) Snapshot(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, "", ErrCameraUnavailable
	}

	img := gocv.NewMat()
	defer img.Close()

	if ok := c.cap.Read(&img); !ok || img.Empty() {
		return nil, "", fmt.Errorf("%w: read frame", ErrCameraUnavailable)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	return data, "image/jpeg", nil
}

// Close releases the capture device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.cap.Close()
}

// Ensure Camera implements Snapshotter.
var _ Snapshotter = (*Camera)(nil)
