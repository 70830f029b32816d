package capture

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Preview holds the most recent frame as a JPEG. Readers wait for newer
// frames without touching the camera.
type Preview struct {
	mu      sync.Mutex
	jpeg    []byte
	version uint64
	updated chan struct{}
}

// NewPreview creates an empty Preview.
func NewPreview() *Preview {
	return &Preview{updated: make(chan struct{})}
}

// Encode stores frame as the latest preview image.
func (p *Preview) Encode(frame *gocv.Mat) error {
	if frame == nil || frame.Empty() {
		return ErrReadFrame
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	p.Set(data)
	return nil
}

// Set stores an already encoded JPEG.
func (p *Preview) Set(jpeg []byte) {
	p.mu.Lock()
	p.jpeg = jpeg
	p.version++
	close(p.updated)
	p.updated = make(chan struct{})
	p.mu.Unlock()
}

// Latest returns the current image and its version. Version 0 means no image yet.
func (p *Preview) Latest() ([]byte, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jpeg, p.version
}

// Next blocks until an image newer than version is available or ctx is done.
func (p *Preview) Next(ctx context.Context, version uint64) ([]byte, uint64, error) {
	for {
		p.mu.Lock()
		if p.version > version {
			jpeg, v := p.jpeg, p.version
			p.mu.Unlock()
			return jpeg, v, nil
		}
		wait := p.updated
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, version, ctx.Err()
		case <-wait:
		}
	}
}
