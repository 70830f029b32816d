// Package embed turns camera frames into embedding vectors.
package embed

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrModelLoad is returned when the embedding network cannot be loaded.
var ErrModelLoad = errors.New("failed to load embedding model")

// ErrEmptyFrame is returned when asked to embed an empty frame.
var ErrEmptyFrame = errors.New("frame is empty")

// Extractor produces an embedding for a frame.
type Extractor interface {
	// Infer returns the embedding of frame. The caller owns the returned
	// Embedding and must Close it.
	Infer(frame *gocv.Mat) (*Embedding, error)

	// Close releases the underlying model.
	Close() error
}

// Embedding is a feature vector whose backing memory may be owned by a
// native resource. Values is only valid until Close.
type Embedding struct {
	values  []float32
	release func()
	once    sync.Once
}

// NewEmbedding wraps values. release, if non-nil, runs once on Close.
func NewEmbedding(values []float32, release func()) *Embedding {
	return &Embedding{values: values, release: release}
}

// Values returns the embedding vector.
func (e *Embedding) Values() []float32 {
	if e == nil {
		return nil
	}
	return e.values
}

// Close releases the backing resource. It is safe to call more than once.
func (e *Embedding) Close() error {
	if e == nil {
		return nil
	}
	e.once.Do(func() {
		if e.release != nil {
			e.release()
		}
		e.values = nil
	})
	return nil
}
