package embed

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockExtractor is a test implementation of the Extractor interface.
// It returns a fixed vector and counts how many embeddings are acquired and released.
type MockExtractor struct {
	mu       sync.Mutex
	vector   []float32
	err      error
	acquired int
	released int
}

// NewMockExtractor creates a MockExtractor returning vector.
func NewMockExtractor(vector []float32) *MockExtractor {
	return &MockExtractor{vector: vector}
}

// SetVector sets the vector returned by subsequent calls to Infer.
func (m *MockExtractor) SetVector(vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vector = vector
}

// SetError sets the error returned by Infer.
func (m *MockExtractor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Infer returns an embedding of the configured vector. The frame is ignored.
func (m *MockExtractor) Infer(frame *gocv.Mat) (*Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	m.acquired++
	values := make([]float32, len(m.vector))
	copy(values, m.vector)

	return NewEmbedding(values, func() {
		m.mu.Lock()
		m.released++
		m.mu.Unlock()
	}), nil
}

// Acquired returns the number of embeddings handed out.
func (m *MockExtractor) Acquired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired
}

// Released returns the number of embeddings closed.
func (m *MockExtractor) Released() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Close is a no-op for the mock extractor.
func (m *MockExtractor) Close() error {
	return nil
}
