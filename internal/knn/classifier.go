// Package knn provides a k-nearest-neighbor classifier over embedding vectors.
//
// Examples are L2-normalized when added, so the similarity between two
// vectors is their cosine similarity. A prediction takes the k most similar
// examples and lets each vote for its label; the confidence of a label is its
// share of the k votes.
package knn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Classifier errors.
var (
	ErrNoExamples        = errors.New("classifier has no examples")
	ErrEmptyVector       = errors.New("embedding vector is empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Prediction is the result of classifying one vector.
type Prediction struct {
	Label       int             // Winning label
	Confidences map[int]float64 // Vote share per known label, 0-1
}

// Confidence returns the vote share of the winning label.
func (p Prediction) Confidence() float64 {
	return p.Confidences[p.Label]
}

type example struct {
	label  int
	vector []float32
}

// Classifier stores labeled examples and classifies vectors by majority vote
// among the nearest ones. It is safe for concurrent use.
type Classifier struct {
	mu       sync.RWMutex
	examples []example
	counts   map[int]int
	dim      int
}

// New creates an empty Classifier.
func New() *Classifier {
	return &Classifier{
		counts: make(map[int]int),
	}
}

// AddExample stores a copy of vec under label. All vectors must share the
// dimension of the first one added.
func (c *Classifier) AddExample(vec []float32, label int) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dim != 0 && len(vec) != c.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.dim)
	}
	c.dim = len(vec)

	c.examples = append(c.examples, example{label: label, vector: normalize(vec)})
	c.counts[label]++
	return nil
}

// Predict classifies vec against the stored examples using the k nearest.
// k is clipped to the number of stored examples.
func (c *Classifier) Predict(vec []float32, k int) (Prediction, error) {
	if len(vec) == 0 {
		return Prediction{}, ErrEmptyVector
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.examples) == 0 {
		return Prediction{}, ErrNoExamples
	}
	if len(vec) != c.dim {
		return Prediction{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.dim)
	}

	if k <= 0 || k > len(c.examples) {
		k = len(c.examples)
	}

	query := normalize(vec)

	type scored struct {
		label int
		sim   float64
	}
	sims := make([]scored, len(c.examples))
	for i, ex := range c.examples {
		sims[i] = scored{label: ex.label, sim: dot(query, ex.vector)}
	}

	// Stable so that equally similar examples keep insertion order.
	sort.SliceStable(sims, func(i, j int) bool {
		return sims[i].sim > sims[j].sim
	})

	votes := make(map[int]int, len(c.counts))
	for _, s := range sims[:k] {
		votes[s.label]++
	}

	pred := Prediction{
		Label:       -1,
		Confidences: make(map[int]float64, len(c.counts)),
	}
	best := -1
	for label := range c.counts {
		n := votes[label]
		pred.Confidences[label] = float64(n) / float64(k)
		if n > best || (n == best && label < pred.Label) {
			best = n
			pred.Label = label
		}
	}

	return pred, nil
}

// ClearAllClasses discards every stored example.
func (c *Classifier) ClearAllClasses() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.examples = nil
	c.counts = make(map[int]int)
	c.dim = 0
}

// ClearClass discards the examples stored under label.
func (c *Classifier) ClearClass(label int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.examples[:0]
	for _, ex := range c.examples {
		if ex.label != label {
			kept = append(kept, ex)
		}
	}
	c.examples = kept
	delete(c.counts, label)
	if len(c.examples) == 0 {
		c.dim = 0
	}
}

// NumClasses returns the number of labels with at least one example.
func (c *Classifier) NumClasses() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.counts)
}

// ExampleCount returns the number of examples stored under label.
func (c *Classifier) ExampleCount(label int) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[label]
}

// Len returns the total number of stored examples.
func (c *Classifier) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.examples)
}

// normalize returns a unit-length copy of v. A zero vector is copied as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
