package knn

import (
	"errors"
	"math"
	"testing"
)

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestClassifier_Predict(t *testing.T) {
	c := New()

	// Three well separated clusters.
	mustAdd(t, c, []float32{1, 0, 0}, 0)
	mustAdd(t, c, []float32{0.9, 0.1, 0}, 0)
	mustAdd(t, c, []float32{0, 1, 0}, 1)
	mustAdd(t, c, []float32{0.1, 0.9, 0}, 1)
	mustAdd(t, c, []float32{0, 0, 1}, 2)
	mustAdd(t, c, []float32{0, 0.1, 0.9}, 2)

	tests := []struct {
		name      string
		vec       []float32
		k         int
		wantLabel int
		wantConf  float64
	}{
		{name: "nearest to cluster 0", vec: []float32{1, 0.05, 0}, k: 2, wantLabel: 0, wantConf: 1},
		{name: "nearest to cluster 1", vec: []float32{0.05, 1, 0}, k: 2, wantLabel: 1, wantConf: 1},
		{name: "nearest to cluster 2", vec: []float32{0, 0, 5}, k: 2, wantLabel: 2, wantConf: 1},
		{name: "k=1", vec: []float32{0, 0, 1}, k: 1, wantLabel: 2, wantConf: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := c.Predict(tt.vec, tt.k)
			if err != nil {
				t.Fatalf("Predict() error = %v", err)
			}
			if pred.Label != tt.wantLabel {
				t.Errorf("Label = %d, want %d", pred.Label, tt.wantLabel)
			}
			if !floatEqual(pred.Confidence(), tt.wantConf) {
				t.Errorf("Confidence() = %f, want %f", pred.Confidence(), tt.wantConf)
			}
			if len(pred.Confidences) != 3 {
				t.Errorf("expected confidences for 3 labels, got %d", len(pred.Confidences))
			}
		})
	}
}

func TestClassifier_Predict_VoteShare(t *testing.T) {
	c := New()
	mustAdd(t, c, []float32{1, 0}, 0)
	mustAdd(t, c, []float32{1, 0.01}, 0)
	mustAdd(t, c, []float32{1, 0.02}, 0)
	mustAdd(t, c, []float32{0, 1}, 1)

	// k is larger than the example count and gets clipped to 4.
	pred, err := c.Predict([]float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if pred.Label != 0 {
		t.Errorf("Label = %d, want 0", pred.Label)
	}
	if !floatEqual(pred.Confidences[0], 0.75) {
		t.Errorf("Confidences[0] = %f, want 0.75", pred.Confidences[0])
	}
	if !floatEqual(pred.Confidences[1], 0.25) {
		t.Errorf("Confidences[1] = %f, want 0.25", pred.Confidences[1])
	}
}

func TestClassifier_Predict_TieGoesToLowestLabel(t *testing.T) {
	c := New()
	mustAdd(t, c, []float32{0, 1}, 3)
	mustAdd(t, c, []float32{1, 0}, 1)

	pred, err := c.Predict([]float32{1, 1}, 2)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if pred.Label != 1 {
		t.Errorf("Label = %d, want 1", pred.Label)
	}
}

func TestClassifier_Errors(t *testing.T) {
	c := New()

	if _, err := c.Predict([]float32{1, 0}, 3); !errors.Is(err, ErrNoExamples) {
		t.Errorf("Predict() on empty classifier error = %v, want ErrNoExamples", err)
	}

	if err := c.AddExample(nil, 0); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("AddExample(nil) error = %v, want ErrEmptyVector", err)
	}

	mustAdd(t, c, []float32{1, 0}, 0)

	if err := c.AddExample([]float32{1, 0, 0}, 0); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("AddExample() error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := c.Predict([]float32{1, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Predict() error = %v, want ErrDimensionMismatch", err)
	}
	if _, err := c.Predict(nil, 1); !errors.Is(err, ErrEmptyVector) {
		t.Errorf("Predict(nil) error = %v, want ErrEmptyVector", err)
	}
}

func TestClassifier_Clear(t *testing.T) {
	c := New()
	mustAdd(t, c, []float32{1, 0}, 0)
	mustAdd(t, c, []float32{0, 1}, 1)
	mustAdd(t, c, []float32{0, 1}, 1)

	if c.NumClasses() != 2 {
		t.Fatalf("NumClasses() = %d, want 2", c.NumClasses())
	}
	if c.ExampleCount(1) != 2 {
		t.Errorf("ExampleCount(1) = %d, want 2", c.ExampleCount(1))
	}

	c.ClearClass(1)
	if c.NumClasses() != 1 || c.Len() != 1 {
		t.Errorf("after ClearClass: NumClasses=%d Len=%d, want 1/1", c.NumClasses(), c.Len())
	}

	c.ClearAllClasses()
	if c.NumClasses() != 0 || c.Len() != 0 {
		t.Errorf("after ClearAllClasses: NumClasses=%d Len=%d, want 0/0", c.NumClasses(), c.Len())
	}

	// Dimension is forgotten once empty.
	if err := c.AddExample([]float32{1, 2, 3}, 0); err != nil {
		t.Errorf("AddExample() after clear error = %v", err)
	}
}

func TestClassifier_AddExampleCopiesInput(t *testing.T) {
	c := New()
	vec := []float32{1, 0}
	mustAdd(t, c, vec, 0)
	mustAdd(t, c, []float32{0, 1}, 1)

	vec[0], vec[1] = 0, 1

	pred, err := c.Predict([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if pred.Label != 0 {
		t.Errorf("stored example was mutated through caller slice, got label %d", pred.Label)
	}
}

func mustAdd(t *testing.T, c *Classifier, vec []float32, label int) {
	t.Helper()
	if err := c.AddExample(vec, label); err != nil {
		t.Fatalf("AddExample() error = %v", err)
	}
}
