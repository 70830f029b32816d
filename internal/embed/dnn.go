package embed

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// Config describes the embedding network.
type Config struct {
	// Model is the path to the network weights (.onnx, .caffemodel, .pb, ...).
	Model string `yaml:"model"`
	// ModelConfig is the optional network description file (.prototxt, .pbtxt).
	ModelConfig string `yaml:"model_config"`
	// Layer is the output layer whose activations form the embedding.
	// Empty selects the network's final output.
	Layer string `yaml:"layer"`
	// InputSize is the square input resolution expected by the network.
	InputSize int `yaml:"input_size"`
	// Scale multiplies pixel values before the mean is subtracted.
	Scale float64 `yaml:"scale"`
	// Mean is subtracted from each BGR channel.
	Mean [3]float64 `yaml:"mean"`
	// SwapRB converts BGR frames to RGB.
	SwapRB bool `yaml:"swap_rb"`
}

// DefaultConfig returns settings suited to MobileNet style ImageNet models.
func DefaultConfig() Config {
	return Config{
		Layer:     "",
		InputSize: 227,
		Scale:     1.0 / 127.5,
		Mean:      [3]float64{127.5, 127.5, 127.5},
		SwapRB:    true,
	}
}

// DNNExtractor computes embeddings with an OpenCV dnn network.
type DNNExtractor struct {
	config Config
	net    gocv.Net
	mu     sync.Mutex
}

// NewDNNExtractor loads the network described by config.
// Failures are reported as ErrModelLoad.
func NewDNNExtractor(config Config) (*DNNExtractor, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("%w: no model path configured", ErrModelLoad)
	}
	if _, err := os.Stat(config.Model); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}
	if config.Scale == 0 {
		config.Scale = 1.0
	}

	net := gocv.ReadNet(config.Model, config.ModelConfig)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("%w: %s", ErrModelLoad, config.Model)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set backend: %v", ErrModelLoad, err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set target: %v", ErrModelLoad, err)
	}

	return &DNNExtractor{config: config, net: net}, nil
}

// Infer runs the network on frame. The returned Embedding views the output
// Mat directly; closing the Embedding closes the Mat.
func (d *DNNExtractor) Infer(frame *gocv.Mat) (*Embedding, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Pt(d.config.InputSize, d.config.InputSize)
	mean := gocv.NewScalar(d.config.Mean[0], d.config.Mean[1], d.config.Mean[2], 0)

	blob := gocv.BlobFromImage(*frame, d.config.Scale, size, mean, d.config.SwapRB, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward(d.config.Layer)
	if out.Empty() {
		out.Close()
		return nil, fmt.Errorf("network produced no output for layer %q", d.config.Layer)
	}

	values, err := out.DataPtrFloat32()
	if err != nil {
		out.Close()
		return nil, fmt.Errorf("read network output: %w", err)
	}

	return NewEmbedding(values, func() { out.Close() }), nil
}

// Close releases the network.
func (d *DNNExtractor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
