package domain

import (
	"fmt"
	"sync"
)

// DistanceMetric selects how similarity is computed for a model's vectors.
type DistanceMetric string

const (
	// MetricCosine ranks by cosine similarity.
	MetricCosine DistanceMetric = "cosine"
	// MetricDot ranks by inner product.
	MetricDot DistanceMetric = "dot"
	// MetricL2 ranks by negated Euclidean distance.
	MetricL2 DistanceMetric = "l2"
)

// ModelInfo describes one embedding model's vector space. All vectors
// stored under the same model share this dimension and metric.
type ModelInfo struct {
	// Name identifies the model (e.g. "nomic-embed-text").
	Name string

	// Dimensions is the vector length every embedding must have.
	Dimensions int

	// Metric is the distance metric the model was trained for.
	Metric DistanceMetric
}

// ModelRegistry maps embedding model names to their vector spaces.
// Every vector operation passes the model explicitly and the registry
// turns that name into a capability lookup; there is no process-wide
// "current model".
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[string]ModelInfo
}

// NewModelRegistry returns an empty registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[string]ModelInfo)}
}

// Register adds or replaces a model definition.
func (r *ModelRegistry) Register(info ModelInfo) error {
	if info.Name == "" || info.Dimensions <= 0 {
		return fmt.Errorf("%w: model needs a name and a positive dimension", ErrInvalidInput)
	}
	switch info.Metric {
	case MetricCosine, MetricDot, MetricL2:
	case "":
		info.Metric = MetricCosine
	default:
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidInput, info.Metric)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[info.Name] = info
	return nil
}

// Get returns the definition for a model name.
func (r *ModelRegistry) Get(name string) (ModelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.models[name]
	if !ok {
		return ModelInfo{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return info, nil
}

// List returns all registered models.
func (r *ModelRegistry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelInfo, 0, len(r.models))
	for _, info := range r.models {
		out = append(out, info)
	}
	return out
}

// CheckVector verifies a vector belongs to a model's space.
func (r *ModelRegistry) CheckVector(model string, vector []float32) error {
	info, err := r.Get(model)
	if err != nil {
		return err
	}
	if len(vector) != info.Dimensions {
		return fmt.Errorf("%w: model %q expects %d dimensions, got %d",
			ErrDimensionMismatch, model, info.Dimensions, len(vector))
	}
	return nil
}
