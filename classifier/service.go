package classifier

import (
	"context"
	"image"

	"github.com/nvr-ai/go-classify/models"
)

// Resolver looks up loaded models by identifier.
type Resolver interface {
	Get(id string) (*models.LoadedModel, error)
}

// Service classifies by model identifier through a registry.
type Service struct {
	models     Resolver
	classifier *Classifier
}

// NewService binds a classifier to a model resolver, normally a *models.Registry.
func NewService(r Resolver, c *Classifier) *Service {
	return &Service{models: r, classifier: c}
}

// Classify resolves id and classifies img.
func (s *Service) Classify(ctx context.Context, id string, img image.Image) (*Result, error) {
	m, err := s.models.Get(id)
	if err != nil {
		return nil, err
	}
	return s.classifier.Classify(ctx, m, img)
}

// ClassifyTopN resolves id and returns the n most probable classes.
func (s *Service) ClassifyTopN(ctx context.Context, id string, img image.Image, n int) (*Ranked, error) {
	m, err := s.models.Get(id)
	if err != nil {
		return nil, err
	}
	return s.classifier.ClassifyTopN(ctx, m, img, n)
}

// Benchmark resolves id and returns the mean elapsed milliseconds over iterations calls.
func (s *Service) Benchmark(ctx context.Context, id string, img image.Image, iterations int) (float64, error) {
	m, err := s.models.Get(id)
	if err != nil {
		return 0, err
	}
	return s.classifier.Benchmark(ctx, m, img, iterations)
}
