package inspector

import (
	"context"
	"errors"
)

// ErrInvalidPeriod signals a period whose start falls after its end.
var ErrInvalidPeriod = errors.New("inspector: period start after period end")

// WorkloadReader abstracts repository operations for the service.
type WorkloadReader interface {
	ListWorkloads(ctx context.Context, period Period) ([]Workload, error)
}

// Service exposes the inspectors-with-batchable-work view.
type Service struct {
	repo WorkloadReader
}

// NewService builds a Service using the provided repository.
func NewService(repo WorkloadReader) *Service {
	return &Service{repo: repo}
}

// ListWorkloads returns the inspectors with eligible work in the period.
func (s *Service) ListWorkloads(ctx context.Context, period Period) ([]Workload, error) {
	if period.Start.After(period.End) {
		return nil, ErrInvalidPeriod
	}
	return s.repo.ListWorkloads(ctx, period)
}
