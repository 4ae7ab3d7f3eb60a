// Package history lists, compares and charts a user's submitted assessments.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sympto/internal/apiclient"
	"sympto/internal/models"
)

// API is the read and delete side of the Assessment API. apiclient.Client satisfies it.
type API interface {
	ListAssessments(ctx context.Context, opts apiclient.ListOptions) (*apiclient.Page, error)
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	DeleteAssessment(ctx context.Context, id string) error
	DeleteAllAssessments(ctx context.Context) error
}

var ErrSameAssessment = errors.New("history: cannot compare an assessment with itself")

type Service struct {
	api     API
	catalog *models.Catalog
	log     *zap.Logger
}

func NewService(api API, catalog *models.Catalog, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: api, catalog: catalog, log: log.With(zap.String("component", "history"))}
}

func (s *Service) List(ctx context.Context, opts apiclient.ListOptions) (*apiclient.Page, error) {
	page, err := s.api.ListAssessments(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	return page, nil
}

// Latest returns the most recent assessment, or nil when there is none.
func (s *Service) Latest(ctx context.Context) (*models.Assessment, error) {
	page, err := s.List(ctx, apiclient.ListOptions{Limit: 1, SortBy: "createdAt", SortOrder: "desc"})
	if err != nil {
		return nil, err
	}
	if len(page.Assessments) == 0 {
		return nil, nil
	}
	return &page.Assessments[0], nil
}

// CompareByID fetches both assessments concurrently and compares them.
func (s *Service) CompareByID(ctx context.Context, firstID, secondID string) (Comparison, error) {
	if firstID == secondID {
		return Comparison{}, ErrSameAssessment
	}

	var first, second *models.Assessment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.api.GetAssessment(gctx, firstID)
		if err != nil {
			return fmt.Errorf("failed to load assessment %s: %w", firstID, err)
		}
		first = a
		return nil
	})
	g.Go(func() error {
		a, err := s.api.GetAssessment(gctx, secondID)
		if err != nil {
			return fmt.Errorf("failed to load assessment %s: %w", secondID, err)
		}
		second = a
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("Comparison failed", zap.Error(err))
		return Comparison{}, err
	}
	return Compare(first, second, s.catalog), nil
}

// Chart builds a trend chart from up to limit of the most recent assessments.
func (s *Service) Chart(ctx context.Context, fields []models.Field, limit int) (*charts.Line, error) {
	page, err := s.List(ctx, apiclient.ListOptions{Limit: limit, SortBy: "createdAt", SortOrder: "desc"})
	if err != nil {
		return nil, err
	}
	return TrendChart(page.Assessments, fields, s.catalog), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.api.DeleteAssessment(ctx, id); err != nil {
		return fmt.Errorf("failed to delete assessment %s: %w", id, err)
	}
	s.log.Info("Assessment deleted", zap.String("assessment_id", id))
	return nil
}

func (s *Service) DeleteAll(ctx context.Context) error {
	if err := s.api.DeleteAllAssessments(ctx); err != nil {
		return fmt.Errorf("failed to delete assessments: %w", err)
	}
	s.log.Info("All assessments deleted")
	return nil
}
