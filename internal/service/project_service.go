package service

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/regenworks/regenworks-api/internal/models"
)

type projectRepository interface {
	List(ctx context.Context, status string, page, limit int) ([]models.Project, int, error)
	GetByID(ctx context.Context, projectID string) (*models.Project, error)
	MaterialsBreakdown(ctx context.Context, projectID string) (map[string]float64, error)
	UserContribution(ctx context.Context, projectID, userID string) (float64, bool, error)
}

// ProjectService serves the project read surface.
type ProjectService struct {
	repo   projectRepository
	logger *zap.Logger
}

// NewProjectService constructs a ProjectService.
func NewProjectService(repo projectRepository, logger *zap.Logger) *ProjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{repo: repo, logger: logger}
}

// List returns projects with paging metadata.
func (s *ProjectService) List(ctx context.Context, status string, page, limit int) ([]models.Project, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	projects, total, err := s.repo.List(ctx, status, page, limit)
	if err != nil {
		return nil, nil, err
	}
	pagination := &models.Pagination{
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}
	return projects, pagination, nil
}

// Detail returns a project with its material breakdown and, when a user is
// known, that user's share.
func (s *ProjectService) Detail(ctx context.Context, projectID, userID string) (*models.ProjectDetail, error) {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	detail := &models.ProjectDetail{Project: *project}

	materials, err := s.repo.MaterialsBreakdown(ctx, projectID)
	if err != nil {
		s.logger.Warn("materials breakdown failed", zap.String("project_id", projectID), zap.Error(err))
		materials = map[string]float64{}
	}
	detail.MaterialsGrams = materials

	if userID != "" {
		weight, isTop, err := s.repo.UserContribution(ctx, projectID, userID)
		if err != nil {
			s.logger.Warn("user contribution lookup failed",
				zap.String("project_id", projectID), zap.String("user_id", userID), zap.Error(err))
		} else {
			detail.UserContribution = weight
			detail.IsTopContributor = isTop
		}
	}
	return detail, nil
}
