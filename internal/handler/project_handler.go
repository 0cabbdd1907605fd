package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/regenworks/regenworks-api/internal/models"
	"github.com/regenworks/regenworks-api/pkg/response"
)

type projectService interface {
	List(ctx context.Context, status string, page, limit int) ([]models.Project, *models.Pagination, error)
	Detail(ctx context.Context, projectID, userID string) (*models.ProjectDetail, error)
}

// ProjectHandler exposes the project read surface.
type ProjectHandler struct {
	service projectService
}

// NewProjectHandler builds a new handler.
func NewProjectHandler(service projectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// List godoc
// @Summary List projects
// @Tags Projects
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(20)
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	projects, pagination, err := h.service.List(c.Request.Context(), c.Query("status"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, projects, pagination)
}

// Detail godoc
// @Summary Get a project with its material breakdown
// @Tags Projects
// @Produce json
// @Param projectId path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{projectId} [get]
func (h *ProjectHandler) Detail(c *gin.Context) {
	detail, err := h.service.Detail(c.Request.Context(), c.Param("projectId"), userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}
