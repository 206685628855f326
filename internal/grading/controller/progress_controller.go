package controller

import (
	"autograde/internal/grading/progress"
	"autograde/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProgressController serves the attempt states of the running batch.
type ProgressController struct {
	tracker *progress.Tracker
}

// NewProgressController creates a new controller.
func NewProgressController(tracker *progress.Tracker) *ProgressController {
	return &ProgressController{tracker: tracker}
}

// Register mounts the progress routes.
func (h *ProgressController) Register(r gin.IRouter) {
	g := r.Group("/api/v1/grading")
	g.Use(h.runID)
	g.GET("/progress", h.GetProgress)
	g.GET("/items", h.ListItems)
	g.GET("/items/:student", h.GetItem)
}

// GetProgress returns aggregate counters.
func (h *ProgressController) GetProgress(c *gin.Context) {
	response.Success(c, h.tracker.Snapshot())
}

// ListItems returns every attempt in enumeration order.
func (h *ProgressController) ListItems(c *gin.Context) {
	response.Success(c, h.tracker.Items())
}

// GetItem returns the attempt of one student.
func (h *ProgressController) GetItem(c *gin.Context) {
	student := c.Param("student")
	if student == "" {
		response.BadRequest(c, "Invalid student")
		return
	}
	status, ok := h.tracker.Item(student)
	if !ok {
		response.NotFound(c, "Unknown student")
		return
	}
	response.Success(c, status)
}

func (h *ProgressController) runID(c *gin.Context) {
	c.Set("run_id", h.tracker.Snapshot().RunID)
	c.Next()
}
