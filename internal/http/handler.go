package http

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go.ngs.io/mom6-diags/internal/usecase"
)

// Handler serves the results of a diagnostics run from its output
// directory. The summary is re-read on every request so a new run shows up
// without a restart.
type Handler struct {
	dir     string
	summary string
	logger  *zap.Logger
}

// NewHandler creates a handler over dir. summary is the summary file name
// inside dir.
func NewHandler(dir, summary string, logger *zap.Logger) *Handler {
	if summary == "" {
		summary = "summary.json"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dir: dir, summary: summary, logger: logger}
}

// GetDiagnostics handles GET /v1/diagnostics.
func (h *Handler) GetDiagnostics(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s)
}

// GetField handles GET /v1/diagnostics/:field. An optional period query
// parameter (Jan..Dec, DJF, MAM, JJA, SON, ANN) narrows the response.
func (h *Handler) GetField(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	name := c.Param("field")
	f, ok := s.Field(name)
	if !ok {
		names := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			names = append(names, f.Name)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown field " + name, "fields": names})
		return
	}

	period := c.Query("period")
	if period == "" {
		c.JSON(http.StatusOK, f)
		return
	}
	ps, ok := f.Period(period)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no statistics for period " + period})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"case":   s.Case,
		"field":  f.Name,
		"units":  f.Units,
		"period": ps,
	})
}

// GetImage handles GET /v1/images/:name.
func (h *Handler) GetImage(c *gin.Context) {
	name := c.Param("name")
	if name != filepath.Base(name) || !strings.EqualFold(filepath.Ext(name), ".png") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image name"})
		return
	}
	path := filepath.Join(h.dir, name)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.File(path)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) load(c *gin.Context) (*usecase.Summary, bool) {
	s, err := usecase.ReadSummary(filepath.Join(h.dir, h.summary))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{"error": "no diagnostics have been written to this directory"})
		return nil, false
	case err != nil:
		h.logger.Error("Failed to load summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return s, true
}
