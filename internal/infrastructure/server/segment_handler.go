package server

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"hlsarchiver/internal/core/domain"
)

// SegmentHandler serves the downloaded chunk/segment files a feed's pull
// loop writes under its DataDir, following the same path-template layout
// the formatter used to place them.
type SegmentHandler struct {
	root FeedRoot
}

// NewSegmentHandler builds a SegmentHandler.
func NewSegmentHandler(root FeedRoot) *SegmentHandler {
	return &SegmentHandler{root: root}
}

// SetupRoutes registers the segment file endpoint on router.
func (h *SegmentHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/feeds/:feed_id/files/*filepath", h.ServeFile)
}

// ServeFile serves one file out of a feed's data directory. The
// requested path is cleaned and confined to the feed's root before any
// filesystem access, rejecting any attempt to escape it via "..".
func (h *SegmentHandler) ServeFile(c *gin.Context) {
	feedID := domain.FeedID(c.Param("feed_id"))
	dir, ok := h.root(feedID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown feed"})
		return
	}

	rel := strings.TrimPrefix(c.Param("filepath"), "/")
	cleaned := filepath.Clean(filepath.Join(dir, rel))
	if cleaned != dir && !strings.HasPrefix(cleaned, dir+string(filepath.Separator)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
		return
	}

	c.File(cleaned)
}
