// Package server exposes the recorder's on-disk state over HTTP: the
// manifest files a feed's PullLoop writes, the downloaded segment/chunk
// files alongside them, and a websocket feed of the chunk-completion
// events published onto the FeedEventBus.
package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"hlsarchiver/internal/core/domain"
	"hlsarchiver/pkg/cache"
)

// FeedRoot resolves a configured feed id to the directory its PullLoop
// was given as DataDir.
type FeedRoot func(feedID domain.FeedID) (dir string, ok bool)

// PlaylistHandler serves the manifest files (segments.yaml, chunks.yaml,
// and their depth/index siblings) a feed's pull loop maintains.
type PlaylistHandler struct {
	root  FeedRoot
	cache *cache.Cache
	ttl   time.Duration
}

// NewPlaylistHandler builds a PlaylistHandler. Responses are cached for
// ttl to absorb bursts of player polling without re-reading the manifest
// off disk on every request; ttl of zero disables caching.
func NewPlaylistHandler(root FeedRoot, ttl time.Duration) *PlaylistHandler {
	h := &PlaylistHandler{root: root, ttl: ttl}
	if ttl > 0 {
		h.cache = cache.NewCache(ttl)
	}
	return h
}

// SetupRoutes registers the manifest endpoints on router.
func (h *PlaylistHandler) SetupRoutes(router *gin.Engine) {
	feeds := router.Group("/feeds/:feed_id")
	{
		feeds.GET("/segments.yaml", h.Segments)
		feeds.GET("/segments.index.yaml", h.SegmentsIndex)
		feeds.GET("/chunks.yaml", h.Chunks)
		feeds.GET("/chunks.index.yaml", h.ChunksIndex)
	}
}

func (h *PlaylistHandler) Segments(c *gin.Context) {
	h.serveManifest(c, "segments.yaml")
}

func (h *PlaylistHandler) SegmentsIndex(c *gin.Context) {
	h.serveManifest(c, "segments.index.yaml")
}

func (h *PlaylistHandler) Chunks(c *gin.Context) {
	h.serveManifest(c, filepath.Join("chunks", "chunks.yaml"))
}

func (h *PlaylistHandler) ChunksIndex(c *gin.Context) {
	h.serveManifest(c, filepath.Join("chunks", "chunks.index.yaml"))
}

func (h *PlaylistHandler) serveManifest(c *gin.Context, relPath string) {
	feedID := domain.FeedID(c.Param("feed_id"))
	dir, ok := h.root(feedID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown feed"})
		return
	}

	cacheKey := string(feedID) + "/" + relPath
	if h.cache != nil {
		if body, found := h.cache.Get(cacheKey); found {
			c.Data(http.StatusOK, "application/x-yaml", body.([]byte))
			return
		}
	}

	full := filepath.Join(dir, relPath)
	body, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "manifest not yet written"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.cache != nil {
		h.cache.SetWithTTL(cacheKey, body, h.ttl)
	}
	c.Data(http.StatusOK, "application/x-yaml", body)
}
