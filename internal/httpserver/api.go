package httpserver

import (
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/tailview/internal/model"
)

type fileView struct {
	model.FileInfo
	Size string `json:"size"`
}

func (s *Server) handleFiles(c *gin.Context) {
	files := s.tracker.Files()
	out := make([]fileView, 0, len(files))
	for _, f := range files {
		out = append(out, fileView{FileInfo: f, Size: humanize.IBytes(uint64(max(f.Offset, 0)))})
	}
	c.JSON(http.StatusOK, gin.H{"files": out})
}

func (s *Server) handleEvents(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing path parameter"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		limit = n
	}

	filter := s.filter(c)
	if !filter.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": filter.Err().Error()})
		return
	}
	history, ok := s.tracker.History(path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown path"})
		return
	}

	events := filter.Filter(history)
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []model.Event{}
	}
	c.JSON(http.StatusOK, gin.H{
		"path":   path,
		"mode":   filter.Mode().String(),
		"total":  len(history),
		"events": events,
	})
}
