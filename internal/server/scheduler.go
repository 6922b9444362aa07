package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunScheduler triggers one scheduler pass outside the ticker, for local
// environments and smoke tests.
func (s *Server) RunScheduler(c *gin.Context) {
	if err := s.scheduler.RunOnce(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
