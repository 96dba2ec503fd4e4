package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/discord-echo/internal/util"
)

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "discord-echo",
		"uptime":  util.FormatDuration(time.Since(s.started)),
	})
}

func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "discord-echo",
		"version": util.Version,
	})
}
