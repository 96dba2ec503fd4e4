package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const redacted = "********"

// handleGetConfig returns the running configuration with secrets masked.
func (s *Server) handleGetConfig(c *gin.Context) {
	bridge := s.cfg.GetBridgeData()
	app := s.cfg.GetApplicationData()

	if bridge.DiscordToken != "" {
		bridge.DiscordToken = redacted
	}
	if app.MQTT.Password != "" {
		app.MQTT.Password = redacted
	}

	c.JSON(http.StatusOK, gin.H{
		"bridge_data":      bridge,
		"application_data": app,
	})
}
