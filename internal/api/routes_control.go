package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/discord-echo/internal/relay"
)

const defaultOperatorName = "operator"

type sendRequest struct {
	Channel  string `json:"channel" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Username string `json:"username"`
}

// handleSendMessage writes an operator message into a mapped game channel.
func (s *Server) handleSendMessage(c *gin.Context) {
	var body sendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channel and message are required"})
		return
	}
	if body.Username == "" {
		body.Username = defaultOperatorName
	}

	err := s.deps.Relay.Inject(c.Request.Context(), body.Channel, body.Username, body.Message)
	if errors.Is(err, relay.ErrUnknownChannel) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	log.Info().
		Str("component", "api").
		Str("channel", body.Channel).
		Str("client_ip", c.ClientIP()).
		Msg("operator message sent")

	c.JSON(http.StatusOK, gin.H{
		"status":  "sent",
		"channel": body.Channel,
	})
}
