package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yeremiapane/restaurant-orders/feed"
	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type FeedController struct {
	Hub      *feed.Hub
	upgrader websocket.Upgrader
}

// NewFeedController accepts handshakes from allowedOrigin, or from anywhere
// when it is empty or "*".
func NewFeedController(hub *feed.Hub, allowedOrigin string) *FeedController {
	return &FeedController{
		Hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// Connect -> staff websocket; messages from the client are read and dropped
func (fc *FeedController) Connect(c *gin.Context) {
	role := c.GetString(middlewares.ContextRole)
	if role != models.RoleOwner && role != models.RoleManager && role != models.RoleStaff {
		utils.RespondError(c, http.StatusForbidden, ErrNoPermission)
		return
	}

	ws, err := fc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.WithError(err).Error("Feed upgrade failed")
		return
	}

	fc.Hub.Register(ws, role)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	fc.Hub.Unregister(ws)
}
