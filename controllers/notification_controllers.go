package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type NotificationController struct {
	Notifications *services.NotificationService
}

func NewNotificationController(notifications *services.NotificationService) *NotificationController {
	return &NotificationController{Notifications: notifications}
}

// GetNotifications -> the caller's notifications plus broadcasts.
// Query: unread=true, limit=N.
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	notifs, err := nc.Notifications.ForUser(c.Request.Context(), c.GetUint(middlewares.ContextUserID), c.Query("unread") == "true", limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notifications", notifs)
}

func (nc *NotificationController) MarkRead(c *gin.Context) {
	id, err := uintParam(c, "notif_id")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if err := nc.Notifications.MarkRead(c.Request.Context(), c.GetUint(middlewares.ContextUserID), id); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification marked as read", gin.H{"notif_id": id})
}
