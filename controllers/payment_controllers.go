package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

const maxWebhookBody = 1 << 20

type PaymentController struct {
	Payments *services.PaymentService
	Monitor  *services.PaymentMonitor
	// WebhookKey is echoed on GET so the provider can verify the endpoint.
	WebhookKey string
}

func NewPaymentController(payments *services.PaymentService, monitor *services.PaymentMonitor, webhookKey string) *PaymentController {
	return &PaymentController{Payments: payments, Monitor: monitor, WebhookKey: webhookKey}
}

func (pc *PaymentController) VerifyWebhook(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"Key": pc.WebhookKey})
}

// Webhook -> provider callback. Anything but a bad payload or an internal
// failure is acknowledged with 200 so the provider stops retrying.
func (pc *PaymentController) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := pc.Payments.HandleWebhook(c.Request.Context(), body, c.Request.Header)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			utils.ErrorLogger.WithError(err).Warn("Rejected payment webhook")
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
		respondServiceError(c, err)
		return
	}

	data := gin.H{"applied": result.Applied}
	if result.Event != nil {
		data["order_code"] = result.Event.OrderCode
		data["outcome"] = result.Event.Outcome
	}
	if result.Skipped != "" {
		data["skipped"] = result.Skipped
	}
	utils.RespondJSON(c, http.StatusOK, "Webhook received", data)
}

func (pc *PaymentController) Metrics(c *gin.Context) {
	if pc.Monitor == nil {
		utils.RespondJSON(c, http.StatusOK, "Payment metrics", services.PaymentMetrics{})
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment metrics", pc.Monitor.GetMetrics())
}
