package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type OrderController struct {
	Ledger  *services.OrderLedger
	Pricing services.PricingEngine
}

func NewOrderController(ledger *services.OrderLedger, pricing services.PricingEngine) *OrderController {
	return &OrderController{Ledger: ledger, Pricing: pricing}
}

// Checkout -> cash returns the placed order, card returns the hosted checkout
func (oc *OrderController) Checkout(c *gin.Context) {
	var req struct {
		UserID      uint   `json:"user_id" binding:"required"`
		TableNo     int    `json:"table_no" binding:"required"`
		PaymentType string `json:"payment_type" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	result, err := oc.Ledger.Checkout(c.Request.Context(), req.UserID, req.TableNo, req.PaymentType)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	switch r := result.(type) {
	case *services.OrderPlaced:
		code := http.StatusCreated
		if r.Merged {
			code = http.StatusOK
		}
		utils.RespondJSON(c, code, "Order "+r.Outcome(), gin.H{
			"order":   newOrderResponse(r.Order, oc.Pricing),
			"outcome": r.Outcome(),
		})
	case *services.PaymentRedirect:
		utils.RespondJSON(c, http.StatusOK, "Redirect to payment", r)
	default:
		respondServiceError(c, fmt.Errorf("unexpected checkout result %T", result))
	}
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	id, err := uintParam(c, "order_id")
	if err != nil {
		respondServiceError(c, err)
		return
	}

	order, err := oc.Ledger.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", newOrderResponse(order, oc.Pricing))
}

// UpdateStatus -> fulfillment transition by staff
func (oc *OrderController) UpdateStatus(c *gin.Context) {
	id, err := uintParam(c, "order_id")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	order, err := oc.Ledger.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order status updated", newOrderResponse(order, oc.Pricing))
}

// StatusByCode is polled by the payment return page.
func (oc *OrderController) StatusByCode(c *gin.Context) {
	order, err := oc.Ledger.GetOrderByReference(c.Request.Context(), c.Param("order_code"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment status", gin.H{
		"payment_status":     order.PaymentStatus,
		"fulfillment_status": order.Status,
		"order":              newOrderResponse(order, oc.Pricing),
	})
}
