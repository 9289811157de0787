package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type CartController struct {
	Cart *services.CartService
}

func NewCartController(cart *services.CartService) *CartController {
	return &CartController{Cart: cart}
}

type cartLineRequest struct {
	UserID     uint `json:"user_id" binding:"required"`
	FoodItemID uint `json:"food_item_id" binding:"required"`
}

// GetCart -> priced view of a user's cart
func (cc *CartController) GetCart(c *gin.Context) {
	userID, err := uintParam(c, "user_id")
	if err != nil {
		respondServiceError(c, err)
		return
	}

	view, err := cc.Cart.View(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cart", newCartResponse(view))
}

// AddItem -> quantity defaults to 1
func (cc *CartController) AddItem(c *gin.Context) {
	var req struct {
		cartLineRequest
		Quantity *int `json:"quantity"`
	}
	if !bindJSON(c, &req) {
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	item, err := cc.Cart.AddItem(c.Request.Context(), req.UserID, req.FoodItemID, qty)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Item added to cart", item)
}

func (cc *CartController) ChangeQuantity(c *gin.Context) {
	var req struct {
		cartLineRequest
		Direction string `json:"direction" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	item, err := cc.Cart.ChangeQuantity(c.Request.Context(), req.UserID, req.FoodItemID, req.Direction)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if item == nil {
		utils.RespondJSON(c, http.StatusOK, "Item removed from cart", gin.H{"food_item_id": req.FoodItemID, "quantity": 0})
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cart quantity updated", item)
}

func (cc *CartController) RemoveItem(c *gin.Context) {
	var req cartLineRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := cc.Cart.RemoveItem(c.Request.Context(), req.UserID, req.FoodItemID); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Item removed from cart", gin.H{"food_item_id": req.FoodItemID})
}

func (cc *CartController) Clear(c *gin.Context) {
	var req struct {
		UserID uint `json:"user_id" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	if err := cc.Cart.Clear(c.Request.Context(), req.UserID); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cart cleared", gin.H{"user_id": req.UserID})
}
