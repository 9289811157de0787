package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// FoodController is the read-only catalog surface.
type FoodController struct {
	Catalog services.CatalogGateway
}

func NewFoodController(catalog services.CatalogGateway) *FoodController {
	return &FoodController{Catalog: catalog}
}

// GetAllFoods -> ?available=true hides sold out items
func (fc *FoodController) GetAllFoods(c *gin.Context) {
	items, err := fc.Catalog.ListFoodItems(c.Request.Context(), c.Query("available") == "true")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	out := make([]foodResponse, 0, len(items))
	for i := range items {
		out = append(out, newFoodResponse(&items[i]))
	}
	utils.RespondJSON(c, http.StatusOK, "List of foods", out)
}

func (fc *FoodController) GetFoodByID(c *gin.Context) {
	id, err := uintParam(c, "food_id")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	item, err := fc.Catalog.GetFoodItem(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Food detail", newFoodResponse(item))
}
