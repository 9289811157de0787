package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
	"gorm.io/gorm"
)

type TableController struct {
	DB      *gorm.DB
	Ledger  *services.OrderLedger
	Pricing services.PricingEngine
}

func NewTableController(db *gorm.DB, ledger *services.OrderLedger, pricing services.PricingEngine) *TableController {
	return &TableController{DB: db, Ledger: ledger, Pricing: pricing}
}

type activeOrderSummary struct {
	ID            uint   `json:"id"`
	Status        string `json:"status"`
	PaymentType   string `json:"payment_type"`
	PaymentStatus string `json:"payment_status"`
	ItemCount     int    `json:"item_count"`
	TotalAmount   string `json:"total_amount"`
}

type tableResponse struct {
	ID          uint                `json:"id"`
	TableNo     int                 `json:"table_no"`
	ManagerID   uint                `json:"manager_id"`
	Seats       int                 `json:"seats"`
	Available   bool                `json:"available"`
	ActiveOrder *activeOrderSummary `json:"active_order"`
}

// GetAllTables -> tables with their active order, optionally for one manager
func (tc *TableController) GetAllTables(c *gin.Context) {
	q := tc.DB.WithContext(c.Request.Context()).Order("table_no")
	if raw := c.Query("manager_id"); raw != "" {
		managerID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid manager_id"))
			return
		}
		q = q.Where("manager_id = ?", managerID)
	}

	var tables []models.Table
	if err := q.Find(&tables).Error; err != nil {
		respondServiceError(c, err)
		return
	}

	nos := make([]int, 0, len(tables))
	for _, t := range tables {
		nos = append(nos, t.TableNo)
	}
	active, err := tc.Ledger.ActiveOrdersByTable(c.Request.Context(), nos)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	out := make([]tableResponse, 0, len(tables))
	for _, t := range tables {
		resp := tableResponse{ID: t.ID, TableNo: t.TableNo, ManagerID: t.ManagerID, Seats: t.Seats, Available: true}
		if o, ok := active[t.TableNo]; ok {
			resp.Available = false
			resp.ActiveOrder = &activeOrderSummary{
				ID:            o.ID,
				Status:        o.Status,
				PaymentType:   o.PaymentType,
				PaymentStatus: o.PaymentStatus,
				ItemCount:     o.ItemCount(),
				TotalAmount:   money(o.TotalAmount),
			}
		}
		out = append(out, resp)
	}
	utils.RespondJSON(c, http.StatusOK, "List of tables", out)
}

// GetActiveOrder -> the order occupying a table; data.order is null when free
func (tc *TableController) GetActiveOrder(c *gin.Context) {
	tableNo, err := strconv.Atoi(c.Param("table_no"))
	if err != nil || tableNo <= 0 {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid table_no"))
		return
	}

	var table models.Table
	err = tc.DB.WithContext(c.Request.Context()).Where("table_no = ?", tableNo).First(&table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.RespondError(c, http.StatusNotFound, fmt.Errorf("table %d not found", tableNo))
		return
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}

	order, err := tc.Ledger.FindActiveOrderForTable(c.Request.Context(), tableNo)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if order == nil {
		utils.RespondJSON(c, http.StatusOK, "Table is free", gin.H{"table_no": tableNo, "available": true, "order": nil})
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Active order", gin.H{
		"table_no":  tableNo,
		"available": false,
		"order":     newOrderResponse(order, tc.Pricing),
	})
}
