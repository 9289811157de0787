package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-orders/controllers"
	"github.com/yeremiapane/restaurant-orders/feed"
	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/services"
	"gorm.io/gorm"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	DB            *gorm.DB
	Catalog       services.CatalogGateway
	Pricing       services.PricingEngine
	Cart          *services.CartService
	Ledger        *services.OrderLedger
	Payments      *services.PaymentService
	Monitor       *services.PaymentMonitor
	Notifications *services.NotificationService
	Hub           *feed.Hub

	CORSOrigin string
	WebhookKey string
	RateLimit  int
	RateWindow time.Duration
	HSTS       bool
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders(d.HSTS))
	r.Use(middlewares.CORSMiddlewares(d.CORSOrigin))
	if d.RateLimit > 0 {
		r.Use(middlewares.NewRateLimiter(d.RateLimit, d.RateWindow).RateLimit())
	}

	userController := controllers.NewUserController(d.DB)
	cartController := controllers.NewCartController(d.Cart)
	orderController := controllers.NewOrderController(d.Ledger, d.Pricing)
	paymentController := controllers.NewPaymentController(d.Payments, d.Monitor, d.WebhookKey)
	tableController := controllers.NewTableController(d.DB, d.Ledger, d.Pricing)
	foodController := controllers.NewFoodController(d.Catalog)
	notificationController := controllers.NewNotificationController(d.Notifications)
	feedController := controllers.NewFeedController(d.Hub, d.CORSOrigin)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.POST("/login", middlewares.NewStrictRateLimiter(), userController.Login)

	// Provider callbacks and the payment return page
	payments := r.Group("/payments")
	payments.Use(middlewares.PaymentSecurityHeaders(), middlewares.LogPaymentRequest())
	{
		payments.GET("/webhook", paymentController.VerifyWebhook)
		payments.POST("/webhook", middlewares.PaymentRateLimiter(20, 40), paymentController.Webhook)
	}
	r.GET("/orders/status/:order_code", middlewares.PaymentSecurityHeaders(), orderController.StatusByCode)

	// Websocket auth comes from the query string
	r.GET("/api/feed", middlewares.WebSocketAuthMiddleware(), feedController.Connect)

	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware(), middlewares.RequireRoles(models.RoleOwner, models.RoleManager, models.RoleStaff))
	{
		cart := api.Group("/cart")
		{
			cart.GET("/:user_id", cartController.GetCart)
			cart.POST("/add", cartController.AddItem)
			cart.POST("/quantity", cartController.ChangeQuantity)
			cart.POST("/remove", cartController.RemoveItem)
			cart.POST("/clear", cartController.Clear)
		}

		api.POST("/checkout", middlewares.PaymentRateLimiter(10, 20), orderController.Checkout)

		orders := api.Group("/orders")
		{
			orders.GET("/:order_id", orderController.GetOrder)
			orders.PATCH("/:order_id/status", orderController.UpdateStatus)
		}

		tables := api.Group("/tables")
		{
			tables.GET("", tableController.GetAllTables)
			tables.GET("/:table_no/active-order", tableController.GetActiveOrder)
		}

		foods := api.Group("/foods")
		{
			foods.GET("", foodController.GetAllFoods)
			foods.GET("/:food_id", foodController.GetFoodByID)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationController.GetNotifications)
			notifications.PATCH("/:notif_id/read", notificationController.MarkRead)
		}

		api.GET("/payments/metrics",
			middlewares.RequireRoles(models.RoleOwner, models.RoleManager),
			paymentController.Metrics)
	}

	return r
}
