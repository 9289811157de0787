package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-orders/config"
	"github.com/yeremiapane/restaurant-orders/events"
	"github.com/yeremiapane/restaurant-orders/feed"
	"github.com/yeremiapane/restaurant-orders/router"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

func main() {
	cfg := config.Load()
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	utils.ConfigureJWT(cfg.JWTSecret, cfg.TokenTTL)

	db, err := config.InitDB(cfg.Database)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := config.AutoMigrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")

	provider, err := services.NewCheckoutProvider(cfg.Payment)
	if provider == nil {
		utils.ErrorLogger.Fatalf("Payment provider: %v", err)
	}
	if err != nil {
		utils.ErrorLogger.Printf("Payment provider %s is not fully configured, card checkout will fail: %v", provider.Name(), err)
	}

	var locker services.Locker = services.NoopLocker{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			utils.ErrorLogger.Printf("Redis unavailable, webhooks run without a lock: %v", err)
		} else {
			locker = services.NewRedisLocker(rdb, cfg.Redis.LockTTL)
		}
		cancel()
	}

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		utils.ErrorLogger.Printf("Invalid TAX_RATE %q, using %s", cfg.TaxRate, services.DefaultTaxRate)
		taxRate = services.DefaultTaxRate
	}
	pricing := services.NewPricingEngine(taxRate)

	hub := feed.NewHub()
	dispatcher := events.NewDispatcher(events.NewPublisher(cfg.Broker), hub)
	defer dispatcher.Close()

	catalog := services.NewGormCatalog(db)
	directory := services.NewGormDirectory(db)
	cart := services.NewCartService(db, catalog, directory, pricing)
	ledger := services.NewOrderLedger(db, cart, directory, pricing, provider, dispatcher, services.LedgerOptions{
		Currency:        cfg.Payment.Currency,
		PaidOrderStatus: cfg.Payment.PaidOrderStatus,
	})
	notifications := services.NewNotificationService(db)
	payments := services.NewPaymentService(ledger, provider, locker, notifications)
	monitor := services.NewPaymentMonitor(ledger, payments, cfg.Payment.ReconcileInterval, cfg.Payment.SessionTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	monitorDone := monitor.Start(ctx)

	r := router.SetupRouter(router.Deps{
		DB:            db,
		Catalog:       catalog,
		Pricing:       pricing,
		Cart:          cart,
		Ledger:        ledger,
		Payments:      payments,
		Monitor:       monitor,
		Notifications: notifications,
		Hub:           hub,
		CORSOrigin:    cfg.CORSOrigin,
		WebhookKey:    cfg.Payment.VivaWebhookKey,
		RateLimit:     cfg.RateLimit,
		RateWindow:    cfg.RateWindow,
		HSTS:          cfg.HSTS,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Printf("HTTP server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	utils.InfoLogger.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.Printf("Graceful shutdown failed: %v", err)
	}
	<-monitorDone
}
