package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-orders/events"
	"github.com/yeremiapane/restaurant-orders/feed"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/router"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "secret123"

func init() {
	gin.SetMode(gin.TestMode)
	utils.SilenceLoggers()
}

// stubProvider hands out sequential order codes and parses flat webhooks.
type stubProvider struct {
	mu   sync.Mutex
	n    int
	fail bool
}

func (p *stubProvider) Name() string { return "viva" }

func (p *stubProvider) CreateCheckoutSession(_ context.Context, req services.SessionRequest) (*services.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return nil, fmt.Errorf("%w: provider down", services.ErrUpstream)
	}
	p.n++
	code := fmt.Sprintf("%d%06d", req.OrderID, p.n)
	return &services.CheckoutSession{CheckoutURL: "https://pay.test/web/checkout?ref=" + code, OrderCode: code}, nil
}

func (p *stubProvider) CheckStatus(context.Context, string) (services.PaymentOutcome, error) {
	return services.OutcomePending, nil
}

func (p *stubProvider) ParseWebhook(body []byte, _ http.Header) (*services.PaymentEvent, error) {
	return services.ParseProviderWebhook(p.Name(), body)
}

type testEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	hub      *feed.Hub
	provider *stubProvider

	owner, manager, staff models.User
	souvlaki, salad       models.FoodItem
	soldOut               models.FoodItem
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	utils.ConfigureJWT("controllers-test-secret", 0)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	env := &testEnv{db: db, hub: feed.NewHub(), provider: &stubProvider{}}
	env.owner = models.User{Name: "Olga", Email: "owner@test.local", Password: string(hash), Role: models.RoleOwner}
	env.manager = models.User{Name: "Maria", Email: "manager@test.local", Password: string(hash), Role: models.RoleManager}
	env.staff = models.User{Name: "Sam", Email: "staff@test.local", Password: string(hash), Role: models.RoleStaff}
	for _, u := range []*models.User{&env.owner, &env.manager, &env.staff} {
		require.NoError(t, db.Create(u).Error)
	}
	for _, no := range []int{3, 5} {
		require.NoError(t, db.Create(&models.Table{TableNo: no, ManagerID: env.manager.ID, Seats: 4}).Error)
	}
	require.NoError(t, db.Create(&models.Table{TableNo: 9, ManagerID: env.owner.ID, Seats: 2}).Error)

	env.souvlaki = models.FoodItem{Name: "Souvlaki", BasePrice: decimal.RequireFromString("10.00"), IsAvailable: true, Image: "souvlaki.jpg"}
	env.salad = models.FoodItem{Name: "Salad", BasePrice: decimal.RequireFromString("5.00"), IsAvailable: true}
	env.soldOut = models.FoodItem{Name: "Moussaka", BasePrice: decimal.RequireFromString("12.50"), IsAvailable: true}
	for _, f := range []*models.FoodItem{&env.souvlaki, &env.salad, &env.soldOut} {
		require.NoError(t, db.Create(f).Error)
	}
	require.NoError(t, db.Model(&env.soldOut).Update("is_available", false).Error)

	pricing := services.NewPricingEngine(services.DefaultTaxRate)
	catalog := services.NewGormCatalog(db)
	directory := services.NewGormDirectory(db)
	cart := services.NewCartService(db, catalog, directory, pricing)
	dispatcher := events.NewDispatcher(events.LogPublisher{}, env.hub)
	ledger := services.NewOrderLedger(db, cart, directory, pricing, env.provider, dispatcher, services.LedgerOptions{Currency: "eur"})
	notifications := services.NewNotificationService(db)
	payments := services.NewPaymentService(ledger, env.provider, services.NoopLocker{}, notifications)

	env.router = router.SetupRouter(router.Deps{
		DB:            db,
		Catalog:       catalog,
		Pricing:       pricing,
		Cart:          cart,
		Ledger:        ledger,
		Payments:      payments,
		Monitor:       services.NewPaymentMonitor(ledger, payments, 0, 0),
		Notifications: notifications,
		Hub:           env.hub,
		WebhookKey:    "verify-key",
	})
	return env
}

func (e *testEnv) token(t *testing.T, u models.User) string {
	t.Helper()
	tok, err := utils.GenerateToken(u.ID, u.Role)
	require.NoError(t, err)
	return tok
}

// call performs a request and decodes the JSON envelope.
func (e *testEnv) call(t *testing.T, method, path string, body interface{}, token string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func (e *testEnv) addToCart(t *testing.T, token string, user models.User, food models.FoodItem, qty int) {
	t.Helper()
	code, resp := e.call(t, http.MethodPost, "/api/cart/add", gin.H{"user_id": user.ID, "food_item_id": food.ID, "quantity": qty}, token)
	require.Equal(t, http.StatusOK, code, resp)
}

func data(resp map[string]interface{}) map[string]interface{} {
	d, _ := resp["data"].(map[string]interface{})
	return d
}
