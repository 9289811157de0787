package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-orders/events"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	utils.SilenceLoggers()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

type fakeProvider struct {
	mu        sync.Mutex
	calls     int
	amounts   []int64
	err       error
	statuses  map[string]PaymentOutcome
	statusErr error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req SessionRequest) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.amounts = append(f.amounts, req.AmountMinor)
	code := fmt.Sprintf("%d%04d", req.OrderID, f.calls)
	return &CheckoutSession{CheckoutURL: "https://pay.example/web/checkout?ref=" + code, OrderCode: code}, nil
}

func (f *fakeProvider) CheckStatus(_ context.Context, orderCode string) (PaymentOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return OutcomeUnknown, f.statusErr
	}
	if s, ok := f.statuses[orderCode]; ok {
		return s, nil
	}
	return OutcomePending, nil
}

func (f *fakeProvider) ParseWebhook(body []byte, _ http.Header) (*PaymentEvent, error) {
	return ParseProviderWebhook(f.Name(), body)
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) Publish(_ context.Context, evt events.OrderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, evt.Type)
}

func (r *recordingEvents) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

type fixture struct {
	db       *gorm.DB
	manager  models.User
	staff    models.User
	staff2   models.User
	foodA    models.FoodItem
	foodB    models.FoodItem
	soldOut  models.FoodItem
	cart     *CartService
	ledger   *OrderLedger
	provider *fakeProvider
	events   *recordingEvents
	notes    *NotificationService
	payments *PaymentService
}

func newFixture(t *testing.T, opts ...func(*LedgerOptions)) *fixture {
	t.Helper()
	db := setupTestDB(t)

	f := &fixture{db: db, provider: &fakeProvider{statuses: map[string]PaymentOutcome{}}, events: &recordingEvents{}}
	f.manager = models.User{Name: "Maria", Email: "manager@test.local", Password: "x", Role: models.RoleManager}
	f.staff = models.User{Name: "Sam", Email: "staff@test.local", Password: "x", Role: models.RoleStaff}
	f.staff2 = models.User{Name: "Kim", Email: "staff2@test.local", Password: "x", Role: models.RoleStaff}
	for _, u := range []*models.User{&f.manager, &f.staff, &f.staff2} {
		require.NoError(t, db.Create(u).Error)
	}
	for _, no := range []int{3, 5} {
		require.NoError(t, db.Create(&models.Table{TableNo: no, ManagerID: f.manager.ID}).Error)
	}

	f.foodA = models.FoodItem{Name: "Souvlaki", BasePrice: dec("10.00"), IsAvailable: true, Image: "a.jpg"}
	f.foodB = models.FoodItem{Name: "Salad", BasePrice: dec("5.00"), IsAvailable: true, Image: "b.jpg"}
	f.soldOut = models.FoodItem{Name: "Moussaka", BasePrice: dec("12.50"), IsAvailable: true}
	for _, it := range []*models.FoodItem{&f.foodA, &f.foodB, &f.soldOut} {
		require.NoError(t, db.Create(it).Error)
	}
	require.NoError(t, db.Model(&f.soldOut).Update("is_available", false).Error)
	f.soldOut.IsAvailable = false

	lo := LedgerOptions{Currency: "eur"}
	for _, o := range opts {
		o(&lo)
	}

	pricing := NewPricingEngine(DefaultTaxRate)
	directory := NewGormDirectory(db)
	f.cart = NewCartService(db, NewGormCatalog(db), directory, pricing)
	f.ledger = NewOrderLedger(db, f.cart, directory, pricing, f.provider, f.events, lo)
	f.notes = NewNotificationService(db)
	f.payments = NewPaymentService(f.ledger, f.provider, NoopLocker{}, f.notes)
	return f
}

func (f *fixture) add(t *testing.T, user models.User, food models.FoodItem, qty int) {
	t.Helper()
	_, err := f.cart.AddItem(context.Background(), user.ID, food.ID, qty)
	require.NoError(t, err)
}

func (f *fixture) countOrders(t *testing.T, tableNo int) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Order{}).Where("table_no = ?", tableNo).Count(&n).Error)
	return n
}

func (f *fixture) cartSize(t *testing.T, user models.User) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Where("user_id = ?", user.ID).Count(&n).Error)
	return n
}

func (f *fixture) backdate(t *testing.T, orderID uint, age time.Duration) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Order{}).Where("id = ?", orderID).
		Update("ordered_at", time.Now().Add(-age)).Error)
}
