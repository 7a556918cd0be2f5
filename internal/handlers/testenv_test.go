package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/restitch/marketplace/internal/models"
)

type recordedEvent struct {
	Topic string
	Key   string
	Event map[string]any
}

// recordingPublisher stands in for the Kafka producer.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Topic: topic, Key: key, Event: m})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Topic
	}
	return out
}

type testEnv struct {
	t      *testing.T
	e      *echo.Echo
	db     *gorm.DB
	pub    *recordingPublisher
	auth   *AuthHandler
	cart   *CartHandler
	orders *OrderHandler
	prods  *ProductHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	// A file-backed DB per test: sqlite ":memory:" would give every pooled
	// connection its own empty database.
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.CartItem{},
		&models.Order{},
		&models.RefreshToken{},
	))

	pub := &recordingPublisher{}
	env := &testEnv{
		t:   t,
		e:   echo.New(),
		db:  db,
		pub: pub,
	}
	env.auth = &AuthHandler{
		DB:            db,
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		Producer:      pub,
	}
	env.cart = &CartHandler{DB: db, Producer: pub}
	env.orders = &OrderHandler{DB: db, Producer: pub, WebhookSecret: []byte("hook-secret")}
	env.prods = &ProductHandler{DB: db, Producer: pub}
	return env
}

func (env *testEnv) doJSONRequest(method, path string, body any) (*httptest.ResponseRecorder, echo.Context) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	return rec, c
}

// as stamps the caller's identity the way RequireLogin would.
func as(c echo.Context, userID uint) {
	c.Set("userID", userID)
	c.Set("role", "user")
}

func (env *testEnv) createUser(username string) models.User {
	user := models.User{Username: username, PasswordHash: "x", Role: "user"}
	require.NoError(env.t, env.db.Create(&user).Error)
	return user
}

func (env *testEnv) createProduct(sellerID uint, title string, price float64) models.Product {
	product := models.Product{
		SellerID: sellerID,
		Title:    title,
		Price:    price,
		Status:   models.ProductAvailable,
	}
	require.NoError(env.t, env.db.Create(&product).Error)
	return product
}

func (env *testEnv) setStatus(order *models.Order, status string) {
	require.NoError(env.t, env.db.Model(order).Update("status", status).Error)
	order.Status = status
}

func (env *testEnv) reloadOrder(id uint) models.Order {
	var order models.Order
	require.NoError(env.t, env.db.First(&order, id).Error)
	return order
}

func (env *testEnv) reloadProduct(id uint) models.Product {
	var product models.Product
	require.NoError(env.t, env.db.First(&product, id).Error)
	return product
}

func (env *testEnv) reloadUser(id uint) models.User {
	var user models.User
	require.NoError(env.t, env.db.First(&user, id).Error)
	return user
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code)
	var resp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, code, resp.Code)
}
