package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	"github.com/marcus-menezes/starstore-backend/internal/service"
	"github.com/marcus-menezes/starstore-backend/internal/store"
	apperrors "github.com/marcus-menezes/starstore-backend/pkg/errors"
	"github.com/marcus-menezes/starstore-backend/pkg/health"
	"github.com/marcus-menezes/starstore-backend/pkg/logger"
	"github.com/marcus-menezes/starstore-backend/pkg/pagination"
)

// fakeSnapshotStore is an in-memory repository.SnapshotStore for router tests.
type fakeSnapshotStore struct {
	mu    sync.Mutex
	carts map[string][]domain.CartItem
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{carts: make(map[string][]domain.CartItem)}
}

func (f *fakeSnapshotStore) Get(ctx context.Context, key string) ([]domain.CartItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.carts[key]
	if !ok {
		return nil, apperrors.NotFound("cart snapshot", key)
	}
	cp := make([]domain.CartItem, len(items))
	copy(cp, items)
	return cp, nil
}

func (f *fakeSnapshotStore) Save(ctx context.Context, key string, items []domain.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]domain.CartItem, len(items))
	copy(cp, items)
	f.carts[key] = cp
	return nil
}

func (f *fakeSnapshotStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, key)
	return nil
}

// fakeOrderRepo is an in-memory repository.OrderRepository for router tests.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*domain.Order)}
}

func (f *fakeOrderRepo) Create(ctx context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderRepo) ListByUser(ctx context.Context, userID string, params pagination.Params) ([]domain.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, len(out), nil
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, id string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return apperrors.NotFound("order", id)
	}
	order.Status = status
	return nil
}

// fakeCatalog serves a fixed product list.
type fakeCatalog struct {
	products []domain.Product
}

func (f *fakeCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return f.products, nil
}

func (f *fakeCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	for i := range f.products {
		if f.products[i].ID == id {
			p := f.products[i]
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("product", id)
}

func newTestRouter(t *testing.T) (http.Handler, *fakeSnapshotStore) {
	t.Helper()

	log := logger.NewWithWriter("test", "error", testWriter{t})
	snapshots := newFakeSnapshotStore()
	stores := store.NewManager(nil)
	syncer := service.NewSyncer(stores, snapshots, nil, log)
	cartService := service.NewCartService(stores, snapshots, nil, log)
	orderService := service.NewOrderService(stores, newFakeOrderRepo(), snapshots, nil, log)

	catalog := &fakeCatalog{products: []domain.Product{
		{ID: "prod-1", Name: "Galaxy Lamp", Price: 199.99, Seller: "StarStore"},
		{ID: "prod-2", Name: "Nebula Poster", Price: 499.99, Seller: "StarStore"},
	}}

	router := NewRouter(RouterConfig{
		CartService:   cartService,
		OrderService:  orderService,
		Syncer:        syncer,
		Catalog:       catalog,
		HealthHandler: health.NewHandler(),
		JWTSecret:     testSecret,
		Logger:        log,
	})
	return router, snapshots
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

type cartResponse struct {
	Data struct {
		Items []domain.CartItem `json:"items"`
		Count int               `json:"itemCount"`
		Total float64           `json:"total"`
	} `json:"data"`
}

func doJSON(t *testing.T, router http.Handler, method, path, sessionID, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartResponse {
	t.Helper()
	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCartEndpoints_RequireSession(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/cart", "", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCart_EmptyForNewSession(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/cart", "sess-1", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	assert.Empty(t, resp.Data.Items)
	assert.Zero(t, resp.Data.Total)
}

func TestAddItem_ResolvesProductFromCatalog(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", "",
		AddItemRequest{ProductID: "prod-1"})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, "Galaxy Lamp", resp.Data.Items[0].Product.Name)
	assert.InDelta(t, 199.99, resp.Data.Items[0].Product.Price, 0.001)
}

func TestAddItem_UnknownProduct(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", "",
		AddItemRequest{ProductID: "prod-999"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddItem_MissingProductID(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", "",
		map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateQuantity_ZeroRemoves(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", "",
		AddItemRequest{ProductID: "prod-1"})

	rec := doJSON(t, router, http.MethodPut, "/api/v1/cart/items/prod-1", "sess-1", "",
		UpdateQuantityRequest{Quantity: 0})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Data.Items)
}

func TestSignIn_MergesGuestCartIntoUserCart(t *testing.T) {
	router, snapshots := newTestRouter(t)
	token := signToken(t, "user-1", time.Hour)

	// The user already has a stored cart from an earlier session.
	require.NoError(t, snapshots.Save(context.Background(), "user:user-1", []domain.CartItem{
		{Product: domain.Product{ID: "prod-1", Name: "Galaxy Lamp", Price: 199.99}, Quantity: 1},
	}))

	// Browsing as guest, two units of prod-1 and one of prod-2.
	doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", "", AddItemRequest{ProductID: "prod-1"})
	doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", "", AddItemRequest{ProductID: "prod-1"})
	doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", "", AddItemRequest{ProductID: "prod-2"})

	// First signed-in request triggers the merge.
	rec := doJSON(t, router, http.MethodGet, "/api/v1/cart", "sess-1", token, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeCart(t, rec)
	require.Len(t, resp.Data.Items, 2)
	assert.Equal(t, "prod-1", resp.Data.Items[0].Product.ID)
	assert.Equal(t, 3, resp.Data.Items[0].Quantity)
	assert.Equal(t, "prod-2", resp.Data.Items[1].Product.ID)
	assert.Equal(t, 4, resp.Data.Count)

	// The guest snapshot is gone after absorption.
	_, err := snapshots.Get(context.Background(), "guest:sess-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSignOut_RestoresGuestCart(t *testing.T) {
	router, snapshots := newTestRouter(t)
	token := signToken(t, "user-1", time.Hour)

	// Signed-in session with one item.
	doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", token, AddItemRequest{ProductID: "prod-1"})

	// Sign-out: the user's cart is stashed and the (empty) guest cart loads.
	rec := doJSON(t, router, http.MethodGet, "/api/v1/cart", "sess-1", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeCart(t, rec).Data.Items)

	// The user's cart survives under their key.
	items, err := snapshots.Get(context.Background(), "user:user-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "prod-1", items[0].Product.ID)
}

func TestCheckoutFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signToken(t, "user-1", time.Hour)

	doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", token, AddItemRequest{ProductID: "prod-1"})
	doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", token, AddItemRequest{ProductID: "prod-2"})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", "sess-1", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var orderResp struct {
		Data domain.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orderResp))
	assert.Equal(t, "user-1", orderResp.Data.UserID)
	assert.Equal(t, 2, orderResp.Data.ItemCount)
	assert.InDelta(t, 699.98, orderResp.Data.TotalAmount, 0.001)

	// Cart is empty after checkout.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/cart", "sess-1", token, nil)
	assert.Empty(t, decodeCart(t, rec).Data.Items)

	// The order shows up in history.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/orders", "sess-1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// And can be fetched directly.
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/orders/%s", orderResp.Data.ID), "sess-1", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckout_GuestRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	doJSON(t, router, http.MethodPost, "/api/v1/cart/items", "sess-1", "", AddItemRequest{ProductID: "prod-1"})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", "sess-1", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListProductsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
}
