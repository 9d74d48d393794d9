package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	"github.com/marcus-menezes/starstore-backend/internal/event"
	"github.com/marcus-menezes/starstore-backend/internal/identity"
	"github.com/marcus-menezes/starstore-backend/internal/store"
	apperrors "github.com/marcus-menezes/starstore-backend/pkg/errors"
)

// --- Mocks ---

type mockSnapshotStore struct {
	mock.Mock
}

func (m *mockSnapshotStore) Get(ctx context.Context, key string) ([]domain.CartItem, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CartItem), args.Error(1)
}

func (m *mockSnapshotStore) Save(ctx context.Context, key string, items []domain.CartItem) error {
	args := m.Called(ctx, key, items)
	return args.Error(0)
}

func (m *mockSnapshotStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishCartUpdated(ctx context.Context, sessionID string, items []domain.CartItem) error {
	args := m.Called(ctx, sessionID, items)
	return args.Error(0)
}

func (m *mockEvents) PublishCartSynced(ctx context.Context, data event.CartSyncedData) error {
	args := m.Called(ctx, data)
	return args.Error(0)
}

func (m *mockEvents) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testProduct(id string, price float64) domain.Product {
	return domain.Product{ID: id, Name: "Product " + id, Price: price, Seller: "StarStore"}
}

func testItem(id string, price float64, qty int) domain.CartItem {
	return domain.CartItem{Product: testProduct(id, price), Quantity: qty}
}

func newTestSyncer(snapshots *mockSnapshotStore) (*Syncer, *store.Manager) {
	stores := store.NewManager(nil)
	return NewSyncer(stores, snapshots, nil, newTestLogger()), stores
}

// --- Tests ---

func TestObserve_FirstObservationDoesNothing(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))

	// No Get/Save/Delete expectations registered: any storage call fails the test.
	syncer.Observe(ctx, "sess-1", identity.User("user-1"))

	assert.Len(t, cart.Items(), 1)
	snapshots.AssertExpectations(t)
}

func TestObserve_UnchangedIdentityDoesNothing(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))

	syncer.Observe(ctx, "sess-1", identity.Guest())
	syncer.Observe(ctx, "sess-1", identity.Guest())
	syncer.Observe(ctx, "sess-1", identity.Guest())

	assert.Len(t, cart.Items(), 1)
	snapshots.AssertExpectations(t)
}

func TestObserve_GuestSignsIn_MergesCarts(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 199.99))
	cart.AddItem(testProduct("p1", 199.99))
	cart.AddItem(testProduct("p2", 499.99))

	stored := []domain.CartItem{testItem("p1", 199.99, 1), testItem("p3", 50, 1)}

	snapshots.On("Save", ctx, "guest:sess-1", mock.Anything).Return(nil)
	snapshots.On("Get", ctx, "user:user-1").Return(stored, nil)
	snapshots.On("Delete", ctx, "guest:sess-1").Return(nil)

	syncer.Observe(ctx, "sess-1", identity.Guest())
	syncer.Observe(ctx, "sess-1", identity.User("user-1"))

	items := cart.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "p1", items[0].Product.ID)
	assert.Equal(t, 3, items[0].Quantity) // 1 stored + 2 from the guest cart
	assert.Equal(t, "p3", items[1].Product.ID)
	assert.Equal(t, 1, items[1].Quantity)
	assert.Equal(t, "p2", items[2].Product.ID)
	assert.Equal(t, 1, items[2].Quantity)

	snapshots.AssertExpectations(t)
}

func TestObserve_GuestSignsIn_NoStoredUserCart(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))

	snapshots.On("Save", ctx, "guest:sess-1", mock.Anything).Return(nil)
	snapshots.On("Get", ctx, "user:user-1").Return(nil, apperrors.NotFound("cart snapshot", "user:user-1"))
	snapshots.On("Delete", ctx, "guest:sess-1").Return(nil)

	syncer.Observe(ctx, "sess-1", identity.Guest())
	syncer.Observe(ctx, "sess-1", identity.User("user-1"))

	// The guest cart survives the sign-in unchanged.
	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].Product.ID)

	snapshots.AssertExpectations(t)
}

func TestObserve_UserSignsOut_SwapsWithoutMerging(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))

	guestItems := []domain.CartItem{testItem("p9", 5, 2)}

	snapshots.On("Save", ctx, "user:user-1", mock.Anything).Return(nil)
	snapshots.On("Get", ctx, "guest:sess-1").Return(guestItems, nil)

	syncer.Observe(ctx, "sess-1", identity.User("user-1"))
	syncer.Observe(ctx, "sess-1", identity.Guest())

	// Sign-out replaces the cart with the guest snapshot; the user's items
	// must not leak in, and no Delete happens.
	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p9", items[0].Product.ID)
	assert.Equal(t, 2, items[0].Quantity)

	snapshots.AssertExpectations(t)
	snapshots.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestObserve_UserSwitchesUser(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))

	otherItems := []domain.CartItem{testItem("p2", 20, 1)}

	snapshots.On("Save", ctx, "user:user-1", mock.Anything).Return(nil)
	snapshots.On("Get", ctx, "user:user-2").Return(otherItems, nil)

	syncer.Observe(ctx, "sess-1", identity.User("user-1"))
	syncer.Observe(ctx, "sess-1", identity.User("user-2"))

	items := cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "p2", items[0].Product.ID)

	snapshots.AssertExpectations(t)
	snapshots.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestObserve_SignOutWithoutLiveCart_PreservesStoredUserCart(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	// The session never touched a cart endpoint, so no store exists. The
	// user's persisted snapshot must survive the sign-out untouched.
	stored := []domain.CartItem{testItem("p1", 199.99, 2)}
	snapshots.On("Get", ctx, "user:user-1").Return(stored, nil)
	snapshots.On("Get", ctx, "guest:sess-1").Return(nil, apperrors.NotFound("cart snapshot", "guest:sess-1"))

	syncer.Observe(ctx, "sess-1", identity.User("user-1"))
	syncer.Observe(ctx, "sess-1", identity.Guest())

	assert.Empty(t, stores.Get("sess-1").Items())
	snapshots.AssertExpectations(t)
	snapshots.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestObserve_SignInWithoutLiveCart_MergesPersistedGuestCart(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	// No live store: the guest cart exists only as a persisted snapshot
	// (e.g. the server restarted between adding items and signing in). It
	// must still be absorbed into the user's cart, not deleted unmerged.
	guestItems := []domain.CartItem{testItem("p1", 199.99, 2)}
	stored := []domain.CartItem{testItem("p1", 199.99, 1), testItem("p3", 50, 1)}

	snapshots.On("Get", ctx, "guest:sess-1").Return(guestItems, nil)
	snapshots.On("Get", ctx, "user:user-1").Return(stored, nil)
	snapshots.On("Delete", ctx, "guest:sess-1").Return(nil)

	syncer.Observe(ctx, "sess-1", identity.Guest())
	syncer.Observe(ctx, "sess-1", identity.User("user-1"))

	items := stores.Get("sess-1").Items()
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].Product.ID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "p3", items[1].Product.ID)

	snapshots.AssertExpectations(t)
	snapshots.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestObserve_SavesOutgoingCartBeforeSwap(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))
	cart.AddItem(testProduct("p1", 10))

	var saved []domain.CartItem
	snapshots.On("Save", ctx, "guest:sess-1", mock.Anything).Run(func(args mock.Arguments) {
		saved = args.Get(2).([]domain.CartItem)
	}).Return(nil)
	snapshots.On("Get", ctx, "user:user-1").Return(nil, apperrors.NotFound("cart snapshot", "user:user-1"))
	snapshots.On("Delete", ctx, "guest:sess-1").Return(nil)

	syncer.Observe(ctx, "sess-1", identity.Guest())
	syncer.Observe(ctx, "sess-1", identity.User("user-1"))

	require.Len(t, saved, 1)
	assert.Equal(t, "p1", saved[0].Product.ID)
	assert.Equal(t, 2, saved[0].Quantity)
}

func TestObserve_SaveFailureDoesNotAbortSwap(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))

	stored := []domain.CartItem{testItem("p2", 20, 1)}

	snapshots.On("Save", ctx, "guest:sess-1", mock.Anything).Return(errors.New("redis down"))
	snapshots.On("Get", ctx, "user:user-1").Return(stored, nil)
	snapshots.On("Delete", ctx, "guest:sess-1").Return(nil)

	syncer.Observe(ctx, "sess-1", identity.Guest())
	syncer.Observe(ctx, "sess-1", identity.User("user-1"))

	// The swap still completes; the guest items merge from the live cart.
	items := cart.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "p2", items[0].Product.ID)
	assert.Equal(t, "p1", items[1].Product.ID)
}

func TestObserve_LoadFailureTreatedAsEmptyCart(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))

	snapshots.On("Save", ctx, "user:user-1", mock.Anything).Return(nil)
	snapshots.On("Get", ctx, "guest:sess-1").Return(nil, errors.New("redis down"))

	syncer.Observe(ctx, "sess-1", identity.User("user-1"))
	syncer.Observe(ctx, "sess-1", identity.Guest())

	assert.Empty(t, cart.Items())
}

func TestObserve_DeleteFailureKeepsMergedCart(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))

	snapshots.On("Save", ctx, "guest:sess-1", mock.Anything).Return(nil)
	snapshots.On("Get", ctx, "user:user-1").Return(nil, apperrors.NotFound("cart snapshot", "user:user-1"))
	snapshots.On("Delete", ctx, "guest:sess-1").Return(errors.New("redis down"))

	syncer.Observe(ctx, "sess-1", identity.Guest())
	syncer.Observe(ctx, "sess-1", identity.User("user-1"))

	assert.Len(t, cart.Items(), 1)
}

func TestObserve_PublishesCartSyncedEvent(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	events := new(mockEvents)
	stores := store.NewManager(nil)
	syncer := NewSyncer(stores, snapshots, events, newTestLogger())
	ctx := context.Background()

	cart, _ := stores.GetOrCreate("sess-1")
	cart.AddItem(testProduct("p1", 10))

	snapshots.On("Save", ctx, "guest:sess-1", mock.Anything).Return(nil)
	snapshots.On("Get", ctx, "user:user-1").Return(nil, apperrors.NotFound("cart snapshot", "user:user-1"))
	snapshots.On("Delete", ctx, "guest:sess-1").Return(nil)
	events.On("PublishCartSynced", ctx, event.CartSyncedData{
		SessionID:    "sess-1",
		FromIdentity: "guest",
		ToIdentity:   "user-1",
		Merged:       true,
		ItemCount:    1,
	}).Return(nil)

	syncer.Observe(ctx, "sess-1", identity.Guest())
	syncer.Observe(ctx, "sess-1", identity.User("user-1"))

	events.AssertExpectations(t)
}

func TestObserve_SessionsAreIndependent(t *testing.T) {
	snapshots := new(mockSnapshotStore)
	syncer, stores := newTestSyncer(snapshots)
	ctx := context.Background()

	cartA, _ := stores.GetOrCreate("sess-a")
	cartA.AddItem(testProduct("p1", 10))
	cartB, _ := stores.GetOrCreate("sess-b")
	cartB.AddItem(testProduct("p2", 20))

	snapshots.On("Save", ctx, "guest:sess-a", mock.Anything).Return(nil)
	snapshots.On("Get", ctx, "user:user-1").Return(nil, apperrors.NotFound("cart snapshot", "user:user-1"))
	snapshots.On("Delete", ctx, "guest:sess-a").Return(nil)

	syncer.Observe(ctx, "sess-a", identity.Guest())
	syncer.Observe(ctx, "sess-b", identity.Guest())
	syncer.Observe(ctx, "sess-a", identity.User("user-1"))

	// Session B's identity never changed, so its cart is untouched.
	assert.Len(t, cartB.Items(), 1)
	assert.Equal(t, "p2", cartB.Items()[0].Product.ID)
	snapshots.AssertExpectations(t)
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "guest:sess-1", snapshotKey("sess-1", identity.Guest()))
	assert.Equal(t, "user:user-1", snapshotKey("sess-1", identity.User("user-1")))
}
