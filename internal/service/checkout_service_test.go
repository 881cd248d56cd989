package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"spice-commerce/internal/gateway"
	"spice-commerce/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- in-memory fakes ----

type fakeOrderStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[string]*models.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*models.Order)}
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func (f *fakeOrderStore) CreateOrder(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order.ID = f.nextID
	f.orders[order.MerchantOrderID] = copyOrder(order)
	return nil
}

func (f *fakeOrderStore) GetOrderByMerchantOrderID(_ context.Context, merchantOrderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[merchantOrderID]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (f *fakeOrderStore) GetOrderByMerchantOrderIDForUser(_ context.Context, merchantOrderID, userID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[merchantOrderID]
	if !ok || order.UserID != userID {
		return nil, models.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (f *fakeOrderStore) GetOrderForUser(_ context.Context, orderID int64, userID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.ID == orderID && order.UserID == userID {
			return copyOrder(order), nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (f *fakeOrderStore) ListOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			out = append(out, *copyOrder(order))
		}
	}
	return out, nil
}

func (f *fakeOrderStore) SetGatewayDetails(_ context.Context, orderID int64, providerTxnID, redirectURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.ID == orderID {
			order.ProviderTxnID = providerTxnID
			order.ProviderRedirectURL = redirectURL
			return nil
		}
	}
	return models.ErrOrderNotFound
}

// TransitionPaymentStatus mirrors the conditional UPDATE: only an order still
// pending transitions, and only one caller wins under concurrency.
func (f *fakeOrderStore) TransitionPaymentStatus(_ context.Context, merchantOrderID, paymentStatus, orderStatus, providerCode, providerMessage, providerTxnID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[merchantOrderID]
	if !ok || order.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	order.PaymentStatus = paymentStatus
	order.OrderStatus = orderStatus
	order.ProviderCode = providerCode
	order.ProviderMessage = providerMessage
	if providerTxnID != "" {
		order.ProviderTxnID = providerTxnID
	}
	return true, nil
}

type fakeAddressStore struct {
	addresses map[int64]models.Address
}

func (f *fakeAddressStore) GetAddressForUser(_ context.Context, addressID int64, userID string) (*models.Address, error) {
	addr, ok := f.addresses[addressID]
	if !ok || addr.UserID != userID {
		return nil, models.ErrInvalidAddress
	}
	cp := addr
	return &cp, nil
}

type fakeCartStore struct {
	mu      sync.Mutex
	carts   map[string][]models.CartItem
	deletes int32
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: make(map[string][]models.CartItem)}
}

func (f *fakeCartStore) GetCart(_ context.Context, userID string) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := &models.Cart{UserID: userID, Items: append([]models.CartItem(nil), f.carts[userID]...)}
	cart.TotalAmount = cart.Total()
	return cart, nil
}

func (f *fakeCartStore) DeleteCart(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, userID)
	atomic.AddInt32(&f.deletes, 1)
	return nil
}

type fakeGateway struct {
	initiateErr   error
	statusResult  *gateway.StatusResult
	statusErr     error
	statusCalls   int32
	initiateCalls int32
}

func (f *fakeGateway) Initiate(_ context.Context, _ int64, merchantOrderID string) (*gateway.InitiationResult, error) {
	atomic.AddInt32(&f.initiateCalls, 1)
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return &gateway.InitiationResult{
		RedirectURL:   "https://pay.example.com/" + merchantOrderID,
		ProviderTxnID: "TXN-" + merchantOrderID[:8],
	}, nil
}

func (f *fakeGateway) QueryStatus(_ context.Context, _ string) (*gateway.StatusResult, error) {
	atomic.AddInt32(&f.statusCalls, 1)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusResult, nil
}

func (f *fakeGateway) ValidateCallback(_ string, _ []byte) (string, *gateway.StatusResult, error) {
	return "", nil, models.ErrInvalidCallback
}

type fakeEvents struct {
	created   int32
	completed int32
	failed    int32
}

func (f *fakeEvents) PublishOrderCreated(_ context.Context, _ *models.OrderCreatedEvent) error {
	atomic.AddInt32(&f.created, 1)
	return nil
}

func (f *fakeEvents) PublishPaymentCompleted(_ context.Context, _ *models.PaymentCompletedEvent) error {
	atomic.AddInt32(&f.completed, 1)
	return nil
}

func (f *fakeEvents) PublishPaymentFailed(_ context.Context, _ *models.PaymentFailedEvent) error {
	atomic.AddInt32(&f.failed, 1)
	return nil
}

// ---- fixtures ----

const testUser = "user-1"

func newTestService(t *testing.T) (*CheckoutService, *fakeOrderStore, *fakeCartStore, *fakeGateway, *fakeEvents) {
	t.Helper()
	orders := newFakeOrderStore()
	carts := newFakeCartStore()
	carts.carts[testUser] = []models.CartItem{
		{ProductID: 1, ProductName: "Kashmiri Chilli", UnitPrice: 4900, Quantity: 2},
	}
	addresses := &fakeAddressStore{addresses: map[int64]models.Address{
		10: {ID: 10, UserID: testUser, AddressName: "Home", Name: "Asha", Phone: "9000000000",
			AddressLine1: "12 Spice Lane", City: "Kochi", State: "Kerala", Pincode: "682001"},
	}}
	gw := &fakeGateway{}
	events := &fakeEvents{}
	svc := NewCheckoutService(orders, addresses, carts, gw, events)
	return svc, orders, carts, gw, events
}

func successResult() *gateway.StatusResult {
	return &gateway.StatusResult{
		State:         gateway.StateSuccess,
		Code:          "PAYMENT_SUCCESS",
		Message:       "payment completed",
		ProviderTxnID: "TXN-abc",
	}
}

// ---- tests ----

func TestCreateOrderSnapshotsCartAndAddress(t *testing.T) {
	svc, orders, carts, _, events := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)
	require.NotEmpty(t, result.MerchantOrderID)
	assert.Contains(t, result.RedirectURL, result.MerchantOrderID)

	order, err := orders.GetOrderByMerchantOrderID(context.Background(), result.MerchantOrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(9800), order.TotalAmount)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, order.OrderStatus)
	assert.Equal(t, "Kochi", order.DeliveryAddress.City)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Kashmiri Chilli", order.Items[0].ProductName)

	// The cart is never touched by mere initiation.
	cart, err := carts.GetCart(context.Background(), testUser)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.EqualValues(t, 1, events.created)
}

func TestCreateOrderSnapshotIsolation(t *testing.T) {
	svc, orders, carts, _, _ := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	// Mutate the cart after order creation; the order's snapshot and total
	// must not move.
	carts.mu.Lock()
	carts.carts[testUser][0].UnitPrice = 99999
	carts.carts[testUser][0].Quantity = 7
	carts.mu.Unlock()

	order, err := orders.GetOrderByMerchantOrderID(context.Background(), result.MerchantOrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(9800), order.TotalAmount)
	assert.Equal(t, int64(4900), order.Items[0].UnitPrice)
	assert.Equal(t, 2, order.Items[0].Quantity)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	svc, orders, carts, gw, _ := newTestService(t)
	carts.carts[testUser] = nil

	_, err := svc.CreateOrder(context.Background(), testUser, 10)
	assert.ErrorIs(t, err, models.ErrEmptyCart)
	assert.Empty(t, orders.orders)
	assert.EqualValues(t, 0, gw.initiateCalls)
}

func TestCreateOrderInvalidAddress(t *testing.T) {
	svc, orders, _, gw, _ := newTestService(t)

	_, err := svc.CreateOrder(context.Background(), testUser, 999)
	assert.ErrorIs(t, err, models.ErrInvalidAddress)
	assert.Empty(t, orders.orders)
	assert.EqualValues(t, 0, gw.initiateCalls)
}

func TestCreateOrderGatewayFailure(t *testing.T) {
	svc, orders, carts, gw, _ := newTestService(t)
	gw.initiateErr = errors.New("connection refused")

	_, err := svc.CreateOrder(context.Background(), testUser, 10)
	assert.ErrorIs(t, err, models.ErrPaymentInitiation)

	// The pending order is retained for late-callback correlation; the cart
	// stays intact for retry.
	require.Len(t, orders.orders, 1)
	for _, order := range orders.orders {
		assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
		assert.Empty(t, order.ProviderRedirectURL)
	}
	cart, _ := carts.GetCart(context.Background(), testUser)
	assert.Len(t, cart.Items, 1)
}

func TestReconcileSuccessClearsCartOnce(t *testing.T) {
	svc, _, carts, _, events := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	order, err := svc.Reconcile(context.Background(), SourceCallback, result.MerchantOrderID, successResult())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusNotApplicable, order.OrderStatus)

	cart, _ := carts.GetCart(context.Background(), testUser)
	assert.Empty(t, cart.Items)
	assert.EqualValues(t, 1, carts.deletes)
	assert.EqualValues(t, 1, events.completed)
}

func TestReconcileDuplicateCallbackIsNoOp(t *testing.T) {
	svc, _, carts, _, events := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	_, err = svc.Reconcile(context.Background(), SourceCallback, result.MerchantOrderID, successResult())
	require.NoError(t, err)

	// Provider redelivery of the same notification.
	order, err := svc.Reconcile(context.Background(), SourceCallback, result.MerchantOrderID, successResult())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.EqualValues(t, 1, carts.deletes)
	assert.EqualValues(t, 1, events.completed)
}

func TestReconcileTerminalStateIsSticky(t *testing.T) {
	svc, _, carts, _, _ := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	_, err = svc.Reconcile(context.Background(), SourceCallback, result.MerchantOrderID, &gateway.StatusResult{
		State: gateway.StateFailure, Code: "PAYMENT_ERROR", Message: "declined",
	})
	require.NoError(t, err)

	// A stale contradictory success must not resurrect a failed order, and
	// must not clear the cart.
	order, err := svc.Reconcile(context.Background(), SourceCallback, result.MerchantOrderID, successResult())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, "PAYMENT_ERROR", order.ProviderCode)
	assert.EqualValues(t, 0, carts.deletes)
}

func TestReconcileFailureLeavesCart(t *testing.T) {
	svc, _, carts, _, events := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	order, err := svc.Reconcile(context.Background(), SourceRedirect, result.MerchantOrderID, &gateway.StatusResult{
		State: gateway.StateFailure, Code: "SOMETHING_NEW", Message: "unrecognized",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, order.OrderStatus)

	cart, _ := carts.GetCart(context.Background(), testUser)
	assert.Len(t, cart.Items, 1)
	assert.EqualValues(t, 0, carts.deletes)
	assert.EqualValues(t, 1, events.failed)
}

func TestReconcileUnknownOrder(t *testing.T) {
	svc, _, carts, _, _ := newTestService(t)

	_, err := svc.Reconcile(context.Background(), SourceCallback, "no-such-id", successResult())
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
	assert.EqualValues(t, 0, carts.deletes)
}

func TestReconcilePendingIsNoOp(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	order, err := svc.Reconcile(context.Background(), SourcePoll, result.MerchantOrderID, &gateway.StatusResult{
		State: gateway.StatePending, Code: "PAYMENT_PENDING",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)

	// A later definitive outcome still lands.
	order, err = svc.Reconcile(context.Background(), SourcePoll, result.MerchantOrderID, successResult())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
}

func TestReconcileConcurrentSuccessClearsCartExactlyOnce(t *testing.T) {
	svc, _, carts, _, events := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, _ = svc.Reconcile(context.Background(), SourceCallback, result.MerchantOrderID, successResult())
		}()
	}
	wg.Wait()

	order, err := svc.CheckStatus(context.Background(), testUser, result.MerchantOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.EqualValues(t, 1, carts.deletes)
	assert.EqualValues(t, 1, events.completed)
}

func TestCheckStatusPollDrivesReconciliation(t *testing.T) {
	svc, _, carts, gw, _ := newTestService(t)
	gw.statusResult = successResult()

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	order, err := svc.CheckStatus(context.Background(), testUser, result.MerchantOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.Equal(t, models.OrderStatusNotApplicable, order.OrderStatus)
	assert.EqualValues(t, 1, carts.deletes)
	assert.EqualValues(t, 1, gw.statusCalls)
}

func TestCheckStatusTerminalSkipsGateway(t *testing.T) {
	svc, _, _, gw, _ := newTestService(t)
	gw.statusResult = successResult()

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)
	_, err = svc.Reconcile(context.Background(), SourceCallback, result.MerchantOrderID, successResult())
	require.NoError(t, err)

	gw.statusCalls = 0
	order, err := svc.CheckStatus(context.Background(), testUser, result.MerchantOrderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, order.PaymentStatus)
	assert.EqualValues(t, 0, gw.statusCalls)
}

func TestCheckStatusScopedToOwner(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	_, err = svc.CheckStatus(context.Background(), "someone-else", result.MerchantOrderID)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestCheckStatusGatewayErrorIsRetryable(t *testing.T) {
	svc, _, _, gw, _ := newTestService(t)
	gw.statusErr = fmt.Errorf("%w: timeout", models.ErrGatewayUnavailable)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	_, err = svc.CheckStatus(context.Background(), testUser, result.MerchantOrderID)
	assert.ErrorIs(t, err, models.ErrGatewayUnavailable)
}

func TestGetOrderScopedToOwner(t *testing.T) {
	svc, orders, _, _, _ := newTestService(t)

	result, err := svc.CreateOrder(context.Background(), testUser, 10)
	require.NoError(t, err)

	order, err := orders.GetOrderByMerchantOrderID(context.Background(), result.MerchantOrderID)
	require.NoError(t, err)

	_, err = svc.GetOrder(context.Background(), "someone-else", order.ID)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	got, err := svc.GetOrder(context.Background(), testUser, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.MerchantOrderID, got.MerchantOrderID)
}
