package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"staff-sync/internal/backend"
	"staff-sync/internal/models"
	"staff-sync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend implements Backend with per-method function hooks.
type fakeBackend struct {
	listOrders        func(ctx context.Context, page, pageSize int) (*backend.PagedOrders, error)
	getOrder          func(ctx context.Context, code string) (*models.Order, error)
	updateOrderStatus func(ctx context.Context, code string, status int) error
	listKitchen       func(ctx context.Context, params backend.KitchenOrderParams, storeID string) (*backend.PagedProductionOrders, error)
	kitchenDetail     func(ctx context.Context, code, storeID string) ([]models.KitchenOrderDetailItem, error)
	batchChange       func(ctx context.Context, ids []string, status models.ProductionOrderStatus) error
	singleChange      func(ctx context.Context, id string, status models.ProductionOrderStatus) error
}

func (f *fakeBackend) ListOrders(ctx context.Context, page, pageSize int) (*backend.PagedOrders, error) {
	if f.listOrders == nil {
		return &backend.PagedOrders{}, nil
	}
	return f.listOrders(ctx, page, pageSize)
}

func (f *fakeBackend) GetOrder(ctx context.Context, code string) (*models.Order, error) {
	return f.getOrder(ctx, code)
}

func (f *fakeBackend) UpdateOrderStatus(ctx context.Context, code string, status int) error {
	if f.updateOrderStatus == nil {
		return nil
	}
	return f.updateOrderStatus(ctx, code, status)
}

func (f *fakeBackend) ListKitchenOrders(ctx context.Context, params backend.KitchenOrderParams, storeID string) (*backend.PagedProductionOrders, error) {
	if f.listKitchen == nil {
		return &backend.PagedProductionOrders{}, nil
	}
	return f.listKitchen(ctx, params, storeID)
}

func (f *fakeBackend) KitchenOrderDetail(ctx context.Context, code, storeID string) ([]models.KitchenOrderDetailItem, error) {
	return f.kitchenDetail(ctx, code, storeID)
}

func (f *fakeBackend) BatchChangeKitchenStatus(ctx context.Context, ids []string, status models.ProductionOrderStatus) error {
	return f.batchChange(ctx, ids, status)
}

func (f *fakeBackend) ChangeKitchenStatus(ctx context.Context, id string, status models.ProductionOrderStatus) error {
	return f.singleChange(ctx, id, status)
}

func newTestEngine(b Backend) *Engine {
	return NewEngine(b, store.NewNotifications(), Config{
		StoreID:       "store-1",
		PageSize:      2,
		RefreshWindow: time.Hour, // keep the debounce out of the way
	})
}

func pagedOrders(total int, ids ...string) *backend.PagedOrders {
	items := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		items = append(items, models.Order{ID: id})
	}
	return &backend.PagedOrders{Items: items, TotalCount: total}
}

func TestRefreshThenLoadMoreOrders(t *testing.T) {
	fb := &fakeBackend{
		listOrders: func(ctx context.Context, page, pageSize int) (*backend.PagedOrders, error) {
			switch page {
			case 1:
				return pagedOrders(3, "a", "b"), nil
			case 2:
				return pagedOrders(3, "b", "c"), nil
			default:
				return pagedOrders(3), nil
			}
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()

	ctx := context.Background()
	require.NoError(t, e.RefreshOrders(ctx))
	assert.Equal(t, 2, e.Orders().Len())
	assert.True(t, e.Orders().HasMore())

	require.NoError(t, e.LoadMoreOrders(ctx))
	assert.Equal(t, 3, e.Orders().Len())
	assert.False(t, e.Orders().HasMore())

	// No more pages, load-more is a no-op.
	require.NoError(t, e.LoadMoreOrders(ctx))
	assert.Equal(t, 3, e.Orders().Len())
}

func TestRefreshOrdersFailureClears(t *testing.T) {
	calls := 0
	fb := &fakeBackend{
		listOrders: func(ctx context.Context, page, pageSize int) (*backend.PagedOrders, error) {
			calls++
			if calls == 1 {
				return pagedOrders(2, "a", "b"), nil
			}
			return nil, errors.New("backend down")
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()

	ctx := context.Background()
	require.NoError(t, e.RefreshOrders(ctx))
	require.Equal(t, 2, e.Orders().Len())

	require.Error(t, e.RefreshOrders(ctx))
	assert.Zero(t, e.Orders().Len())
	assert.Error(t, e.Orders().Err())
}

func TestRefreshProductionKeepsConfirmedStatus(t *testing.T) {
	fb := &fakeBackend{
		listKitchen: func(ctx context.Context, params backend.KitchenOrderParams, storeID string) (*backend.PagedProductionOrders, error) {
			return &backend.PagedProductionOrders{
				Items:      []models.ProductionOrder{{Code: "PO-1", Status: models.ProductionStatusPending}},
				TotalCount: 1,
			}, nil
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()

	ctx := context.Background()
	require.NoError(t, e.RefreshProduction(ctx))

	// A confirmed advance arrives via the hub.
	e.Production().UpdateWhere("PO-1", func(p models.ProductionOrder) models.ProductionOrder {
		p.Status = models.MergeStatus(p.Status, models.ProductionStatusInProgress)
		return p
	})

	// The backend still serves the stale status; the merge keeps the
	// confirmed one.
	require.NoError(t, e.RefreshProduction(ctx))
	got, ok := e.Production().Get("PO-1")
	require.True(t, ok)
	assert.Equal(t, models.ProductionStatusInProgress, got.Status)
}

func TestProductionFilterScopesFetches(t *testing.T) {
	var gotFilters []map[string]string
	fb := &fakeBackend{
		listKitchen: func(ctx context.Context, params backend.KitchenOrderParams, storeID string) (*backend.PagedProductionOrders, error) {
			gotFilters = append(gotFilters, params.Filters)
			if params.Filters == nil {
				return &backend.PagedProductionOrders{
					Items: []models.ProductionOrder{
						{Code: "PO-1", Status: models.ProductionStatusPending},
						{Code: "PO-2", Status: models.ProductionStatusCompleted},
					},
					TotalCount: 2,
				}, nil
			}
			return &backend.PagedProductionOrders{
				Items:      []models.ProductionOrder{{Code: "PO-2", Status: models.ProductionStatusCompleted}},
				TotalCount: 3,
			}, nil
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()

	ctx := context.Background()
	require.NoError(t, e.RefreshProduction(ctx))
	assert.Equal(t, 2, e.Production().Len())

	e.SetProductionFilter("COMPLETED")
	require.NoError(t, e.RefreshProduction(ctx))
	assert.Equal(t, 1, e.Production().Len())
	_, held := e.Production().Get("PO-1")
	assert.False(t, held)

	require.Len(t, gotFilters, 2)
	assert.Nil(t, gotFilters[0])
	assert.Equal(t, map[string]string{"status": "COMPLETED"}, gotFilters[1])

	// Load-more carries the active scope too.
	require.NoError(t, e.LoadMoreProduction(ctx))
	require.Len(t, gotFilters, 3)
	assert.Equal(t, map[string]string{"status": "COMPLETED"}, gotFilters[2])
}

func TestUpdateOrderPaymentStatusRefetches(t *testing.T) {
	listCalls := 0
	fb := &fakeBackend{
		listOrders: func(ctx context.Context, page, pageSize int) (*backend.PagedOrders, error) {
			listCalls++
			return pagedOrders(1, "a"), nil
		},
		updateOrderStatus: func(ctx context.Context, code string, status int) error {
			return nil
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()

	require.NoError(t, e.UpdateOrderPaymentStatus(context.Background(), "ORD-1", models.PaymentStatusPaid))
	assert.Equal(t, 1, listCalls)
}

func TestUpdateOrderPaymentStatusFailureSkipsRefetch(t *testing.T) {
	listCalls := 0
	fb := &fakeBackend{
		listOrders: func(ctx context.Context, page, pageSize int) (*backend.PagedOrders, error) {
			listCalls++
			return pagedOrders(0), nil
		},
		updateOrderStatus: func(ctx context.Context, code string, status int) error {
			return errors.New("rejected")
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()

	require.Error(t, e.UpdateOrderPaymentStatus(context.Background(), "ORD-1", models.PaymentStatusPaid))
	assert.Zero(t, listCalls)
}

func TestOrderDetailWrapsBackendError(t *testing.T) {
	fb := &fakeBackend{
		getOrder: func(ctx context.Context, code string) (*models.Order, error) {
			if code == "ORD-1" {
				return &models.Order{ID: "a", OrderCode: "ORD-1"}, nil
			}
			return nil, errors.New("not found")
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()

	order, err := e.OrderDetail(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", order.OrderCode)

	_, err = e.OrderDetail(context.Background(), "ORD-2")
	assert.Error(t, err)
}

func TestProductionDetailPassesStoreID(t *testing.T) {
	fb := &fakeBackend{
		kitchenDetail: func(ctx context.Context, code, storeID string) ([]models.KitchenOrderDetailItem, error) {
			assert.Equal(t, "store-1", storeID)
			return []models.KitchenOrderDetailItem{{ID: "l1", OrderCode: code}}, nil
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()

	items, err := e.ProductionDetail(context.Background(), "PO-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "PO-1", items[0].OrderCode)
}

func seedProduction(t *testing.T, e *Engine, status models.ProductionOrderStatus) {
	t.Helper()
	seq := e.Production().BeginFetch("")
	require.True(t, e.Production().ApplyPage(seq, 1, []models.ProductionOrder{
		{Code: "PO-1", Status: status},
	}, 1))
}

func TestAdvanceProductionBatchSuccess(t *testing.T) {
	var batchIDs []string
	fb := &fakeBackend{
		kitchenDetail: func(ctx context.Context, code, storeID string) ([]models.KitchenOrderDetailItem, error) {
			return []models.KitchenOrderDetailItem{{ID: "l1"}, {ID: "l2"}}, nil
		},
		batchChange: func(ctx context.Context, ids []string, status models.ProductionOrderStatus) error {
			batchIDs = ids
			assert.Equal(t, models.ProductionStatusInProgress, status)
			return nil
		},
		listKitchen: func(ctx context.Context, params backend.KitchenOrderParams, storeID string) (*backend.PagedProductionOrders, error) {
			return &backend.PagedProductionOrders{
				Items:      []models.ProductionOrder{{Code: "PO-1", Status: models.ProductionStatusInProgress}},
				TotalCount: 1,
			}, nil
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()
	seedProduction(t, e, models.ProductionStatusPending)

	result, err := e.AdvanceProduction(context.Background(), "PO-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2"}, batchIDs)
	assert.Equal(t, models.ProductionStatusInProgress, result.Status)
	assert.Equal(t, []string{"l1", "l2"}, result.Confirmed)
	assert.Empty(t, result.Failed)

	got, ok := e.Production().Get("PO-1")
	require.True(t, ok)
	assert.Equal(t, models.ProductionStatusInProgress, got.Status)
}

func TestAdvanceProductionFallbackMixedOutcome(t *testing.T) {
	fb := &fakeBackend{
		kitchenDetail: func(ctx context.Context, code, storeID string) ([]models.KitchenOrderDetailItem, error) {
			return []models.KitchenOrderDetailItem{{ID: "l1"}, {ID: "l2"}, {ID: "l3"}}, nil
		},
		batchChange: func(ctx context.Context, ids []string, status models.ProductionOrderStatus) error {
			return errors.New("batch endpoint unavailable")
		},
		singleChange: func(ctx context.Context, id string, status models.ProductionOrderStatus) error {
			if id == "l2" {
				return errors.New("conflict")
			}
			return nil
		},
		listKitchen: func(ctx context.Context, params backend.KitchenOrderParams, storeID string) (*backend.PagedProductionOrders, error) {
			return &backend.PagedProductionOrders{
				Items:      []models.ProductionOrder{{Code: "PO-1", Status: models.ProductionStatusPending}},
				TotalCount: 1,
			}, nil
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()
	seedProduction(t, e, models.ProductionStatusPending)

	result, err := e.AdvanceProduction(context.Background(), "PO-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l3"}, result.Confirmed)
	assert.Contains(t, result.Failed, "l2")

	// Mixed outcome: the wrap status stays at the server-confirmed value.
	got, ok := e.Production().Get("PO-1")
	require.True(t, ok)
	assert.Equal(t, models.ProductionStatusPending, got.Status)
}

func TestAdvanceProductionAllLinesFail(t *testing.T) {
	fb := &fakeBackend{
		kitchenDetail: func(ctx context.Context, code, storeID string) ([]models.KitchenOrderDetailItem, error) {
			return []models.KitchenOrderDetailItem{{ID: "l1"}}, nil
		},
		batchChange: func(ctx context.Context, ids []string, status models.ProductionOrderStatus) error {
			return errors.New("batch endpoint unavailable")
		},
		singleChange: func(ctx context.Context, id string, status models.ProductionOrderStatus) error {
			return errors.New("conflict")
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()
	seedProduction(t, e, models.ProductionStatusPending)

	_, err := e.AdvanceProduction(context.Background(), "PO-1")
	require.Error(t, err)

	got, ok := e.Production().Get("PO-1")
	require.True(t, ok)
	assert.Equal(t, models.ProductionStatusPending, got.Status)
}

func TestAdvanceProductionTerminalStatus(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()
	seedProduction(t, e, models.ProductionStatusCompleted)

	_, err := e.AdvanceProduction(context.Background(), "PO-1")
	assert.ErrorIs(t, err, ErrTerminalStatus)
}

func TestAdvanceProductionUnknownCode(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	_, err := e.AdvanceProduction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotHeld)
}

func TestAddNotificationFillsDefaults(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	require.True(t, e.AddNotification(models.StaffNotification{
		Title:   "hello",
		Message: "world",
		Type:    models.NotificationTypeSystem,
	}))

	items := e.Notifications().List()
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].ID)
	assert.False(t, items[0].Timestamp.IsZero())
}

func TestAddNotificationDropsDuplicateDelivery(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	n := models.StaffNotification{
		ID:    "dup-1",
		Title: "hello",
		Type:  models.NotificationTypeSystem,
	}
	require.True(t, e.AddNotification(n))
	assert.False(t, e.AddNotification(n))
	assert.Equal(t, 1, len(e.Notifications().List()))
}

// fakeSubscriber records handlers like a hub client and lets tests inject
// events directly.
type fakeSubscriber struct {
	handlers map[string]func(json.RawMessage)
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(map[string]func(json.RawMessage))}
}

func (f *fakeSubscriber) On(event string, handler func(data json.RawMessage)) {
	f.handlers[event] = handler
}

func (f *fakeSubscriber) emit(t *testing.T, event string, payload interface{}) {
	t.Helper()
	h, ok := f.handlers[event]
	require.True(t, ok, "no handler for %s", event)
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	h(raw)
}

func TestNotificationChannelRegistersAllEvents(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	sub := newFakeSubscriber()
	e.BindNotificationChannel(sub)

	for _, event := range []string{
		models.EventReceiveNotification,
		models.EventKitchenReady,
		models.EventKitchenCallStaff,
		models.EventCustomerCallStaff,
		models.EventNewOrder,
	} {
		assert.Contains(t, sub.handlers, event)
	}
}

func TestCallEventDefaultsApplied(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	sub := newFakeSubscriber()
	e.BindNotificationChannel(sub)

	sub.emit(t, models.EventKitchenCallStaff, models.HubCallPayload{ID: "c1", TableID: "5"})

	items := e.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, "Kitchen Call Staff", items[0].Title)
	assert.Equal(t, "Kitchen needs staff assistance", items[0].Message)
	assert.Equal(t, models.NotificationTypeCustomerRequest, items[0].Type)
	assert.Equal(t, models.PriorityUrgent, items[0].Priority)
	assert.Equal(t, 5, items[0].TableNumber)
}

func TestCallEventPayloadOverridesDefaults(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	sub := newFakeSubscriber()
	e.BindNotificationChannel(sub)

	sub.emit(t, models.EventKitchenReady, models.HubCallPayload{
		ID:      "c2",
		Title:   "Table 3 ready",
		Message: "Two plates waiting",
		TableID: "3",
	})

	items := e.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, "Table 3 ready", items[0].Title)
	assert.Equal(t, "Two plates waiting", items[0].Message)
	assert.Equal(t, models.NotificationTypeKitchenReady, items[0].Type)
}

func TestReceiveNotificationPassesThrough(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	sub := newFakeSubscriber()
	e.BindNotificationChannel(sub)

	sub.emit(t, models.EventReceiveNotification, models.StaffNotification{
		ID:       "srv-1",
		Title:    "Payment received",
		Message:  "Order ORD-9 settled",
		Type:     models.NotificationTypePayment,
		Priority: models.PriorityLow,
	})

	items := e.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, "srv-1", items[0].ID)
	assert.Equal(t, models.NotificationTypePayment, items[0].Type)
}

func TestKitchenChannelMergesWrapUpdate(t *testing.T) {
	fb := &fakeBackend{
		listKitchen: func(ctx context.Context, params backend.KitchenOrderParams, storeID string) (*backend.PagedProductionOrders, error) {
			return &backend.PagedProductionOrders{
				Items:      []models.ProductionOrder{{Code: "PO-1", Status: models.ProductionStatusPending}},
				TotalCount: 1,
			}, nil
		},
	}
	e := newTestEngine(fb)
	defer e.Stop()
	seedProduction(t, e, models.ProductionStatusPending)

	sub := newFakeSubscriber()
	e.BindKitchenChannel(sub)

	sub.emit(t, models.EventReceiveOrderWrapUpdate, models.OrderWrapUpdate{
		Code:   "PO-1",
		Status: models.ProductionStatusCompleted,
	})

	got, ok := e.Production().Get("PO-1")
	require.True(t, ok)
	assert.Equal(t, models.ProductionStatusCompleted, got.Status)

	// The async refetch carries the stale Pending status; give it a moment
	// and confirm the merge held.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, _ = e.Production().Get("PO-1")
		if got.Status != models.ProductionStatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, models.ProductionStatusCompleted, got.Status)
}

func TestHandlePushNewOrdered(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	require.NoError(t, e.HandlePush(context.Background(), models.PushMessage{
		Data: models.PushData{
			ActionType: models.PushActionNewOrdered,
			ID:         "p1",
			Body:       "Order from table 4",
			TableID:    "4",
		},
	}))

	items := e.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, models.NotificationTypeNewOrder, items[0].Type)
	assert.Equal(t, "New Order", items[0].Title)
	assert.Equal(t, "Order from table 4", items[0].Message)
	assert.Equal(t, 4, items[0].TableNumber)
}

func TestHandlePushNewNotify(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	require.NoError(t, e.HandlePush(context.Background(), models.PushMessage{
		Data: models.PushData{
			ActionType: models.PushActionNewNotify,
			ID:         "p2",
			Title:      "Shift change",
			Message:    "Evening shift starts at 5",
		},
	}))

	items := e.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, models.NotificationTypeSystem, items[0].Type)
	assert.Equal(t, models.PriorityMedium, items[0].Priority)
}

func TestHandlePushUnknownActionIgnored(t *testing.T) {
	e := newTestEngine(&fakeBackend{})
	defer e.Stop()

	require.NoError(t, e.HandlePush(context.Background(), models.PushMessage{
		Data: models.PushData{ActionType: "Something Else"},
	}))
	assert.Empty(t, e.Notifications().List())
}

func TestNewOrderNotificationFeedsRefreshTrigger(t *testing.T) {
	refetched := make(chan struct{}, 1)
	fb := &fakeBackend{
		listOrders: func(ctx context.Context, page, pageSize int) (*backend.PagedOrders, error) {
			select {
			case refetched <- struct{}{}:
			default:
			}
			return pagedOrders(0), nil
		},
	}
	e := NewEngine(fb, store.NewNotifications(), Config{
		StoreID:       "store-1",
		PageSize:      2,
		RefreshWindow: 20 * time.Millisecond,
	})
	defer e.Stop()

	require.True(t, e.AddNotification(models.StaffNotification{
		Title: "New Order",
		Type:  models.NotificationTypeNewOrder,
	}))

	select {
	case <-refetched:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced refresh never fired")
	}
}
