// Package syncer is the reconciliation core: it keeps the order list, the
// production order list and the notification collection consistent across
// paginated REST fetches, hub events and user-initiated mutations.
package syncer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"staff-sync/internal/backend"
	"staff-sync/internal/models"
	"staff-sync/internal/store"
	"staff-sync/internal/util"

	"go.uber.org/zap"
)

// Backend is the subset of the REST client the engine consumes.
type Backend interface {
	ListOrders(ctx context.Context, page, pageSize int) (*backend.PagedOrders, error)
	GetOrder(ctx context.Context, code string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, code string, status int) error
	ListKitchenOrders(ctx context.Context, params backend.KitchenOrderParams, storeID string) (*backend.PagedProductionOrders, error)
	KitchenOrderDetail(ctx context.Context, code, storeID string) ([]models.KitchenOrderDetailItem, error)
	BatchChangeKitchenStatus(ctx context.Context, ids []string, status models.ProductionOrderStatus) error
	ChangeKitchenStatus(ctx context.Context, id string, status models.ProductionOrderStatus) error
}

// Config carries the engine's sync parameters.
type Config struct {
	StoreID       string
	PageSize      int
	RefreshWindow time.Duration
}

const refreshTimeout = 15 * time.Second

// Engine owns the in-memory collections and funnels every mutation through
// them, whatever asynchronous source triggered it.
type Engine struct {
	backend       Backend
	orders        *store.List[models.Order]
	production    *store.List[models.ProductionOrder]
	notifications *store.Notifications
	refresh       *RefreshTrigger
	logger        *zap.Logger
	cfg           Config

	// at most one load-more in flight per list
	ordersLoading     atomic.Bool
	productionLoading atomic.Bool

	mu               sync.Mutex
	ordersPage       int
	productionPage   int
	productionFilter string

	newOrderArrivals atomic.Int64
}

func NewEngine(b Backend, notifications *store.Notifications, cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = 2 * time.Second
	}

	e := &Engine{
		backend: b,
		orders:  store.NewList(func(o models.Order) string { return o.ID }, nil),
		production: store.NewList(
			func(p models.ProductionOrder) string { return p.Code },
			mergeProductionOrder,
		),
		notifications: notifications,
		logger:        util.GetLogger(),
		cfg:           cfg,
	}
	e.refresh = NewRefreshTrigger(cfg.RefreshWindow, e.refreshOrdersAsync)
	return e
}

// mergeProductionOrder keeps the non-status fields of the incoming item but
// never lets a stale list read regress a status confirmed through the hub.
func mergeProductionOrder(existing, incoming models.ProductionOrder) models.ProductionOrder {
	incoming.Status = models.MergeStatus(existing.Status, incoming.Status)
	return incoming
}

func (e *Engine) Orders() *store.List[models.Order] { return e.orders }

func (e *Engine) Production() *store.List[models.ProductionOrder] { return e.production }

func (e *Engine) Notifications() *store.Notifications { return e.notifications }

// RefreshOrders issues a page-1 fetch that replaces the order collection.
func (e *Engine) RefreshOrders(ctx context.Context) error {
	seq := e.orders.BeginFetch("")
	resp, err := e.backend.ListOrders(ctx, 1, e.cfg.PageSize)
	if err != nil {
		if e.orders.ApplyError(seq, 1, err) {
			util.ListFetchesTotal.WithLabelValues("orders", "error").Inc()
		}
		return fmt.Errorf("refresh orders: %w", err)
	}
	if !e.orders.ApplyPage(seq, 1, resp.Items, resp.TotalCount) {
		util.StaleResponsesDiscarded.WithLabelValues("orders").Inc()
		return nil
	}
	util.ListFetchesTotal.WithLabelValues("orders", "success").Inc()
	e.mu.Lock()
	e.ordersPage = 1
	e.mu.Unlock()
	return nil
}

// LoadMoreOrders appends the next page. Requests are ignored while another
// load-more is in flight or when the latest total says there is no more.
func (e *Engine) LoadMoreOrders(ctx context.Context) error {
	if !e.orders.HasMore() {
		return nil
	}
	if !e.ordersLoading.CompareAndSwap(false, true) {
		return nil
	}
	defer e.ordersLoading.Store(false)

	e.mu.Lock()
	page := e.ordersPage + 1
	e.mu.Unlock()

	seq := e.orders.BeginFetch("")
	resp, err := e.backend.ListOrders(ctx, page, e.cfg.PageSize)
	if err != nil {
		if e.orders.ApplyError(seq, page, err) {
			util.ListFetchesTotal.WithLabelValues("orders", "error").Inc()
		}
		return fmt.Errorf("load more orders: %w", err)
	}
	if !e.orders.ApplyPage(seq, page, resp.Items, resp.TotalCount) {
		util.StaleResponsesDiscarded.WithLabelValues("orders").Inc()
		return nil
	}
	util.ListFetchesTotal.WithLabelValues("orders", "success").Inc()
	e.mu.Lock()
	e.ordersPage = page
	e.mu.Unlock()
	return nil
}

// SetProductionFilter scopes the production list to one status; an empty
// value clears the scope. A change takes effect on the next refresh and
// clears the held collection, so pages fetched under the old filter are
// never appended to.
func (e *Engine) SetProductionFilter(status string) {
	e.mu.Lock()
	e.productionFilter = status
	e.mu.Unlock()
}

func (e *Engine) productionParams(page int) backend.KitchenOrderParams {
	e.mu.Lock()
	filter := e.productionFilter
	e.mu.Unlock()
	params := backend.KitchenOrderParams{Page: page, PageSize: e.cfg.PageSize}
	if filter != "" {
		params.Filters = map[string]string{"status": filter}
	}
	return params
}

// RefreshProduction issues a page-1 fetch of the production list; held
// statuses survive through the monotonic merge.
func (e *Engine) RefreshProduction(ctx context.Context) error {
	params := e.productionParams(1)
	seq := e.production.BeginFetch(params.Filters["status"])
	resp, err := e.backend.ListKitchenOrders(ctx, params, e.cfg.StoreID)
	if err != nil {
		if e.production.ApplyError(seq, 1, err) {
			util.ListFetchesTotal.WithLabelValues("production", "error").Inc()
		}
		return fmt.Errorf("refresh production orders: %w", err)
	}
	if !e.production.ApplyPage(seq, 1, resp.Items, resp.TotalCount) {
		util.StaleResponsesDiscarded.WithLabelValues("production").Inc()
		return nil
	}
	util.ListFetchesTotal.WithLabelValues("production", "success").Inc()
	e.mu.Lock()
	e.productionPage = 1
	e.mu.Unlock()
	return nil
}

// LoadMoreProduction appends the next production page under the same
// single-in-flight rule as the order list.
func (e *Engine) LoadMoreProduction(ctx context.Context) error {
	if !e.production.HasMore() {
		return nil
	}
	if !e.productionLoading.CompareAndSwap(false, true) {
		return nil
	}
	defer e.productionLoading.Store(false)

	e.mu.Lock()
	page := e.productionPage + 1
	e.mu.Unlock()

	params := e.productionParams(page)
	seq := e.production.BeginFetch(params.Filters["status"])
	resp, err := e.backend.ListKitchenOrders(ctx, params, e.cfg.StoreID)
	if err != nil {
		if e.production.ApplyError(seq, page, err) {
			util.ListFetchesTotal.WithLabelValues("production", "error").Inc()
		}
		return fmt.Errorf("load more production orders: %w", err)
	}
	if !e.production.ApplyPage(seq, page, resp.Items, resp.TotalCount) {
		util.StaleResponsesDiscarded.WithLabelValues("production").Inc()
		return nil
	}
	util.ListFetchesTotal.WithLabelValues("production", "success").Inc()
	e.mu.Lock()
	e.productionPage = page
	e.mu.Unlock()
	return nil
}

// OrderDetail fetches one order by code. Detail views always hit the
// backend; the held list entry may be a page behind.
func (e *Engine) OrderDetail(ctx context.Context, code string) (*models.Order, error) {
	order, err := e.backend.GetOrder(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("order detail %s: %w", code, err)
	}
	return order, nil
}

// ProductionDetail fetches the preparable lines under a production order.
func (e *Engine) ProductionDetail(ctx context.Context, code string) ([]models.KitchenOrderDetailItem, error) {
	items, err := e.backend.KitchenOrderDetail(ctx, code, e.cfg.StoreID)
	if err != nil {
		return nil, fmt.Errorf("production detail %s: %w", code, err)
	}
	return items, nil
}

// UpdateOrderPaymentStatus is fire-and-confirm: the mutation goes to the
// server and the list is refetched afterwards. No optimistic local state.
func (e *Engine) UpdateOrderPaymentStatus(ctx context.Context, code string, status int) error {
	if err := e.backend.UpdateOrderStatus(ctx, code, status); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if err := e.RefreshOrders(ctx); err != nil {
		e.logger.Warn("Refetch after status mutation failed", zap.Error(err))
	}
	return nil
}

// AddNotification fills in defaults, stores the notification (duplicate
// deliveries are dropped) and feeds the debounced refresh trigger when a
// new-order notification was accepted.
func (e *Engine) AddNotification(n models.StaffNotification) bool {
	if n.ID == "" {
		n.ID = newNotificationID()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if !e.notifications.Add(n) {
		return false
	}
	if n.Type == models.NotificationTypeNewOrder {
		e.refresh.Observe(int(e.newOrderArrivals.Add(1)))
	}
	return true
}

// SetOrdersFocused records whether the order view is visible; a refresh
// window elapsing while unfocused is deferred to the next focus gain.
func (e *Engine) SetOrdersFocused(focused bool) {
	e.refresh.SetFocused(focused)
}

// Stop cancels outstanding timers.
func (e *Engine) Stop() {
	e.refresh.Stop()
}

func (e *Engine) refreshOrdersAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := e.RefreshOrders(ctx); err != nil {
		e.logger.Warn("Debounced order refresh failed", zap.Error(err))
	}
}

func parseTableNumber(tableID string) int {
	n, err := strconv.Atoi(tableID)
	if err != nil {
		return 0
	}
	return n
}
