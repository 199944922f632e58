// Package backend is the REST client for the FOCS backend. The endpoint
// contracts are consumed as-is; every call carries the bearer token from the
// token source and a fixed client-side timeout.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"staff-sync/internal/models"
	"staff-sync/internal/util"

	"go.uber.org/zap"
)

// TokenSource supplies the bearer token used for the auth header.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *zap.Logger
}

// NewClient creates a backend client with the given base URL and request
// timeout. The timeout is the only cancellation applied; a timed-out call
// surfaces like any other fetch failure.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  util.GetLogger(),
	}
}

// PagedOrders is the order list response.
type PagedOrders struct {
	Items      []models.Order `json:"items"`
	TotalCount int            `json:"total_count"`
}

// PagedProductionOrders is the production order list response.
type PagedProductionOrders struct {
	Items      []models.ProductionOrder `json:"items"`
	TotalCount int                      `json:"total_count"`
	PageIndex  int                      `json:"page_index"`
	PageSize   int                      `json:"page_size"`
}

// KitchenOrderParams are the production-order list parameters.
type KitchenOrderParams struct {
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Filters  map[string]string `json:"filters,omitempty"`
}

// ListOrders fetches one page of the customer order list.
func (c *Client) ListOrders(ctx context.Context, page, pageSize int) (*PagedOrders, error) {
	var out PagedOrders
	body := map[string]int{"page": page, "page_size": pageSize}
	if err := c.do(ctx, "ListOrders", http.MethodPost, "/list-orders", body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder fetches one order by its human-facing code.
func (c *Client) GetOrder(ctx context.Context, code string) (*models.Order, error) {
	var out models.Order
	path := fmt.Sprintf("/order/%s", code)
	if err := c.do(ctx, "GetOrder", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrderStatus mutates an order's payment/status server-side. Callers
// must refetch the list afterwards; no local state is updated here.
func (c *Client) UpdateOrderStatus(ctx context.Context, code string, status int) error {
	path := fmt.Sprintf("/order/%s/status", code)
	return c.do(ctx, "UpdateOrderStatus", http.MethodPatch, path, map[string]int{"status": status}, nil, nil)
}

// ListKitchenOrders fetches one page of the production order list, scoped by
// the store identifier header.
func (c *Client) ListKitchenOrders(ctx context.Context, params KitchenOrderParams, storeID string) (*PagedProductionOrders, error) {
	var out PagedProductionOrders
	headers := map[string]string{"storeId": storeID}
	if err := c.do(ctx, "ListKitchenOrders", http.MethodPost, "/kitchen-orders", params, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// KitchenOrderDetail fetches the preparable lines under a production order.
func (c *Client) KitchenOrderDetail(ctx context.Context, code, storeID string) ([]models.KitchenOrderDetailItem, error) {
	var out []models.KitchenOrderDetailItem
	headers := map[string]string{"storeId": storeID}
	path := fmt.Sprintf("/kitchen-orders/%s", code)
	if err := c.do(ctx, "KitchenOrderDetail", http.MethodGet, path, nil, headers, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BatchChangeKitchenStatus advances every given line in one atomic call.
func (c *Client) BatchChangeKitchenStatus(ctx context.Context, ids []string, status models.ProductionOrderStatus) error {
	body := map[string]interface{}{"ids": ids, "status": status}
	return c.do(ctx, "BatchChangeKitchenStatus", http.MethodPut, "/kitchen-orders/batch-status", body, nil, nil)
}

// ChangeKitchenStatus advances a single line; the per-item fallback for a
// failed batch call.
func (c *Client) ChangeKitchenStatus(ctx context.Context, id string, status models.ProductionOrderStatus) error {
	path := fmt.Sprintf("/kitchen-orders/%s/status", id)
	return c.do(ctx, "ChangeKitchenStatus", http.MethodPut, path, map[string]interface{}{"status": status}, nil, nil)
}

// MenuItemDetail fetches the catalog entry a cart line hydrates from.
func (c *Client) MenuItemDetail(ctx context.Context, id string) (*models.MenuItem, error) {
	var out models.MenuItem
	path := fmt.Sprintf("/menu-items/%s", id)
	if err := c.do(ctx, "MenuItemDetail", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MenuItemImages fetches image URLs for a menu item.
func (c *Client) MenuItemImages(ctx context.Context, id string) ([]string, error) {
	var out []string
	path := fmt.Sprintf("/menu-items/%s/images", id)
	if err := c.do(ctx, "MenuItemImages", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckoutItem is a cart line in checkout shape.
type CheckoutItem struct {
	MenuItemID string                    `json:"menu_item_id"`
	Variants   []models.VariantSelection `json:"variants"`
	Quantity   int                       `json:"quantity"`
	Note       string                    `json:"note"`
}

// CheckoutRequest is the apply-discount / create-order payload.
type CheckoutRequest struct {
	StoreID    string         `json:"store_id"`
	TableID    string         `json:"table_id"`
	Items      []CheckoutItem `json:"items"`
	Note       string         `json:"note,omitempty"`
	CouponCode string         `json:"coupon_code,omitempty"`
	Point      int            `json:"point,omitempty"`
	IsUsePoint bool           `json:"is_use_point,omitempty"`
}

// CheckoutResponse carries the authoritative pricing from the backend; it
// supersedes any client-side estimate.
type CheckoutResponse struct {
	TotalDiscount     float64  `json:"total_discount"`
	TotalPrice        float64  `json:"total_price"`
	AppliedCouponCode string   `json:"applied_coupon_code,omitempty"`
	AppliedPromotions []string `json:"applied_promotions"`
	Messages          []string `json:"messages"`
	IsDiscountApplied bool     `json:"is_discount_applied"`
	OrderCode         string   `json:"order_code,omitempty"`
}

// PaymentRequest is the payment call payload.
type PaymentRequest struct {
	OrderCode     string  `json:"order_code"`
	PaymentMethod string  `json:"payment_method"`
	Amount        float64 `json:"amount"`
}

// ApplyDiscount runs checkout pricing for the given actor's cart.
func (c *Client) ApplyDiscount(ctx context.Context, actorID string, req CheckoutRequest) (*CheckoutResponse, error) {
	var out CheckoutResponse
	headers := map[string]string{"actorId": actorID}
	if err := c.do(ctx, "ApplyDiscount", http.MethodPost, "/cart-checkout/apply-discount", req, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder places the order built from a cart.
func (c *Client) CreateOrder(ctx context.Context, actorID string, req CheckoutRequest) (*CheckoutResponse, error) {
	var out CheckoutResponse
	headers := map[string]string{"actorId": actorID}
	if err := c.do(ctx, "CreateOrder", http.MethodPost, "/order", req, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Payment submits a payment for a placed order.
func (c *Client) Payment(ctx context.Context, req PaymentRequest) error {
	return c.do(ctx, "Payment", http.MethodPost, "/payment", req, nil, nil)
}

// do performs one JSON round trip. Failures are wrapped with the operation
// name; non-2xx responses are converted into errors carrying the backend's
// message when it sent one.
func (c *Client) do(ctx context.Context, op, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	ctx, span := util.StartSpan(ctx, "backend."+op)
	defer span.End()

	start := time.Now()
	defer func() {
		util.BackendRequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%s: access token: %w", op, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Warn("Backend request failed",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s: backend returned %d: %s", op, resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}
