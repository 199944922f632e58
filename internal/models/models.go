package models

import "time"

// ProductionOrderStatus is the kitchen production workflow status.
type ProductionOrderStatus int

const (
	ProductionStatusPending    ProductionOrderStatus = 0
	ProductionStatusInProgress ProductionOrderStatus = 1
	ProductionStatusCompleted  ProductionOrderStatus = 2
	ProductionStatusCancelled  ProductionOrderStatus = 3
)

func (s ProductionOrderStatus) String() string {
	switch s {
	case ProductionStatusPending:
		return "Pending"
	case ProductionStatusInProgress:
		return "In Progress"
	case ProductionStatusCompleted:
		return "Completed"
	case ProductionStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Next returns the successor status. Completed and Cancelled are terminal
// and report ok=false; the advance affordance is not offered for them.
func (s ProductionOrderStatus) Next() (ProductionOrderStatus, bool) {
	switch s {
	case ProductionStatusPending:
		return ProductionStatusInProgress, true
	case ProductionStatusInProgress:
		return ProductionStatusCompleted, true
	default:
		return s, false
	}
}

// MergeStatus applies the monotonic-maximum rule: a status confirmed through
// one channel is never regressed by a stale read arriving from another.
func MergeStatus(existing, incoming ProductionOrderStatus) ProductionOrderStatus {
	if existing > incoming {
		return existing
	}
	return incoming
}

// ProductionOrderRef is a line reference under a production order.
type ProductionOrderRef struct {
	Code   string `json:"code"`
	Amount int    `json:"amount"`
}

// ProductionOrder is a kitchen production order as served by the backend.
// Status holds confirmed state only; the "next status" label shown while an
// advance is in flight is derived via Next and never stored.
type ProductionOrder struct {
	Code   string                `json:"code"`
	Status ProductionOrderStatus `json:"status"`
	Orders []ProductionOrderRef  `json:"orders"`
}

// KitchenOrderDetailItem is a single preparable line under a production
// order code, carrying the id used by the status-change endpoints.
type KitchenOrderDetailItem struct {
	ID           string                `json:"id"`
	OrderCode    string                `json:"order_code"`
	MenuItemName string                `json:"menu_item_name"`
	Quantity     int                   `json:"quantity"`
	Status       ProductionOrderStatus `json:"status"`
	Note         string                `json:"note,omitempty"`
}

// Order statuses (closed ordinal set, server-owned)
const (
	OrderStatusPending   = 0
	OrderStatusConfirmed = 1
	OrderStatusPreparing = 2
	OrderStatusReady     = 3
	OrderStatusCompleted = 4
	OrderStatusCancelled = 5
)

// Payment statuses
const (
	PaymentStatusPending = 0
	PaymentStatusPaid    = 1
	PaymentStatusFailed  = 2
)

// Order types
const (
	OrderTypeDineIn   = 0
	OrderTypeTakeAway = 1
)

// OrderDetail is a line item of a customer order.
type OrderDetail struct {
	ID         string  `json:"id"`
	OrderID    string  `json:"order_id"`
	MenuItemID string  `json:"menu_item_id"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
	Note       string  `json:"note,omitempty"`
}

// Order is a customer order. Created and refreshed only via REST fetch;
// monetary fields are computed server-side and treated as opaque here.
type Order struct {
	ID             string        `json:"id"`
	OrderCode      string        `json:"order_code"`
	UserID         string        `json:"user_id"`
	OrderStatus    int           `json:"order_status"`
	OrderType      int           `json:"order_type"`
	PaymentStatus  int           `json:"payment_status"`
	SubTotalAmount float64       `json:"sub_total_amount"`
	TaxAmount      float64       `json:"tax_amount"`
	DiscountAmount float64       `json:"discount_amount"`
	TotalAmount    float64       `json:"total_amount"`
	CustomerNote   string        `json:"customer_note,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	OrderDetails   []OrderDetail `json:"order_details"`
}

// Notification types
const (
	NotificationTypeNewOrder        = "NEW_ORDER"
	NotificationTypeCustomerRequest = "CUSTOMER_REQUEST"
	NotificationTypeTableStatus     = "TABLE_STATUS"
	NotificationTypeKitchenReady    = "KITCHEN_READY"
	NotificationTypePayment         = "PAYMENT"
	NotificationTypeSystem          = "SYSTEM"
)

// Notification priorities
const (
	PriorityUrgent = "URGENT"
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

// StaffNotification is a user-facing alert delivered via the hub or a
// platform push payload. IsRead is client-owned state.
type StaffNotification struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	Priority    string    `json:"priority"`
	IsRead      bool      `json:"isRead"`
	Timestamp   time.Time `json:"timestamp"`
	TableNumber int       `json:"tableNumber,omitempty"`
}

// VariantSelection is a chosen variant on a cart line, set-like by
// variant id: re-selecting the same variant replaces its quantity.
type VariantSelection struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// CartItem is the persisted form of a cart line (identity + user choices).
type CartItem struct {
	MenuItemID string             `json:"menu_item_id"`
	Variants   []VariantSelection `json:"variants"`
	Quantity   int                `json:"quantity"`
	Note       string             `json:"note"`
}

// CartSnapshot is the key-value payload stored per table.
type CartSnapshot struct {
	Items       []CartItem `json:"items"`
	LastUpdated time.Time  `json:"lastUpdated"`
	TableID     string     `json:"tableId"`
}

// MenuItemVariant is a variant offered by a menu item.
type MenuItemVariant struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// MenuItem is the remotely fetched catalog entry a cart line hydrates from.
type MenuItem struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	BasePrice   float64           `json:"base_price"`
	IsAvailable bool              `json:"is_available"`
	Variants    []MenuItemVariant `json:"variants"`
}
