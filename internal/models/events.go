package models

import "encoding/json"

// Hub event names. These are the subscribed events on the two persistent
// channels; the names are owned by the backend.
const (
	EventReceiveNotification    = "ReceiveNotification"
	EventReceiveOrderWrapUpdate = "ReceiveOrderWrapUpdate"
	EventKitchenReady           = "KitchenReady"
	EventKitchenCallStaff       = "KitchenCallStaff"
	EventCustomerCallStaff      = "CustomerCallStaff"
	EventNewOrder               = "NewOrder"
)

// Push payload action discriminators (platform push boundary).
const (
	PushActionNewOrdered = "New Ordered"
	PushActionNewNotify  = "New Notify"
)

// HubEnvelope is the wire frame for hub-delivered events.
type HubEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// HubCallPayload is the loosely-typed body of the call-staff style events
// (KitchenReady, KitchenCallStaff, CustomerCallStaff, NewOrder). Fields are
// optional; defaults are filled in at the adapter boundary.
type HubCallPayload struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	TableID string `json:"table_id"`
}

// OrderWrapUpdate is the body of ReceiveOrderWrapUpdate: a server-confirmed
// production order status change.
type OrderWrapUpdate struct {
	Code   string                `json:"code"`
	Status ProductionOrderStatus `json:"status"`
}

// PushData is the data block of a platform push payload.
type PushData struct {
	ActionType string `json:"action_type"`
	ID         string `json:"id"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Body       string `json:"body"`
	TableID    string `json:"table_id"`
	StoreID    string `json:"store_id"`
	OrderID    string `json:"order_id"`
}

// PushMessage is a platform push payload as delivered to the adapter.
type PushMessage struct {
	Data PushData `json:"data"`
}
