package syncer

import (
	"context"
	"encoding/json"

	"staff-sync/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscriber is the hub surface the engine binds its effects to.
type Subscriber interface {
	On(event string, handler func(data json.RawMessage))
}

func newNotificationID() string {
	return uuid.New().String()
}

// hub events that carry a loose call payload, with the defaults applied
// when the payload omits title or message.
var callEventDefaults = map[string]models.StaffNotification{
	models.EventKitchenReady: {
		Title:    "Kitchen Ready",
		Message:  "Food is ready for pickup",
		Type:     models.NotificationTypeKitchenReady,
		Priority: models.PriorityHigh,
	},
	models.EventKitchenCallStaff: {
		Title:    "Kitchen Call Staff",
		Message:  "Kitchen needs staff assistance",
		Type:     models.NotificationTypeCustomerRequest,
		Priority: models.PriorityUrgent,
	},
	models.EventCustomerCallStaff: {
		Title:    "Customer Call Staff",
		Message:  "Customer is calling for staff",
		Type:     models.NotificationTypeCustomerRequest,
		Priority: models.PriorityHigh,
	},
	models.EventNewOrder: {
		Title:    "New Order",
		Message:  "You have a new order",
		Type:     models.NotificationTypeNewOrder,
		Priority: models.PriorityHigh,
	},
}

// BindNotificationChannel routes the order-notification channel's events
// into the notification store.
func (e *Engine) BindNotificationChannel(c Subscriber) {
	c.On(models.EventReceiveNotification, func(data json.RawMessage) {
		var n models.StaffNotification
		if err := json.Unmarshal(data, &n); err != nil {
			e.logger.Warn("Malformed ReceiveNotification payload", zap.Error(err))
			return
		}
		e.AddNotification(n)
	})

	for event, defaults := range callEventDefaults {
		event, defaults := event, defaults
		c.On(event, func(data json.RawMessage) {
			var payload models.HubCallPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				e.logger.Warn("Malformed hub call payload",
					zap.String("event", event),
					zap.Error(err))
				return
			}
			e.AddNotification(shapeCallNotification(payload, defaults))
		})
	}
}

// BindKitchenChannel routes the kitchen-production channel: a confirmed
// status advance is merged immediately and the list refetched so line
// references catch up.
func (e *Engine) BindKitchenChannel(c Subscriber) {
	c.On(models.EventReceiveOrderWrapUpdate, func(data json.RawMessage) {
		var update models.OrderWrapUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			e.logger.Warn("Malformed ReceiveOrderWrapUpdate payload", zap.Error(err))
		} else if update.Code != "" {
			e.production.UpdateWhere(update.Code, func(p models.ProductionOrder) models.ProductionOrder {
				p.Status = models.MergeStatus(p.Status, update.Status)
				return p
			})
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			if err := e.RefreshProduction(ctx); err != nil {
				e.logger.Warn("Production refetch after wrap update failed", zap.Error(err))
			}
		}()
	})
}

// HandlePush adapts a platform push payload into the same notification
// shape as the hub-delivered events, keyed off the action discriminator.
func (e *Engine) HandlePush(ctx context.Context, msg models.PushMessage) error {
	_ = ctx
	data := msg.Data
	switch data.ActionType {
	case models.PushActionNewOrdered:
		e.AddNotification(models.StaffNotification{
			ID:          data.ID,
			Title:       firstNonEmpty(data.Title, "New Order"),
			Message:     firstNonEmpty(data.Message, data.Body, "You have a new order"),
			Type:        models.NotificationTypeNewOrder,
			Priority:    models.PriorityHigh,
			TableNumber: parseTableNumber(data.TableID),
		})
	case models.PushActionNewNotify:
		e.AddNotification(models.StaffNotification{
			ID:          data.ID,
			Title:       firstNonEmpty(data.Title, "New Notification"),
			Message:     firstNonEmpty(data.Message, data.Body, "You have a new notification"),
			Type:        models.NotificationTypeSystem,
			Priority:    models.PriorityMedium,
			TableNumber: parseTableNumber(data.TableID),
		})
	default:
		e.logger.Debug("Ignoring push payload with unknown action type",
			zap.String("action_type", data.ActionType))
	}
	return nil
}

func shapeCallNotification(payload models.HubCallPayload, defaults models.StaffNotification) models.StaffNotification {
	n := defaults
	n.ID = payload.ID
	if payload.Title != "" {
		n.Title = payload.Title
	}
	if payload.Message != "" {
		n.Message = payload.Message
	}
	n.TableNumber = parseTableNumber(payload.TableID)
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
