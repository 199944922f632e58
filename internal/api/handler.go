package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"staff-sync/internal/backend"
	"staff-sync/internal/cart"
	"staff-sync/internal/hub"
	"staff-sync/internal/models"
	"staff-sync/internal/syncer"
	"staff-sync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	engine *syncer.Engine
	cart   *cart.Service
	hubs   []*hub.Client
}

// NewHandler creates a new HTTP handler
func NewHandler(engine *syncer.Engine, cartService *cart.Service, hubs ...*hub.Client) *Handler {
	return &Handler{
		engine: engine,
		cart:   cartService,
		hubs:   hubs,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:code", h.getOrder)
		v1.POST("/orders/refresh", h.refreshOrders)
		v1.POST("/orders/more", h.loadMoreOrders)
		v1.PATCH("/orders/:code/payment-status", h.updatePaymentStatus)
		v1.POST("/orders/focus", h.setOrdersFocus)

		v1.GET("/kitchen-orders", h.listProduction)
		v1.GET("/kitchen-orders/:code", h.getProductionDetail)
		v1.POST("/kitchen-orders/refresh", h.refreshProduction)
		v1.POST("/kitchen-orders/more", h.loadMoreProduction)
		v1.POST("/kitchen-orders/:code/advance", h.advanceProduction)

		v1.GET("/notifications", h.listNotifications)
		v1.POST("/notifications", h.addNotification)
		v1.POST("/notifications/:id/read", h.markNotificationRead)
		v1.POST("/notifications/read-all", h.markAllNotificationsRead)
		v1.DELETE("/notifications/:id", h.removeNotification)
		v1.DELETE("/notifications", h.clearNotifications)

		v1.GET("/cart/:tableId", h.getCart)
		v1.POST("/cart/:tableId/items", h.addToCart)
		v1.PATCH("/cart/:tableId/items/:menuItemId", h.updateCartItem)
		v1.DELETE("/cart/:tableId/items/:menuItemId", h.removeCartItem)
		v1.DELETE("/cart/:tableId", h.clearCart)
		v1.POST("/cart/:tableId/checkout", h.checkout)
		v1.POST("/payment", h.payment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports hub connectivity alongside readiness. Degraded hub
// connections do not fail readiness since REST sync still works.
func (h *Handler) readinessCheck(c *gin.Context) {
	channels := make([]gin.H, 0, len(h.hubs))
	for _, hc := range h.hubs {
		channels = append(channels, gin.H{
			"channel":   hc.Channel(),
			"connected": hc.IsConnected(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"time":     time.Now().Unix(),
		"channels": channels,
	})
}

// listOrders returns the held order collection
func (h *Handler) listOrders(c *gin.Context) {
	list := h.engine.Orders()
	resp := gin.H{
		"items":    list.Items(),
		"total":    list.Total(),
		"has_more": list.HasMore(),
	}
	if err := list.Err(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// getOrder fetches one order by code from the backend
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.engine.OrderDetail(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Order not found",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, order)
}

// refreshOrders forces a first-page refetch
func (h *Handler) refreshOrders(c *gin.Context) {
	if err := h.engine.RefreshOrders(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to refresh orders",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": h.engine.Orders().Total()})
}

// loadMoreOrders fetches the next page if one exists
func (h *Handler) loadMoreOrders(c *gin.Context) {
	if err := h.engine.LoadMoreOrders(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to load more orders",
			"details": err.Error(),
		})
		return
	}
	list := h.engine.Orders()
	c.JSON(http.StatusOK, gin.H{
		"count":    list.Len(),
		"has_more": list.HasMore(),
	})
}

type paymentStatusRequest struct {
	Status int `json:"status"`
}

// updatePaymentStatus pushes a payment status change and refetches
func (h *Handler) updatePaymentStatus(c *gin.Context) {
	var req paymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.engine.UpdateOrderPaymentStatus(c.Request.Context(), c.Param("code"), req.Status); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to update payment status",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": c.Param("code"), "status": req.Status})
}

type focusRequest struct {
	Focused bool `json:"focused"`
}

// setOrdersFocus toggles whether deferred refreshes may fire
func (h *Handler) setOrdersFocus(c *gin.Context) {
	var req focusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	h.engine.SetOrdersFocused(req.Focused)
	c.JSON(http.StatusOK, gin.H{"focused": req.Focused})
}

// listProduction returns the held production order collection
func (h *Handler) listProduction(c *gin.Context) {
	list := h.engine.Production()
	resp := gin.H{
		"items":    list.Items(),
		"total":    list.Total(),
		"has_more": list.HasMore(),
	}
	if err := list.Err(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// getProductionDetail fetches the lines under a production order
func (h *Handler) getProductionDetail(c *gin.Context) {
	items, err := h.engine.ProductionDetail(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Kitchen order not found",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// refreshProduction forces a first-page refetch, optionally scoping the
// list to one production status; omitting the status clears the scope
func (h *Handler) refreshProduction(c *gin.Context) {
	h.engine.SetProductionFilter(c.Query("status"))
	if err := h.engine.RefreshProduction(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to refresh kitchen orders",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": h.engine.Production().Total()})
}

// loadMoreProduction fetches the next page if one exists
func (h *Handler) loadMoreProduction(c *gin.Context) {
	if err := h.engine.LoadMoreProduction(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to load more kitchen orders",
			"details": err.Error(),
		})
		return
	}
	list := h.engine.Production()
	c.JSON(http.StatusOK, gin.H{
		"count":    list.Len(),
		"has_more": list.HasMore(),
	})
}

// advanceProduction moves every line under a code to the next status
func (h *Handler) advanceProduction(c *gin.Context) {
	result, err := h.engine.AdvanceProduction(c.Request.Context(), c.Param("code"))
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrNotHeld):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Kitchen order not found",
			})
		case errors.Is(err, syncer.ErrTerminalStatus):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "Status cannot advance further",
				"details": err.Error(),
			})
		default:
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "Failed to advance status",
				"details": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// listNotifications returns the collection newest first
func (h *Handler) listNotifications(c *gin.Context) {
	store := h.engine.Notifications()
	state, connErr := store.ConnectionState()
	resp := gin.H{
		"items":            store.List(),
		"unread_count":     store.UnreadCount(),
		"connection_state": state,
	}
	if connErr != "" {
		resp["connection_error"] = connErr
	}
	c.JSON(http.StatusOK, resp)
}

// addNotification accepts an out-of-band notification, applying dedupe
func (h *Handler) addNotification(c *gin.Context) {
	var n models.StaffNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	added := h.engine.AddNotification(n)
	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"added":        added,
		"unread_count": h.engine.Notifications().UnreadCount(),
	})
}

// markNotificationRead marks one notification read
func (h *Handler) markNotificationRead(c *gin.Context) {
	if !h.engine.Notifications().MarkRead(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Notification not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": h.engine.Notifications().UnreadCount()})
}

// markAllNotificationsRead zeroes the unread counter
func (h *Handler) markAllNotificationsRead(c *gin.Context) {
	h.engine.Notifications().MarkAllRead()
	c.JSON(http.StatusOK, gin.H{"unread_count": 0})
}

// removeNotification drops one notification
func (h *Handler) removeNotification(c *gin.Context) {
	if !h.engine.Notifications().Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Notification not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": h.engine.Notifications().UnreadCount()})
}

// clearNotifications drops the whole collection
func (h *Handler) clearNotifications(c *gin.Context) {
	h.engine.Notifications().Clear()
	c.JSON(http.StatusOK, gin.H{"unread_count": 0})
}

// getCart returns the hydrated cart view for a table
func (h *Handler) getCart(c *gin.Context) {
	view, err := h.cart.Hydrate(c.Request.Context(), c.Param("tableId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load cart",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, view)
}

// addToCart adds or merges one line
func (h *Handler) addToCart(c *gin.Context) {
	var item models.CartItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if err := h.cart.AddToCart(c.Request.Context(), c.Param("tableId"), item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to add item",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"menu_item_id": item.MenuItemID})
}

type cartItemUpdateRequest struct {
	Quantity *int                      `json:"quantity"`
	Note     *string                   `json:"note"`
	Variants []models.VariantSelection `json:"variants"`
}

// updateCartItem patches an existing line
func (h *Handler) updateCartItem(c *gin.Context) {
	var req cartItemUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	patch := cart.CartItemPatch{Quantity: req.Quantity, Note: req.Note, Variants: req.Variants}
	if err := h.cart.UpdateItem(c.Request.Context(), c.Param("tableId"), c.Param("menuItemId"), patch); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Failed to update item",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"menu_item_id": c.Param("menuItemId")})
}

// removeCartItem drops one line
func (h *Handler) removeCartItem(c *gin.Context) {
	if err := h.cart.Remove(c.Request.Context(), c.Param("tableId"), c.Param("menuItemId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to remove item",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"menu_item_id": c.Param("menuItemId")})
}

// clearCart drops the whole table cart
func (h *Handler) clearCart(c *gin.Context) {
	if err := h.cart.Clear(c.Request.Context(), c.Param("tableId")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to clear cart",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"table_id": c.Param("tableId")})
}

type checkoutRequest struct {
	StoreID    string `json:"store_id"`
	ActorID    string `json:"actor_id"`
	Note       string `json:"note"`
	CouponCode string `json:"coupon_code"`
	Point      int    `json:"point"`
	IsUsePoint bool   `json:"is_use_point"`
}

// checkout places the order for a table's cart
func (h *Handler) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	opts := cart.CheckoutOptions{
		StoreID:    req.StoreID,
		ActorID:    req.ActorID,
		Note:       req.Note,
		CouponCode: req.CouponCode,
		Point:      req.Point,
		IsUsePoint: req.IsUsePoint,
	}
	resp, err := h.cart.PlaceOrder(c.Request.Context(), c.Param("tableId"), opts)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to place order",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// payment settles a placed order
func (h *Handler) payment(c *gin.Context) {
	var req backend.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	if err := h.cart.Pay(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Payment failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_code": req.OrderCode})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
