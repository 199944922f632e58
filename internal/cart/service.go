// Package cart merges locally persisted cart line items with remotely
// fetched menu item details into a checkout-ready view. The persisted side
// is fully client-owned until checkout; hydration tolerates per-line fetch
// failure so a single broken catalog entry never takes down the cart.
package cart

import (
	"context"
	"fmt"

	"staff-sync/internal/backend"
	"staff-sync/internal/models"
	"staff-sync/internal/util"

	"go.uber.org/zap"
)

// Placeholder fields rendered for a line whose detail fetch failed.
const (
	placeholderName        = "Unknown Item"
	placeholderDescription = "Item details unavailable"
)

// Storage is the key-value persistence for cart snapshots.
type Storage interface {
	LoadCart(ctx context.Context, tableID string) ([]models.CartItem, error)
	SaveCart(ctx context.Context, tableID string, items []models.CartItem) error
	ClearCart(ctx context.Context, tableID string) error
}

// Catalog fetches menu item details for hydration.
type Catalog interface {
	MenuItemDetail(ctx context.Context, id string) (*models.MenuItem, error)
	MenuItemImages(ctx context.Context, id string) ([]string, error)
}

// Checkout runs the three-step checkout flow against the backend.
type Checkout interface {
	ApplyDiscount(ctx context.Context, actorID string, req backend.CheckoutRequest) (*backend.CheckoutResponse, error)
	CreateOrder(ctx context.Context, actorID string, req backend.CheckoutRequest) (*backend.CheckoutResponse, error)
	Payment(ctx context.Context, req backend.PaymentRequest) error
}

// SelectedVariant is a chosen variant with its hydrated price.
type SelectedVariant struct {
	VariantID string  `json:"variant_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Line is one hydrated cart line. Hydrated is false when the detail fetch
// failed and the line carries placeholder fields with zero price.
type Line struct {
	MenuItemID  string            `json:"menu_item_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	BasePrice   float64           `json:"base_price"`
	Images      []string          `json:"images"`
	Quantity    int               `json:"quantity"`
	Note        string            `json:"note"`
	Variants    []SelectedVariant `json:"variants"`
	Hydrated    bool              `json:"hydrated"`
}

// LineTotal is the client-side price estimate for one line.
func (l Line) LineTotal() float64 {
	price := l.BasePrice
	for _, v := range l.Variants {
		price += v.Price
	}
	return price * float64(l.Quantity)
}

// View is the hydrated cart. TotalPrice is a client-side estimate only;
// the checkout response supersedes it.
type View struct {
	TableID    string  `json:"tableId"`
	Lines      []Line  `json:"lines"`
	TotalPrice float64 `json:"total_price"`
}

// CartItemPatch is a partial update for one persisted line.
type CartItemPatch struct {
	Quantity *int
	Note     *string
	Variants []models.VariantSelection
}

type Service struct {
	storage  Storage
	catalog  Catalog
	checkout Checkout
	logger   *zap.Logger
}

func NewService(storage Storage, catalog Catalog, checkout Checkout) *Service {
	return &Service{
		storage:  storage,
		catalog:  catalog,
		checkout: checkout,
		logger:   util.GetLogger(),
	}
}

// normalizeVariants makes the selection set-like by variant id: re-selecting
// a variant replaces its quantity instead of duplicating the entry.
func normalizeVariants(selections []models.VariantSelection) []models.VariantSelection {
	out := make([]models.VariantSelection, 0, len(selections))
	index := make(map[string]int, len(selections))
	for _, sel := range selections {
		if i, ok := index[sel.VariantID]; ok {
			out[i].Quantity = sel.Quantity
			continue
		}
		index[sel.VariantID] = len(out)
		out = append(out, sel)
	}
	return out
}

// AddToCart appends the item, or when a line with the same menu item id
// already exists, increments its quantity and overwrites note and variants
// with the new call's values (an empty note keeps the old one).
func (s *Service) AddToCart(ctx context.Context, tableID string, item models.CartItem) error {
	if item.Quantity <= 0 {
		return fmt.Errorf("add to cart: quantity must be positive")
	}
	items, err := s.storage.LoadCart(ctx, tableID)
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}

	item.Variants = normalizeVariants(item.Variants)
	merged := false
	for i := range items {
		if items[i].MenuItemID != item.MenuItemID {
			continue
		}
		items[i].Quantity += item.Quantity
		if item.Note != "" {
			items[i].Note = item.Note
		}
		items[i].Variants = item.Variants
		merged = true
		break
	}
	if !merged {
		items = append(items, item)
	}

	if err := s.storage.SaveCart(ctx, tableID, items); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}

// UpdateItem applies a partial update only when the line exists; updating a
// missing line is a no-op, never a create. Patching quantity to zero or
// below removes the line.
func (s *Service) UpdateItem(ctx context.Context, tableID, menuItemID string, patch CartItemPatch) error {
	items, err := s.storage.LoadCart(ctx, tableID)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}

	for i := range items {
		if items[i].MenuItemID != menuItemID {
			continue
		}
		if patch.Quantity != nil {
			if *patch.Quantity <= 0 {
				return s.Remove(ctx, tableID, menuItemID)
			}
			items[i].Quantity = *patch.Quantity
		}
		if patch.Note != nil {
			items[i].Note = *patch.Note
		}
		if patch.Variants != nil {
			items[i].Variants = normalizeVariants(patch.Variants)
		}
		if err := s.storage.SaveCart(ctx, tableID, items); err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		return nil
	}
	return nil
}

// Remove deletes a line by menu item id.
func (s *Service) Remove(ctx context.Context, tableID, menuItemID string) error {
	items, err := s.storage.LoadCart(ctx, tableID)
	if err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	filtered := items[:0]
	for _, it := range items {
		if it.MenuItemID != menuItemID {
			filtered = append(filtered, it)
		}
	}
	if err := s.storage.SaveCart(ctx, tableID, filtered); err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	return nil
}

// Clear empties the persisted cart for a table.
func (s *Service) Clear(ctx context.Context, tableID string) error {
	if err := s.storage.ClearCart(ctx, tableID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Hydrate produces the UI-ready cart view. Each persisted line gets an
// independent detail fetch; a failed fetch degrades that single line to
// placeholder fields with zero price so the rest of the cart and its
// total stay usable.
func (s *Service) Hydrate(ctx context.Context, tableID string) (*View, error) {
	items, err := s.storage.LoadCart(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("hydrate cart: %w", err)
	}

	view := &View{TableID: tableID, Lines: make([]Line, 0, len(items))}
	for _, item := range items {
		line := s.hydrateLine(ctx, item)
		view.TotalPrice += line.LineTotal()
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}

func (s *Service) hydrateLine(ctx context.Context, item models.CartItem) Line {
	detail, err := s.catalog.MenuItemDetail(ctx, item.MenuItemID)
	if err != nil {
		util.CartHydrationFailures.Inc()
		s.logger.Warn("Cart line hydration failed",
			zap.String("menu_item_id", item.MenuItemID),
			zap.Error(err))
		return Line{
			MenuItemID:  item.MenuItemID,
			Name:        placeholderName,
			Description: placeholderDescription,
			Images:      []string{},
			Quantity:    item.Quantity,
			Note:        item.Note,
			Variants:    placeholderVariants(item.Variants),
		}
	}

	images, err := s.catalog.MenuItemImages(ctx, item.MenuItemID)
	if err != nil {
		images = []string{}
	}

	priced := make(map[string]models.MenuItemVariant, len(detail.Variants))
	for _, v := range detail.Variants {
		priced[v.ID] = v
	}
	variants := make([]SelectedVariant, 0, len(item.Variants))
	for _, sel := range item.Variants {
		sv := SelectedVariant{VariantID: sel.VariantID, Quantity: sel.Quantity}
		if v, ok := priced[sel.VariantID]; ok {
			sv.Name = v.Name
			sv.Price = v.Price
		}
		variants = append(variants, sv)
	}

	return Line{
		MenuItemID:  item.MenuItemID,
		Name:        detail.Name,
		Description: detail.Description,
		BasePrice:   detail.BasePrice,
		Images:      images,
		Quantity:    item.Quantity,
		Note:        item.Note,
		Variants:    variants,
		Hydrated:    true,
	}
}

func placeholderVariants(selections []models.VariantSelection) []SelectedVariant {
	out := make([]SelectedVariant, 0, len(selections))
	for _, sel := range selections {
		out = append(out, SelectedVariant{VariantID: sel.VariantID, Quantity: sel.Quantity})
	}
	return out
}

// CheckoutOptions carry the user-entered checkout fields.
type CheckoutOptions struct {
	StoreID    string
	ActorID    string
	Note       string
	CouponCode string
	Point      int
	IsUsePoint bool
}

// PlaceOrder runs apply-discount then order creation for the persisted
// cart, clearing the cart only after the order call succeeds. The returned
// response carries the authoritative totals.
func (s *Service) PlaceOrder(ctx context.Context, tableID string, opts CheckoutOptions) (*backend.CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "cart.PlaceOrder")
	defer span.End()

	items, err := s.storage.LoadCart(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("place order: cart is empty")
	}

	req := backend.CheckoutRequest{
		StoreID:    opts.StoreID,
		TableID:    tableID,
		Note:       opts.Note,
		CouponCode: opts.CouponCode,
		Point:      opts.Point,
		IsUsePoint: opts.IsUsePoint,
		Items:      make([]backend.CheckoutItem, 0, len(items)),
	}
	for _, it := range items {
		req.Items = append(req.Items, backend.CheckoutItem{
			MenuItemID: it.MenuItemID,
			Variants:   it.Variants,
			Quantity:   it.Quantity,
			Note:       it.Note,
		})
	}

	if _, err := s.checkout.ApplyDiscount(ctx, opts.ActorID, req); err != nil {
		return nil, fmt.Errorf("place order: apply discount: %w", err)
	}

	resp, err := s.checkout.CreateOrder(ctx, opts.ActorID, req)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	if err := s.storage.ClearCart(ctx, tableID); err != nil {
		// The order was placed; a failed clear must not fail the checkout.
		s.logger.Error("Failed to clear cart after order placement",
			zap.String("tableId", tableID),
			zap.Error(err))
	}
	return resp, nil
}

// Pay submits a payment for a placed order.
func (s *Service) Pay(ctx context.Context, req backend.PaymentRequest) error {
	if err := s.checkout.Payment(ctx, req); err != nil {
		return fmt.Errorf("payment: %w", err)
	}
	return nil
}
