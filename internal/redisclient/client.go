package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"staff-sync/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	accessTokenKey = "accessToken"
	cartKeyPrefix  = "cart_items_"
)

// Client wraps the key-value store holding the per-table cart snapshots and
// the bearer access token shared by REST auth and hub connect-time auth.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to the key-value store and verifies it is reachable.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AccessToken returns the stored bearer token; empty when none is held.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	token, err := c.rdb.Get(ctx, accessTokenKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return token, nil
}

// SetAccessToken stores the bearer token used for REST and hub auth.
func (c *Client) SetAccessToken(ctx context.Context, token string) error {
	return c.rdb.Set(ctx, accessTokenKey, token, 0).Err()
}

func cartKey(tableID string) string {
	return cartKeyPrefix + tableID
}

// LoadCart returns the persisted cart line items for a table. A missing key
// is an empty cart, not an error.
func (c *Client) LoadCart(ctx context.Context, tableID string) ([]models.CartItem, error) {
	raw, err := c.rdb.Get(ctx, cartKey(tableID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", tableID, err)
	}

	var snapshot models.CartSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("decode cart %s: %w", tableID, err)
	}
	return snapshot.Items, nil
}

// SaveCart replaces the persisted cart snapshot for a table.
func (c *Client) SaveCart(ctx context.Context, tableID string, items []models.CartItem) error {
	snapshot := models.CartSnapshot{
		Items:       items,
		LastUpdated: time.Now(),
		TableID:     tableID,
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", tableID, err)
	}
	if err := c.rdb.Set(ctx, cartKey(tableID), payload, 0).Err(); err != nil {
		return fmt.Errorf("save cart %s: %w", tableID, err)
	}
	return nil
}

// ClearCart removes the cart snapshot for a table entirely.
func (c *Client) ClearCart(ctx context.Context, tableID string) error {
	if err := c.rdb.Del(ctx, cartKey(tableID)).Err(); err != nil {
		return fmt.Errorf("clear cart %s: %w", tableID, err)
	}
	return nil
}
