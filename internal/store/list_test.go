package store

import (
	"errors"
	"fmt"
	"testing"

	"staff-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderList() *List[models.Order] {
	return NewList[models.Order](func(o models.Order) string { return o.ID }, nil)
}

func orders(ids ...string) []models.Order {
	out := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Order{ID: id, OrderCode: "c-" + id})
	}
	return out
}

func ids(items []models.Order) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestApplyPageFirstPageReplaces(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("a", "b"), 10))
	assert.Equal(t, []string{"a", "b"}, ids(l.Items()))

	seq = l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("c"), 7))
	assert.Equal(t, []string{"c"}, ids(l.Items()))
	assert.Equal(t, 7, l.Total())
}

func TestApplyPageAppendsWithoutDuplicates(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("a", "b"), 5))

	seq = l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 2, orders("b", "c", "d"), 5))

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(l.Items()))
	assert.Equal(t, 5, l.Total())
	assert.True(t, l.HasMore())
}

func TestTotalComesFromLatestResponse(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("a"), 4))
	assert.Equal(t, 4, l.Total())

	seq = l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 2, orders("b"), 9))
	assert.Equal(t, 9, l.Total())
}

func TestStaleResponseDiscarded(t *testing.T) {
	l := orderList()

	first := l.BeginFetch("")
	second := l.BeginFetch("")

	require.True(t, l.ApplyPage(second, 1, orders("fresh"), 1))
	assert.False(t, l.ApplyPage(first, 1, orders("stale"), 1))
	assert.Equal(t, []string{"fresh"}, ids(l.Items()))

	assert.False(t, l.ApplyError(first, 1, errors.New("late failure")))
	assert.NoError(t, l.Err())
	assert.Equal(t, []string{"fresh"}, ids(l.Items()))
}

func TestFirstPageFailureClearsCollection(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("a", "b"), 2))

	seq = l.BeginFetch("")
	fetchErr := errors.New("backend down")
	require.True(t, l.ApplyError(seq, 1, fetchErr))

	assert.Zero(t, l.Len())
	assert.Zero(t, l.Total())
	assert.Equal(t, fetchErr, l.Err())
}

func TestLoadMoreFailureKeepsVisibleItems(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("a", "b"), 4))

	seq = l.BeginFetch("")
	require.True(t, l.ApplyError(seq, 2, errors.New("timeout")))

	assert.Equal(t, []string{"a", "b"}, ids(l.Items()))
	assert.Error(t, l.Err())
}

func TestSuccessClearsPriorError(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("")
	require.True(t, l.ApplyError(seq, 1, errors.New("boom")))
	require.Error(t, l.Err())

	seq = l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("a"), 1))
	assert.NoError(t, l.Err())
}

func TestFilterChangeClearsBeforeNextResponse(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("status=0")
	require.True(t, l.ApplyPage(seq, 1, orders("a", "b"), 2))

	l.BeginFetch("status=1")
	assert.Zero(t, l.Len())
}

func TestHasMore(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("a", "b"), 2))
	assert.False(t, l.HasMore())

	seq = l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("a", "b"), 6))
	assert.True(t, l.HasMore())
}

func TestUpdateWhere(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("a", "b"), 2))

	updated := l.UpdateWhere("b", func(o models.Order) models.Order {
		o.OrderStatus = models.OrderStatusCompleted
		return o
	})
	require.True(t, updated)

	got, ok := l.Get("b")
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusCompleted, got.OrderStatus)

	assert.False(t, l.UpdateWhere("missing", func(o models.Order) models.Order { return o }))
}

func TestMergeAppliedOnReplace(t *testing.T) {
	l := NewList[models.ProductionOrder](
		func(p models.ProductionOrder) string { return p.Code },
		func(existing, incoming models.ProductionOrder) models.ProductionOrder {
			incoming.Status = models.MergeStatus(existing.Status, incoming.Status)
			return incoming
		},
	)

	seq := l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, []models.ProductionOrder{
		{Code: "PO-1", Status: models.ProductionStatusInProgress},
	}, 1))

	// A refetch racing a status change may still carry the older status;
	// the merge keeps the further-along one.
	seq = l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, []models.ProductionOrder{
		{Code: "PO-1", Status: models.ProductionStatusPending},
	}, 1))

	got, ok := l.Get("PO-1")
	require.True(t, ok)
	assert.Equal(t, models.ProductionStatusInProgress, got.Status)
}

func TestResetForgetsFilterAndItems(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("status=0")
	require.True(t, l.ApplyPage(seq, 1, orders("a"), 1))

	l.Reset()
	assert.Zero(t, l.Len())
	assert.Zero(t, l.Total())

	// The in-flight seq from before Reset is stale.
	assert.False(t, l.ApplyPage(seq, 1, orders("b"), 1))
}

func TestPageOrderIsStableAcrossManyPages(t *testing.T) {
	l := orderList()

	seq := l.BeginFetch("")
	require.True(t, l.ApplyPage(seq, 1, orders("0", "1"), 8))
	for page := 2; page <= 4; page++ {
		a := fmt.Sprintf("%d", (page-1)*2)
		b := fmt.Sprintf("%d", (page-1)*2+1)
		seq = l.BeginFetch("")
		require.True(t, l.ApplyPage(seq, page, orders(a, b), 8))
	}

	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7"}, ids(l.Items()))
	assert.False(t, l.HasMore())
}
