package projection

import (
	"sort"
	"time"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
)

// newer reports whether a should replace b under newer-wins with nulls last.
func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

func sortOrders(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].OrderID < orders[j].OrderID
	})
}
