package ordering

import (
	"fmt"
	"sort"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/models"
)

// Sort returns a copy of records ordered by Order ascending. Records without
// an order go last; ties keep their snapshot position.
func Sort(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Order, out[j].Order
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return out
}

// ArrayMove returns a copy of items with the element at from removed and
// reinserted at to.
func ArrayMove[T any](items []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		return nil, &common.ValidationError{
			Field:  "index",
			Reason: fmt.Sprintf("move %d -> %d out of range [0, %d)", from, to, len(items)),
		}
	}
	out := make([]T, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)

	moved := items[from]
	out = append(out[:to], append([]T{moved}, out[to:]...)...)
	return out, nil
}

// checkPermutation reports whether ids lists every id of items exactly once.
func checkPermutation(items []models.Record, ids []string) error {
	if len(ids) != len(items) {
		return &common.ValidationError{
			Field:  "order",
			Reason: fmt.Sprintf("has %d ids, collection has %d records", len(ids), len(items)),
		}
	}
	want := make(map[string]struct{}, len(items))
	for _, r := range items {
		want[r.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := want[id]; !ok {
			return &common.ValidationError{Field: "order", Reason: fmt.Sprintf("has unknown or repeated id %q", id)}
		}
		delete(want, id)
	}
	return nil
}
