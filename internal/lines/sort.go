package lines

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Order selects how Sort arranges lines.
type Order string

const (
	Alphabetical Order = "alphabetical"
	LengthAsc    Order = "length-asc"
	LengthDesc   Order = "length-desc"
)

// ParseOrder converts a flag value into an Order.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case Alphabetical, LengthAsc, LengthDesc:
		return Order(s), nil
	}
	return "", fmt.Errorf("unknown sort order %q (want alphabetical, length-asc or length-desc)", s)
}

// Sort returns a new Store with the lines of s stably sorted by order.
// Length is measured in runes.
func Sort(s *Store, order Order) (*Store, error) {
	values := s.Values()

	var less func(i, j int) bool
	switch order {
	case Alphabetical:
		less = func(i, j int) bool { return values[i] < values[j] }
	case LengthAsc:
		less = func(i, j int) bool {
			return utf8.RuneCountInString(values[i]) < utf8.RuneCountInString(values[j])
		}
	case LengthDesc:
		less = func(i, j int) bool {
			return utf8.RuneCountInString(values[i]) > utf8.RuneCountInString(values[j])
		}
	default:
		return nil, fmt.Errorf("unknown sort order %q", order)
	}

	sort.SliceStable(values, less)
	return s.Derive(values), nil
}
