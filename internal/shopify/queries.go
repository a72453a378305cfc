package shopify

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

const ProductsQuery = `
query GetProducts($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    edges {
      cursor
      node {
        id
        title
        handle
        variants(first: 10) {
          edges {
            node {
              id
              title
              price
              sku
              inventoryQuantity
            }
          }
        }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const OrdersQuery = `
query GetOrders($first: Int!, $after: String, $query: String) {
  orders(first: $first, after: $after, query: $query, sortKey: PROCESSED_AT, reverse: true) {
    edges {
      cursor
      node {
        id
        name
        processedAt
        lineItems(first: 50) {
          edges {
            node {
              title
              quantity
              variant {
                id
                title
                sku
                product { id title handle }
              }
              discountedUnitPriceSet { shopMoney { amount currencyCode } }
            }
          }
        }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

type ProductsVars struct {
	First int
	After *string
}

func (v ProductsVars) variables() map[string]any {
	return map[string]any{
		"first": v.First,
		"after": v.After,
	}
}

type OrdersVars struct {
	First  int
	After  *string
	Window DateWindow
}

func (v OrdersVars) variables() map[string]any {
	return map[string]any{
		"first": v.First,
		"after": v.After,
		"query": OrdersFilter(v.Window),
	}
}

// DateWindow bounds orders by processed date, both ends inclusive.
// A zero Start or End leaves that side open.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

func (w DateWindow) IsZero() bool { return w.Start.IsZero() && w.End.IsZero() }

// Key is a stable string form used to tell order collections apart.
func (w DateWindow) Key() string {
	var s, e string
	if !w.Start.IsZero() {
		s = w.Start.Format(dateLayout)
	}
	if !w.End.IsZero() {
		e = w.End.Format(dateLayout)
	}
	return s + ".." + e
}

// ParseDateWindow parses optional YYYY-MM-DD bounds.
func ParseDateWindow(start, end string) (DateWindow, error) {
	var w DateWindow
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)

	if start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return DateWindow{}, fmt.Errorf("invalid start date %q (expected YYYY-MM-DD)", start)
		}
		w.Start = t
	}
	if end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return DateWindow{}, fmt.Errorf("invalid end date %q (expected YYYY-MM-DD)", end)
		}
		w.End = t
	}
	if !w.Start.IsZero() && !w.End.IsZero() && w.Start.After(w.End) {
		return DateWindow{}, fmt.Errorf("start date %s is after end date %s", start, end)
	}
	return w, nil
}

// LastDays is the window of n calendar days ending today, today included.
func LastDays(now time.Time, n int) DateWindow {
	if n < 1 {
		n = 1
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return DateWindow{Start: today.AddDate(0, 0, -(n - 1)), End: today}
}

// OrdersFilter renders the Shopify search syntax for a processed_at window.
// Returns nil when the window is unbounded so the variable is sent as null.
func OrdersFilter(w DateWindow) *string {
	parts := make([]string, 0, 2)
	if !w.Start.IsZero() {
		parts = append(parts, "processed_at:>="+w.Start.Format(dateLayout))
	}
	if !w.End.IsZero() {
		parts = append(parts, "processed_at:<="+w.End.Format(dateLayout))
	}
	if len(parts) == 0 {
		return nil
	}
	q := strings.Join(parts, " AND ")
	return &q
}
