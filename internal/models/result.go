package models

import "fmt"

// RestaurantResult is a restaurant paired with its similarity to the query.
type RestaurantResult struct {
	Restaurant Restaurant `json:"restaurant"`
	Score      float64    `json:"score"`
}

// MenuItemResult is a menu item with the context of the restaurant that serves it.
// Score is either the item's own similarity or the score inherited from its restaurant.
type MenuItemResult struct {
	RestaurantID   string   `json:"restaurant_id"`
	RestaurantName string   `json:"restaurant_name"`
	Item           MenuItem `json:"item"`
	Score          float64  `json:"score"`
}

// Label renders the restaurant as "name (address)".
func (r RestaurantResult) Label() string {
	return fmt.Sprintf("%s (%s)", r.Restaurant.Name, r.Restaurant.Address)
}

// Label renders the item as "name - price VND at restaurant".
func (m MenuItemResult) Label() string {
	return fmt.Sprintf("%s - %s VND at %s", m.Item.Name, FormatPrice(m.Item.Price), m.RestaurantName)
}

// CatalogPage is a window [Start, Start+Limit) over the catalog. Limit <= 0 means "to the end".
type CatalogPage struct {
	Start int
	Limit int
}

// Bounds clamps the page to a catalog of n records and returns the half-open range.
func (p CatalogPage) Bounds(n int) (lo, hi int) {
	lo = p.Start
	if lo < 0 {
		lo = 0
	}
	if lo > n {
		lo = n
	}
	hi = n
	if p.Limit > 0 && lo+p.Limit < n {
		hi = lo + p.Limit
	}
	return lo, hi
}

// Contains reports whether the running index i falls inside the page.
func (p CatalogPage) Contains(i int) bool {
	if i < p.Start {
		return false
	}
	return p.Limit <= 0 || i < p.Start+p.Limit
}

// Exhausted reports whether no index at or after i can fall inside the page.
func (p CatalogPage) Exhausted(i int) bool {
	return p.Limit > 0 && i >= p.Start+p.Limit
}
