// Package models defines the catalog records, query payloads, and ranked results shared across packages.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MenuItem is a single dish offered by a restaurant. It has no identity outside its restaurant.
type MenuItem struct {
	Name  string  `json:"name" mapstructure:"name"`
	Price float64 `json:"price" mapstructure:"price"`
}

// Restaurant is one catalog record. ID is kept as text because catalogs mix numeric and string ids.
type Restaurant struct {
	ID      string     `json:"id" mapstructure:"id"`
	Name    string     `json:"name" mapstructure:"name"`
	Address string     `json:"address" mapstructure:"address"`
	Items   []MenuItem `json:"items" mapstructure:"items"`
}

type rawRestaurant struct {
	ID      json.RawMessage `json:"id"`
	Name    string          `json:"name"`
	Address string          `json:"address"`
	Items   []*rawMenuItem  `json:"items"`
}

type rawMenuItem struct {
	Name  string          `json:"name"`
	Price json.RawMessage `json:"price"`
}

// UnmarshalJSON accepts numeric or string ids and drops null menu entries. Values that cannot be
// coerced are zeroed; see DecodeRestaurant.
func (r *Restaurant) UnmarshalJSON(data []byte) error {
	rec, _, err := DecodeRestaurant(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// DecodeRestaurant decodes one catalog record. An id that is neither a string nor a number
// becomes empty and a price that is not a number becomes 0; each such value is described in the
// returned notes. Only a record that is not a JSON object with the expected shape is an error.
func DecodeRestaurant(data []byte) (Restaurant, []string, error) {
	var raw rawRestaurant
	if err := json.Unmarshal(data, &raw); err != nil {
		return Restaurant{}, nil, err
	}
	var notes []string
	id, ok := decodeID(raw.ID)
	if !ok {
		notes = append(notes, fmt.Sprintf("unsupported id %s", string(raw.ID)))
	}
	r := Restaurant{
		ID:      id,
		Name:    raw.Name,
		Address: raw.Address,
		Items:   make([]MenuItem, 0, len(raw.Items)),
	}
	for _, it := range raw.Items {
		if it == nil {
			continue
		}
		price, ok := decodePrice(it.Price)
		if !ok {
			notes = append(notes, fmt.Sprintf("item %q: unparseable price %s", it.Name, string(it.Price)))
		}
		r.Items = append(r.Items, MenuItem{Name: it.Name, Price: price})
	}
	return r, notes, nil
}

func decodeID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

// decodePrice tolerates prices written as strings ("30000") as well as numbers. Anything else,
// such as "Liên hệ", reports false.
func decodePrice(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, true
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, true
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return p, true
	}
	var p float64
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, false
	}
	return p, true
}

// FormatPrice renders a price in its shortest decimal form (30000, 12.5).
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// Text is the embedding text for a menu item.
func (m MenuItem) Text() string {
	return m.Name + " - Price: " + FormatPrice(m.Price) + " VND"
}

// Text is the embedding text for a restaurant: id, name, address, then one line per menu item.
func (r *Restaurant) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Restaurant ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Name: %s\n", r.Name)
	fmt.Fprintf(&b, "Address: %s\n", r.Address)
	b.WriteString("Menu items:\n")
	for _, it := range r.Items {
		b.WriteString("- ")
		b.WriteString(it.Text())
		b.WriteByte('\n')
	}
	return b.String()
}

// Clone returns a copy that shares no menu slice with r.
func (r Restaurant) Clone() Restaurant {
	if r.Items != nil {
		r.Items = append(make([]MenuItem, 0, len(r.Items)), r.Items...)
	}
	return r
}
