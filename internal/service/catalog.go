package service

import (
	"bytes"
	"encoding/json"
	"strings"

	"badger/bakery-api/internal/model"
)

// Catalog is the fixed, read-only list of baked goods.
type Catalog struct {
	items []model.Item
	index map[string]int
}

// NewCatalog builds the bakery catalog; image links are rooted at baseURL.
func NewCatalog(baseURL string) *Catalog {
	img := func(name string) string {
		return strings.TrimRight(baseURL, "/") + "/api/bakery/images/" + name
	}

	items := []model.Item{
		{Name: model.Muffin, Price: 1.50, Img: img(model.Muffin), UpperBound: 12},
		{Name: model.Donut, Price: 1.00, Img: img(model.Donut), UpperBound: 24},
		{Name: model.Pie, Price: 6.75, Img: img(model.Pie), UpperBound: 6},
		{Name: model.Cupcake, Price: 2.00, Img: img(model.Cupcake), UpperBound: 12},
		{Name: model.Croissant, Price: 0.75, Img: img(model.Croissant), UpperBound: 12},
	}

	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.Name] = i
	}
	return &Catalog{items: items, index: index}
}

// Items returns the catalog in its fixed order.
func (c *Catalog) Items() []model.Item {
	out := make([]model.Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) Lookup(name string) (model.Item, bool) {
	i, ok := c.index[name]
	if !ok {
		return model.Item{}, false
	}
	return c.items[i], true
}

// IsValidName is a case-sensitive membership test.
func (c *Catalog) IsValidName(name string) bool {
	_, ok := c.index[name]
	return ok
}

func (c *Catalog) Names() []string {
	names := make([]string, len(c.items))
	for i, item := range c.items {
		names[i] = item.Name
	}
	return names
}

// position returns the slot of name in model.Quantities.
func (c *Catalog) position(name string) int {
	return c.index[name]
}

// MarshalJSON encodes the catalog as an object keyed by item name, keeping
// catalog order.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range c.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(item.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
