package model

import "time"

const (
	Muffin    = "muffin"
	Donut     = "donut"
	Pie       = "pie"
	Cupcake   = "cupcake"
	Croissant = "croissant"
)

// ItemNames is the closed set of baked goods in catalog order.
var ItemNames = [...]string{Muffin, Donut, Pie, Cupcake, Croissant}

// Quantities holds one count per catalog item, indexed like ItemNames.
type Quantities [len(ItemNames)]int

// Sum returns the total number of goods.
func (q Quantities) Sum() int {
	total := 0
	for _, n := range q {
		total += n
	}
	return total
}

type Item struct {
	Name       string  `json:"-"`
	Price      float64 `json:"price"`
	Img        string  `json:"img"`
	UpperBound int     `json:"upperBound"`
}

// ValidatedOrder is an order that passed validation but has not been stored yet.
type ValidatedOrder struct {
	Username   string
	Quantities Quantities
}

type Receipt struct {
	ID       int64     `json:"id"`
	PlacedOn time.Time `json:"placedOn"`
}

type Order struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	NumMuffin    int       `json:"numMuffin"`
	NumDonut     int       `json:"numDonut"`
	NumPie       int       `json:"numPie"`
	NumCupcake   int       `json:"numCupcake"`
	NumCroissant int       `json:"numCroissant"`
	PlacedOn     time.Time `json:"placedOn"`
}

// Quantities returns the order counts in catalog order.
func (o Order) Quantities() Quantities {
	return Quantities{o.NumMuffin, o.NumDonut, o.NumPie, o.NumCupcake, o.NumCroissant}
}
