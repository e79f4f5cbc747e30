package models

import (
	"fmt"
	"strings"
)

// Product identifies one purchasable item of the storefront catalog.
type Product string

const (
	ProductBooking           Product = "booking"
	ProductNatalChart        Product = "natal-chart"
	ProductKarmicChart       Product = "karmic-chart"
	ProductTransitChart      Product = "transit-chart"
	ProductRelationshipChart Product = "relationship-chart"
)

// Catalog lists every known product in the order routes are registered.
var Catalog = []Product{
	ProductBooking,
	ProductNatalChart,
	ProductKarmicChart,
	ProductTransitChart,
	ProductRelationshipChart,
}

// ParseProduct normalises value and checks it against the catalog.
func ParseProduct(value string) (Product, error) {
	candidate := Product(strings.ToLower(strings.TrimSpace(value)))
	for _, product := range Catalog {
		if product == candidate {
			return product, nil
		}
	}
	return "", fmt.Errorf("unknown product %q", value)
}

// PriceEnvKey returns the environment variable that holds the product's price identifier.
func (p Product) PriceEnvKey() string {
	return "STRIPE_" + strings.ToUpper(strings.ReplaceAll(string(p), "-", "_")) + "_PRICE"
}

// CreateSessionPath returns the route that creates a checkout session for the product.
func (p Product) CreateSessionPath() string {
	return "/create-session-" + string(p)
}
