package catalog

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnknownPackage indicates the requested package id is not in the catalog.
var ErrUnknownPackage = errors.New("unknown package")

// Package is a purchasable credit bundle. Price is in THB.
type Package struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Credits int64           `json:"credits"`
	Price   decimal.Decimal `json:"price"`
}

// PriceSatang returns the package price in satang, the minor unit expected
// by payment providers.
func (p Package) PriceSatang() int64 {
	return p.Price.Mul(decimal.NewFromInt(100)).IntPart()
}

// Catalog is an immutable ordered set of packages.
type Catalog struct {
	packages []Package
	byID     map[string]Package
}

// New builds a catalog from the given packages, preserving order.
func New(packages []Package) (*Catalog, error) {
	byID := make(map[string]Package, len(packages))
	for _, pkg := range packages {
		if pkg.Credits <= 0 {
			return nil, fmt.Errorf("package %s: credits must be positive", pkg.ID)
		}
		if !pkg.Price.IsPositive() {
			return nil, fmt.Errorf("package %s: price must be positive", pkg.ID)
		}
		if _, dup := byID[pkg.ID]; dup {
			return nil, fmt.Errorf("package %s: duplicate id", pkg.ID)
		}
		byID[pkg.ID] = pkg
	}
	return &Catalog{packages: packages, byID: byID}, nil
}

// Default returns the production credit package table.
func Default() *Catalog {
	c, err := New([]Package{
		{ID: "P10", Title: "10 สิทธิ์", Credits: 10, Price: decimal.NewFromInt(39)},
		{ID: "P30", Title: "30 สิทธิ์", Credits: 30, Price: decimal.NewFromInt(99)},
		{ID: "P50", Title: "50 สิทธิ์", Credits: 50, Price: decimal.NewFromInt(149)},
		{ID: "P100", Title: "100 สิทธิ์", Credits: 100, Price: decimal.NewFromInt(279)},
		{ID: "P300", Title: "300 สิทธิ์", Credits: 300, Price: decimal.NewFromInt(699)},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// List returns packages in catalog order.
func (c *Catalog) List() []Package {
	out := make([]Package, len(c.packages))
	copy(out, c.packages)
	return out
}

// Resolve looks up a package by id.
func (c *Catalog) Resolve(id string) (*Package, error) {
	pkg, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, id)
	}
	return &pkg, nil
}
