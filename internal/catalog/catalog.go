// Package catalog holds the category definitions used to classify
// transactions and derive monthly totals.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"fintrack/internal/core"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML layout.
type File struct {
	Default    string                    `yaml:"default"`
	Categories []core.CategoryDefinition `yaml:"categories"`
	// Mappings renames bank-provided categories to catalog names.
	Mappings map[string]string `yaml:"mappings"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	defs     map[string]core.CategoryDefinition
	order    []string
	mappings map[string]string
	fallback string
}

// New builds a catalog from definitions. Names must be unique and non-empty.
func New(defs []core.CategoryDefinition, mappings map[string]string, fallback string) (*Catalog, error) {
	if fallback == "" {
		fallback = core.DefaultCategory
	}
	c := &Catalog{
		defs:     make(map[string]core.CategoryDefinition, len(defs)),
		mappings: make(map[string]string, len(mappings)),
		fallback: fallback,
	}
	for _, d := range defs {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return nil, errors.New("category with empty name")
		}
		if _, dup := c.defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", d.Name)
		}
		if d.IsIncome && d.IsPayment {
			return nil, fmt.Errorf("category %q cannot be both income and payment", d.Name)
		}
		c.defs[d.Name] = d
		c.order = append(c.order, d.Name)
	}
	if _, ok := c.defs[fallback]; !ok {
		c.defs[fallback] = core.CategoryDefinition{Name: fallback}
		c.order = append(c.order, fallback)
	}
	for from, to := range mappings {
		if _, ok := c.defs[to]; !ok {
			return nil, fmt.Errorf("mapping %q targets unknown category %q", from, to)
		}
		c.mappings[strings.TrimSpace(from)] = to
	}
	return c, nil
}

// Load reads a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(f.Categories, f.Mappings, f.Default)
}

// LoadOrDefault loads path when set, otherwise returns the built-in catalog.
func LoadOrDefault(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}

// Lookup implements core.CategoryLookup.
func (c *Catalog) Lookup(name string) (core.CategoryDefinition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// Names returns category names in definition order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Investments returns the sorted names of investment categories.
func (c *Catalog) Investments() []string {
	var out []string
	for name, d := range c.defs {
		if d.IsInvestment {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Fallback is the category used when nothing matches.
func (c *Catalog) Fallback() string {
	return c.fallback
}

// Guess picks a category for a transaction. A bank category already in the
// catalog wins, then a configured mapping, then the first keyword match in
// definition order.
func (c *Catalog) Guess(description, bankCategory string) string {
	bankCategory = strings.TrimSpace(bankCategory)
	if bankCategory != "" {
		if _, ok := c.defs[bankCategory]; ok {
			return bankCategory
		}
		if mapped, ok := c.mappings[bankCategory]; ok {
			return mapped
		}
	}
	for _, name := range c.order {
		if c.defs[name].Matches(description) {
			return name
		}
	}
	return c.fallback
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultDefinitions, defaultMappings, core.DefaultCategory)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in catalog: %v", err))
	}
	return c
}

var defaultDefinitions = []core.CategoryDefinition{
	{Name: "Pay", Keywords: []string{"payroll", "direct dep", "salary"}, IsIncome: true},
	{Name: "Payment", Keywords: []string{"autopay", "payment thank you", "online payment"}, IsPayment: true},
	{Name: "Acorns", Keywords: []string{"acorns"}, IsInvestment: true},
	{Name: "Wealthfront", Keywords: []string{"wealthfront"}, IsInvestment: true},
	{Name: "Robinhood", Keywords: []string{"robinhood"}, IsInvestment: true},
	{Name: "Schwab", Keywords: []string{"schwab"}, IsInvestment: true},
	{Name: "Rent", Keywords: []string{"rent", "apartments", "property mgmt"}},
	{Name: "Utilities", Keywords: []string{"electric", "pg&e", "comcast", "xfinity", "water", "verizon", "t-mobile"}},
	{Name: "Groceries", Keywords: []string{"safeway", "trader joe", "whole foods", "kroger", "costco"}},
	{Name: "Dining", Keywords: []string{"restaurant", "coffee", "starbucks", "doordash", "grubhub", "cafe"}},
	{Name: "Transportation", Keywords: []string{"uber", "lyft", "shell", "chevron", "parking", "bart"}},
	{Name: "Shopping", Keywords: []string{"amazon", "target", "walmart", "best buy"}},
	{Name: "Entertainment", Keywords: []string{"netflix", "spotify", "hulu", "cinema", "steam"}},
	{Name: "Travel", Keywords: []string{"airline", "hotel", "airbnb", "delta", "united"}},
	{Name: "Health", Keywords: []string{"pharmacy", "cvs", "walgreens", "dental", "clinic"}},
	{Name: "Venmo", Keywords: []string{"venmo"}},
	{Name: "Zelle", Keywords: []string{"zelle"}},
}

var defaultMappings = map[string]string{
	"Food & Drink":          "Dining",
	"Restaurants":           "Dining",
	"Groceries & Grocery":   "Groceries",
	"Gas":                   "Transportation",
	"Travel/ Entertainment": "Travel",
	"Bills & Utilities":     "Utilities",
	"Entertainment & Rec":   "Entertainment",
	"Health & Wellness":     "Health",
	"Merchandise":           "Shopping",
}
