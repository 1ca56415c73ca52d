package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"fintrack/internal/core"
)

func TestDefault_Definitions(t *testing.T) {
	c := Default()

	for _, name := range []string{"Acorns", "Wealthfront", "Robinhood", "Schwab"} {
		d, ok := c.Lookup(name)
		if !ok || !d.IsInvestment {
			t.Errorf("%s should be an investment category", name)
		}
	}
	if d, _ := c.Lookup("Pay"); !d.IsIncome {
		t.Error("Pay should be income")
	}
	if d, _ := c.Lookup("Payment"); !d.IsPayment {
		t.Error("Payment should be a payment")
	}
	if _, ok := c.Lookup(core.DefaultCategory); !ok {
		t.Error("fallback category must be defined")
	}
	if got := c.Investments(); len(got) != 4 {
		t.Errorf("Investments() = %v", got)
	}
}

func TestCatalog_Guess(t *testing.T) {
	c := Default()
	tests := []struct {
		name, desc, bank, want string
	}{
		{"known bank category kept", "STARBUCKS 123", "Travel", "Travel"},
		{"bank category mapped", "SOMEWHERE", "Food & Drink", "Dining"},
		{"keyword match", "STARBUCKS STORE 0042", "", "Dining"},
		{"keyword beats unknown bank category", "ACORNS INVEST", "Transfer", "Acorns"},
		{"fallback", "UNRECOGNIZABLE", "", core.DefaultCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Guess(tt.desc, tt.bank); got != tt.want {
				t.Errorf("Guess(%q, %q) = %q, want %q", tt.desc, tt.bank, got, tt.want)
			}
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	data := `default: Other
categories:
  - name: Brokerage
    keywords: [vanguard, fidelity]
    investment: true
  - name: Salary
    keywords: [payroll]
    income: true
mappings:
  Investments: Brokerage
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Fallback() != "Other" {
		t.Errorf("fallback = %q", c.Fallback())
	}
	if d, ok := c.Lookup("Brokerage"); !ok || !d.IsInvestment {
		t.Error("Brokerage should be an investment")
	}
	if got := c.Guess("VANGUARD BUY", ""); got != "Brokerage" {
		t.Errorf("Guess = %q", got)
	}
	if got := c.Guess("x", "Investments"); got != "Brokerage" {
		t.Errorf("mapped Guess = %q", got)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		defs     []core.CategoryDefinition
		mappings map[string]string
	}{
		{"empty name", []core.CategoryDefinition{{Name: " "}}, nil},
		{"duplicate", []core.CategoryDefinition{{Name: "A"}, {Name: "A"}}, nil},
		{"income and payment", []core.CategoryDefinition{{Name: "A", IsIncome: true, IsPayment: true}}, nil},
		{"mapping to unknown", []core.CategoryDefinition{{Name: "A"}}, map[string]string{"x": "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.defs, tt.mappings, ""); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadOrDefault_EmptyPath(t *testing.T) {
	c, err := LoadOrDefault("")
	if err != nil || c == nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
}
