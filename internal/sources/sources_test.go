package sources

import (
	"errors"
	"strings"
	"testing"
)

const chaseCSV = `Transaction Date,Post Date,Description,Category,Type,Amount,Memo
03/01/2024,03/02/2024,STARBUCKS 123,Food & Drink,Sale,-4.50,
03/02/2024,03/03/2024,PAYROLL ACME,Pay,Credit,2500.00,
03/03/2024,03/03/2024,Zelle from Alex,,Credit,40.00,
03/04/2024,03/04/2024,Zelle to Sam,,Debit,-25.00,
03/05/2024,03/05/2024,AMAZON REFUND,Shopping,Return,12.00,
`

const citiCSV = `Status,Date,Description,Debit,Credit,Member Name
Cleared,03/01/2024,WHOLE FOODS,45.10,,PAT
Cleared,03/02/2024,ONLINE PAYMENT THANK YOU,,-300.00,PAT
`

const wellsCSV = `"03/01/2024","-60.00","*","","PG&E ELECTRIC"
"03/02/2024","1500.00","*","","DIRECT DEP ACME"
`

func amounts(t *testing.T, tag, data string) []string {
	t.Helper()
	_, rows, err := DefaultRegistry().Parse(tag, []byte(data))
	if err != nil {
		t.Fatalf("Parse(%s): %v", tag, err)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Amount
		if r.Source != tag {
			t.Errorf("row %d source = %q, want %q", i, r.Source, tag)
		}
	}
	return out
}

func TestChase_SignConventions(t *testing.T) {
	got := amounts(t, "chase", chaseCSV)
	want := []string{"4.5", "-2500", "-40", "25", "-12"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("amounts = %v, want %v", got, want)
	}
}

func TestChase_KeepsFileOrderAndLines(t *testing.T) {
	_, rows, err := DefaultRegistry().Parse("chase", []byte(chaseCSV))
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range rows {
		if r.Line != i+2 {
			t.Errorf("row %d line = %d", i, r.Line)
		}
	}
	if rows[0].Category != "Food & Drink" || rows[0].Date != "03/01/2024" {
		t.Errorf("first row = %+v", rows[0])
	}
}

func TestCiti_CreditIsMoneyIn(t *testing.T) {
	got := amounts(t, "citi", citiCSV)
	want := []string{"45.1", "-300"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("amounts = %v, want %v", got, want)
	}
}

func TestWells_Headerless(t *testing.T) {
	_, rows, err := DefaultRegistry().Parse("wells", []byte(wellsCSV))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].Amount != "60" || rows[0].Description != "PG&E ELECTRIC" {
		t.Errorf("first row = %+v", rows[0])
	}
	if rows[1].Amount != "-1500" {
		t.Errorf("deposit amount = %s", rows[1].Amount)
	}
}

func TestRegistry_Detect(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"chase", chaseCSV, "chase"},
		{"citi", citiCSV, "citi"},
		{"wells", wellsCSV, "wells"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, err := DefaultRegistry().Parse("", []byte(tt.data))
			if err != nil {
				t.Fatal(err)
			}
			if a.Tag() != tt.want {
				t.Errorf("detected %s, want %s", a.Tag(), tt.want)
			}
		})
	}

	if _, _, err := DefaultRegistry().Parse("", []byte("a,b\n1,2\n")); !errors.Is(err, ErrUndetected) {
		t.Errorf("expected ErrUndetected, got %v", err)
	}
	if _, err := DefaultRegistry().Get("amex"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func TestUnparseableAmountPassesThrough(t *testing.T) {
	data := "Transaction Date,Post Date,Description,Category,Type,Amount,Memo\n03/01/2024,03/01/2024,X,,Sale,n/a,\n"
	got := amounts(t, "chase", data)
	if got[0] != "n/a" {
		t.Errorf("amount = %q, want raw text", got[0])
	}
}

func TestRegistry_Tags(t *testing.T) {
	tags := DefaultRegistry().Tags()
	if strings.Join(tags, ",") != "chase,citi,wells" {
		t.Errorf("tags = %v", tags)
	}
}
