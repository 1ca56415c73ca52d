//go:build integration

package google

import (
	"context"
	"os"
	"testing"

	"fintrack/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_MirrorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := Config{
		SpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		OAuthClientJSON: os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"),
		OAuthClientFile: os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"),
		OAuthTokenJSON:  os.Getenv("GOOGLE_OAUTH_TOKEN_JSON"),
		OAuthTokenFile:  os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"),
	}
	if cfg.SpreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	if (cfg.OAuthClientJSON == "" && cfg.OAuthClientFile == "") || (cfg.OAuthTokenJSON == "" && cfg.OAuthTokenFile == "") {
		t.Skip("OAuth credentials not configured, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	agg := core.NewMonthlyAggregate("1999-01")
	agg.CategoryTotals["IntegrationTest"] = dec("1.23")
	agg.Total = dec("1.23")
	agg.TotalMinusInvestment = dec("1.23")

	if err := client.WriteAggregates(ctx, []core.MonthlyAggregate{agg}); err != nil {
		t.Fatalf("WriteAggregates() error = %v", err)
	}

	got, ok, err := client.ReadAggregate(ctx, "1999-01")
	if err != nil || !ok {
		t.Fatalf("ReadAggregate() = %v, %v", ok, err)
	}
	if !got.CategoryTotals["IntegrationTest"].Equal(dec("1.23")) {
		t.Errorf("IntegrationTest total = %s, want 1.23", got.CategoryTotals["IntegrationTest"])
	}
}
