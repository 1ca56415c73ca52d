package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
	ports "fintrack/internal/sheets"
)

// Config selects the spreadsheet and the OAuth material used to reach it.
// Inline JSON wins over the matching file.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger

	// writes read-modify-write the whole sheet
	mu sync.Mutex
}

// Ensure interface conformance
var _ ports.AggregateMirror = (*Client)(nil)

// New creates a Sheets client authorized with a stored OAuth token.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Summary"
	}
	if logger == nil {
		logger = log.Default()
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		sheetName:     sheetName,
		logger:        logger.WithComponent(log.ComponentSheets),
	}, nil
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	clientJSON, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile, "oauth client")
	if err != nil {
		return nil, err
	}
	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tokenJSON, err := readSecret(cfg.OAuthTokenJSON, cfg.OAuthTokenFile, "oauth token")
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	httpClient := oauth2.NewClient(httpCtx, oauthCfg.TokenSource(httpCtx, &tok))

	service, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func readSecret(inline, file, what string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(file) != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", what, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("missing %s credentials", what)
	}
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// WriteAggregates upserts one row per aggregate, keyed by month in column A.
// New categories become new columns ahead of the total columns; when the
// header changes every existing row is rewritten in the new column order.
func (c *Client) WriteAggregates(ctx context.Context, aggs []core.MonthlyAggregate) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if len(aggs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	values, err := c.readAll(ctx)
	if err != nil {
		return err
	}
	l := parseLayout(values)
	header := mergeHeader(l.header, aggs)
	lastCol := columnName(len(header))

	var data []*gsheet.ValueRange
	rowRange := func(r int) string {
		return fmt.Sprintf("%s!A%d:%s%d", c.quotedSheet(), r, lastCol, r)
	}

	if !sameHeader(l.header, header) {
		hdr := make([]interface{}, len(header))
		for i, h := range header {
			hdr[i] = h
		}
		data = append(data, &gsheet.ValueRange{Range: rowRange(1), Values: [][]interface{}{hdr}})

		// existing rows follow the old column order
		for month, r := range l.rows {
			old, err := decodeRow(l.header, values[r-1])
			if err != nil {
				c.logger.WarnContext(ctx, "Skipping unreadable mirror row", log.FieldMonth, month, log.FieldError, err)
				continue
			}
			data = append(data, &gsheet.ValueRange{Range: rowRange(r), Values: [][]interface{}{encodeRow(header, old)}})
		}
		if l.lastRow == 0 {
			l.lastRow = 1
		}
	}

	for _, agg := range aggs {
		r, ok := l.rows[agg.MonthKey]
		if !ok {
			l.lastRow++
			r = l.lastRow
			l.rows[agg.MonthKey] = r
		}
		data = append(data, &gsheet.ValueRange{Range: rowRange(r), Values: [][]interface{}{encodeRow(header, agg)}})
	}

	req := &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("batch update %s: %w", c.sheetName, err)
	}

	c.logger.InfoContext(ctx, "Mirrored aggregates",
		log.FieldOperation, log.OpMirror,
		"months", len(aggs),
		"columns", len(header))
	return nil
}

// ReadAggregate reads the mirrored row for month.
func (c *Client) ReadAggregate(ctx context.Context, month string) (core.MonthlyAggregate, bool, error) {
	if c.svc == nil {
		return core.MonthlyAggregate{}, false, errors.New("sheets service not initialized")
	}
	values, err := c.readAll(ctx)
	if err != nil {
		return core.MonthlyAggregate{}, false, err
	}
	l := parseLayout(values)
	r, ok := l.rows[month]
	if !ok {
		return core.MonthlyAggregate{}, false, nil
	}
	agg, err := decodeRow(l.header, values[r-1])
	if err != nil {
		return core.MonthlyAggregate{}, false, err
	}
	return agg, true, nil
}

func (c *Client) readAll(ctx context.Context) ([][]interface{}, error) {
	rng := c.quotedSheet()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) quotedSheet() string {
	return "'" + strings.ReplaceAll(c.sheetName, "'", "''") + "'"
}
