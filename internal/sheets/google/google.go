// Package google writes reconciliation reports to a Google Sheets spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"caisse/internal/config"
	"caisse/internal/log"
	"caisse/internal/reconcile"
	"caisse/internal/report"
)

// Config holds the spreadsheet target and the OAuth credentials. Inline JSON
// takes precedence over files.
type Config struct {
	SpreadsheetID string
	SheetBase     string
	ClientJSON    string
	ClientFile    string
	TokenJSON     string
	TokenFile     string
}

// ConfigFrom extracts the Sheets settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		SheetBase:     cfg.GoogleReportSheetName,
		ClientJSON:    cfg.GoogleOAuthClientJSON,
		ClientFile:    cfg.GoogleOAuthClientFile,
		TokenJSON:     cfg.GoogleOAuthTokenJSON,
		TokenFile:     cfg.GoogleOAuthTokenFile,
	}
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger

	mu    sync.Mutex
	known map[string]bool
}

// New creates a report writer authenticated with a stored OAuth token.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetBase, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Rapprochement"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetBase),
		logger:        logger.WithComponent(log.ComponentSheets),
		known:         map[string]bool{},
	}
}

// newSheetsService builds a Sheets service from an installed-app OAuth client
// and a token obtained with caisse-oauth-init.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	clientJSON, err := readCredential(cfg.ClientJSON, cfg.ClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if clientJSON == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	tokenJSON, err := readCredential(cfg.TokenJSON, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	httpClient := oauthCfg.Client(ctx, &tok)
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

// readCredential returns the inline value, else the file contents, else nil.
func readCredential(inline, file string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if f := strings.TrimSpace(file); f != "" {
		return os.ReadFile(f)
	}
	return nil, nil
}

// SheetName is the tab a period is written to: "2024-01 Rapprochement" for a
// calendar month, "2024 Rapprochement" for a calendar year, and the base
// followed by the range key otherwise.
func SheetName(base string, p reconcile.Period) string {
	base = strings.TrimSpace(base)
	from, to := p.From, p.To
	switch {
	case from.Day() == 1 && to.Equal(from.AddDate(0, 1, -1)):
		return fmt.Sprintf("%04d-%02d %s", from.Year(), int(from.Month()), base)
	case from.YearDay() == 1 && to.Equal(from.AddDate(1, 0, -1)):
		return yearPrefixedName(base, from.Year())
	default:
		return base + " " + p.Key()
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteSheet escapes a sheet title for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// WriteReport replaces the content of the period's tab with the table and
// returns the range written. The tab is created when missing.
func (c *Client) WriteReport(ctx context.Context, p reconcile.Period, t report.Table) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	name := SheetName(c.sheetBase, p)
	if err := c.ensureSheet(ctx, name); err != nil {
		return "", err
	}

	quoted := quoteSheet(name)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", name, err)
	}

	vr := &gsheet.ValueRange{Values: t.Records(report.Float)}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoted+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", name, err)
	}

	c.logger.InfoContext(ctx, "Report written to sheet",
		log.FieldOperation, log.OpExport,
		log.FieldPeriod, p.Key(),
		log.FieldSheetsRange, resp.UpdatedRange,
		log.FieldRows, len(t.Rows))
	return resp.UpdatedRange, nil
}

func (c *Client) ensureSheet(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[name] {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			c.known[sh.Properties.Title] = true
		}
	}
	if c.known[name] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", name, err)
	}
	c.known[name] = true
	c.logger.InfoContext(ctx, "Sheet created", "sheet", name)
	return nil
}
