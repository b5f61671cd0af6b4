package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

const (
	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
)

var _ ports.TransactionMirror = (*Client)(nil)

// Options selects the target sheet and the service account used to reach it.
// CredentialsJSON wins over CredentialsFile.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client appends ledger rows to one sheet of a spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	sleep         func(time.Duration)
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Transactions"
	}

	credentials, err := loadCredentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets mirror ready", "spreadsheet_id", spreadsheetID, "sheet", sheetName)
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName, sleep: time.Sleep}, nil
}

func loadCredentials(opts Options) ([]byte, error) {
	if j := strings.TrimSpace(opts.CredentialsJSON); j != "" {
		return []byte(j), nil
	}
	if path := strings.TrimSpace(opts.CredentialsFile); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// AppendTransactions appends the rows the sheet does not hold yet. The
// header is written first when the sheet is empty.
func (c *Client) AppendTransactions(ctx context.Context, txs []core.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	var existing [][]any
	err := c.retry(ctx, "read ids", func() error {
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return err
		}
		existing = resp.Values
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rng, err)
	}

	seen := existingIDs(existing)
	var rows [][]any
	if len(existing) == 0 {
		rows = append(rows, headerRow)
	}
	appended := 0
	for _, t := range txs {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		rows = append(rows, transactionRow(t))
		appended++
	}
	if appended == 0 {
		return 0, nil
	}

	target := fmt.Sprintf("%s!%s", c.sheetName, columnRange)
	vr := &gsheet.ValueRange{Values: rows}
	err = c.retry(ctx, "append", func() error {
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, target, vr).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", c.sheetName, err)
	}
	return appended, nil
}

// retry runs fn until it succeeds, fails permanently or runs out of attempts.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil || !isRetryable(err) || attempt == maxAttempts {
			return err
		}
		wait := baseBackoff << (attempt - 1)
		slog.WarnContext(ctx, "Sheets request failed, retrying", "operation", op, "attempt", attempt, "wait", wait, "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.sleep(wait)
	}
	return err
}

// isRetryable reports whether the API asked us to slow down or failed on
// its side.
func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}
