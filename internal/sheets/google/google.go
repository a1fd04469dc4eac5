package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"finboard/internal/dataset"
	ports "finboard/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// valuesGetter is the part of the Sheets API the client uses.
type valuesGetter interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

type Client struct {
	values        valuesGetter
	spreadsheetID string
}

// Ensure interface conformance
var _ ports.TableReader = (*Client)(nil)

type sheetsValues struct {
	svc *gsheet.Service
}

func (v sheetsValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := v.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"))
}

// New creates a read-only client for one spreadsheet.
func New(ctx context.Context, spreadsheetID string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{values: sheetsValues{svc: svc}, spreadsheetID: spreadsheetID}, nil
}

// newSheetsService initializes a read-only Sheets service from Service
// Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ReadTable reads a whole tab. File extensions in name are ignored, so the
// dataset names used for local files also address tabs ("tips.csv" reads
// the "tips" tab).
func (c *Client) ReadTable(ctx context.Context, name string) (*dataset.Table, error) {
	title := tabTitle(name)
	rng := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	values, err := c.values.Get(ctx, c.spreadsheetID, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s: %w", title, ports.ErrTableNotFound)
	}
	return tableFromValues(name, values)
}

func tabTitle(name string) string {
	name = strings.TrimSpace(name)
	return strings.TrimSuffix(name, path.Ext(name))
}
