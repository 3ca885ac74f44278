// Package tableclickhouse inserts entity tables into ClickHouse over its
// HTTP interface using JSONEachRow.
package tableclickhouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"entitygraph/pkg/models"
)

// Config configures the ClickHouse HTTP writer.
type Config struct {
	URL         string
	Database    string
	TablePrefix string
	Username    string
	Password    string
	// Replace deletes the partition's previous rows before inserting.
	Replace bool
	Timeout time.Duration
	Headers map[string]string
}

// Writer sends tables to ClickHouse.
type Writer struct {
	base     string
	database string
	prefix   string
	replace  bool
	headers  map[string]string
	client   *http.Client
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	headers := map[string]string{}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Username != "" {
		headers["X-ClickHouse-User"] = cfg.Username
	}
	if cfg.Password != "" {
		headers["X-ClickHouse-Key"] = cfg.Password
	}

	return &Writer{
		base:     strings.TrimRight(cfg.URL, "/"),
		database: cfg.Database,
		prefix:   cfg.TablePrefix,
		replace:  cfg.Replace,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (w *Writer) target(table string) string {
	return quoteIdent(w.database) + "." + quoteIdent(w.prefix+table)
}

// InsertQuery is the statement rows are posted under.
func (w *Writer) InsertQuery(table string) string {
	return fmt.Sprintf("INSERT INTO %s FORMAT JSONEachRow", w.target(table))
}

// DeleteQuery removes the rows of p from table.
func (w *Writer) DeleteQuery(table string, p models.Partition) string {
	return fmt.Sprintf("ALTER TABLE %s DELETE WHERE day_pk = %s AND hour = %s",
		w.target(table), quoteString(p.DayPK), quoteString(p.Hour))
}

// WriteTable inserts t with day_pk and hour columns added to every row.
func (w *Writer) WriteTable(ctx context.Context, p models.Partition, t *models.Table) error {
	if w.replace {
		if err := w.exec(ctx, w.DeleteQuery(t.Name, p), nil); err != nil {
			return fmt.Errorf("clear %s for %s: %w", t.Name, p, err)
		}
	}
	if t.Len() == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, row := range t.Rows {
		if err := enc.Encode(models.WithPartition(p, row)); err != nil {
			return fmt.Errorf("failed to marshal %s row: %w", t.Name, err)
		}
	}
	if err := w.exec(ctx, w.InsertQuery(t.Name), &body); err != nil {
		return fmt.Errorf("insert %s: %w", t.Name, err)
	}
	return nil
}

func (w *Writer) exec(ctx context.Context, query string, body io.Reader) error {
	endpoint := w.base + "/?query=" + url.QueryEscape(query)
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("clickhouse request failed with status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close releases resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

func quoteIdent(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "`", "")
	return "`" + v + "`"
}

func quoteString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
}
