// Package tablehttp posts entity tables to a remote HTTP endpoint.
package tablehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Velocidex/ordereddict"

	"entitygraph/pkg/models"
)

// Writer sends one request per table and partition.
type Writer struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// Config configures the HTTP writer.
type Config struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

type payload struct {
	Partition models.Partition    `json:"partition"`
	Table     string              `json:"table"`
	Columns   []models.Column     `json:"columns"`
	Rows      []*ordereddict.Dict `json:"rows"`
}

// NewWriter creates an HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http table URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Writer{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// WriteTable posts t. The receiver is expected to replace the table for p.
func (w *Writer) WriteTable(ctx context.Context, p models.Partition, t *models.Table) error {
	rows := t.Rows
	if rows == nil {
		rows = []*ordereddict.Dict{}
	}
	body, err := json.Marshal(payload{Partition: p, Table: t.Name, Columns: t.Columns, Rows: rows})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", t.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http request failed with status %s", resp.Status)
	}
	return nil
}

// Close releases HTTP resources.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
