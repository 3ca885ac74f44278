package tablehttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/pkg/models"
)

func TestWriteTablePosts(t *testing.T) {
	var got map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer x"}})
	require.NoError(t, err)
	defer w.Close()

	table := models.ToTable("process_label", models.DetectionLabelColumns,
		[]models.DetectionLabel{{PidHash: "P1", Source: "sigma", RuleID: "r1"}})
	require.NoError(t, w.WriteTable(context.Background(), models.DayPartition("20240101"), table))

	assert.Equal(t, "Bearer x", auth)
	assert.Equal(t, "process_label", got["table"])
	assert.Equal(t, map[string]interface{}{"day_pk": "20240101"}, got["partition"])
	rows := got["rows"].([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "P1", rows[0].(map[string]interface{})["pid_hash"])
}

func TestWriteTableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)
	err = w.WriteTable(context.Background(), models.DayPartition("20240101"), models.NewTable("empty", nil))
	assert.Error(t, err)

	_, err = NewWriter(Config{})
	assert.Error(t, err)
}
