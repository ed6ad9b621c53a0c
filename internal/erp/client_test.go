package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

func TestClientSendBatch(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"accepted": true},
				{"accepted": false, "reason": "duplicate"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(StaticConnection{Conn: models.ERPConnection{
		BaseURL: srv.URL,
		APIKey:  "secret-key",
	}}, zerolog.Nop())

	resp, err := client.SendBatch(context.Background(), "customers", []Record{
		{RowIndex: 0, Fields: map[string]interface{}{"customer_code": "A1"}},
		{RowIndex: 1, Fields: map[string]interface{}{"customer_code": "A2"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "/api/v1/customers/batch", gotPath)
	records, ok := gotBody["records"].([]interface{})
	require.True(t, ok)
	assert.Len(t, records, 2)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Accepted)
	assert.Equal(t, "duplicate", resp.Results[1].Reason)
}

func TestClientEndpointOverride(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(StaticConnection{Conn: models.ERPConnection{
		BaseURL:   srv.URL + "/",
		APIKey:    "k",
		Endpoints: models.EndpointMap{"customers": "/custom/customers"},
	}}, zerolog.Nop())

	resp, err := client.SendBatch(context.Background(), "customers", nil)
	require.NoError(t, err)
	assert.Equal(t, "/custom/customers", gotPath)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, err = client.SendBatch(context.Background(), "payroll", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown ERP endpoint "payroll"`)
}

func TestClientNonJSONBodyKeptVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>upstream down</html>"))
	}))
	defer srv.Close()

	client := NewClient(StaticConnection{Conn: models.ERPConnection{BaseURL: srv.URL, APIKey: "k"}}, zerolog.Nop())
	resp, err := client.SendBatch(context.Background(), "products", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, resp.Body["raw"], "upstream down")
	assert.Nil(t, resp.Results)
}

func TestClientTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(StaticConnection{Conn: models.ERPConnection{BaseURL: srv.URL, APIKey: "k"}}, zerolog.Nop())
	status, err := client.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}

func TestClientNoConnection(t *testing.T) {
	client := NewClient(StaticConnection{}, zerolog.Nop())
	_, err := client.SendBatch(context.Background(), "customers", nil)
	assert.ErrorIs(t, err, ErrNoConnection)
}

func TestClientEndpointsMergesCatalogue(t *testing.T) {
	client := NewClient(StaticConnection{Conn: models.ERPConnection{
		BaseURL:   "http://erp.local",
		APIKey:    "k",
		Endpoints: models.EndpointMap{"suppliers": "/api/v1/suppliers/batch"},
	}}, zerolog.Nop())

	names := client.Endpoints()
	assert.Equal(t, []string{"customers", "inventory", "products", "sales", "suppliers"}, names)
}
