package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caisse/internal/core"
	"caisse/internal/reconcile"
	"caisse/internal/sources"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL + "/", Token: "secret"}, nil)
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://api.local/"}, nil)
	assert.Equal(t, "http://api.local", client.baseURL)
	assert.Equal(t, defaultRevenuePath, client.revenuePath)
	assert.Equal(t, defaultCashEntriesPath, client.cashEntriesPath)
	assert.NotZero(t, client.httpClient.Timeout)
}

func TestListRevenue(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/chiffre-affaire", r.URL.Path)
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("from"))
		assert.Equal(t, "2024-01-31", r.URL.Query().Get("to"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"date":"2024-01-15T00:00:00.000Z","ttc":500,"ht":"416,67","tva":null,"ca-ht":{"20":300,"10":"116.67"}},
			{"date":"2024-02-01","ttc":10}
		]`)
	})

	records, err := client.ListRevenue(context.Background(), reconcile.Month(2024, 1))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].TTC.Equal(decimal.NewFromInt(500)))
	assert.True(t, records[0].HT.Equal(decimal.RequireFromString("416.67")))
	assert.True(t, records[0].TVA.IsZero())
	assert.Equal(t, []string{"20", "10"}, records[0].HTByRate.Rates())
}

func TestListCashEntriesEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/compta", r.URL.Path)
		io.WriteString(w, `{"success":true,"data":[{"_id":"a1","date":"2024-01-15","especes":"12,5","depenses":null}]}`)
	})

	entries, err := client.ListCashEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a1", entries[0].ID)
	assert.True(t, entries[0].Especes.Equal(decimal.RequireFromString("12.5")))
}

func TestCreateCashEntry(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2024-01-15", body["date"])
		assert.NotContains(t, body, "id")
		assert.NotContains(t, body, "_id")
		assert.Equal(t, []any{}, body["prestaB2B"])
		assert.Equal(t, 130.0, body["especes"])

		io.WriteString(w, `{"success":true,"data":{"_id":"new-id","date":"2024-01-15","especes":130}}`)
	})

	stored, err := client.CreateCashEntry(context.Background(), core.CashEntry{
		Date:    "2024/01/15",
		Especes: decimal.NewFromInt(130),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", stored.ID)
}

func TestUpdateCashEntrySendsID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "e1", body["id"])
		assert.Equal(t, "2024-01-16", body["date"])
		io.WriteString(w, `{"success":true}`)
	})

	stored, err := client.UpdateCashEntry(context.Background(), core.CashEntry{ID: "e1", Date: "16/01/2024"})
	require.NoError(t, err)
	assert.Equal(t, "e1", stored.ID)
}

func TestUpdateCashEntryRequiresID(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := client.UpdateCashEntry(context.Background(), core.CashEntry{Date: "2024-01-16"})
	assert.ErrorIs(t, err, core.ErrMissingIdentifier)
}

func TestWriteFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{"success false", http.StatusOK, `{"success":false,"error":"date déjà saisie"}`, "date déjà saisie"},
		{"missing success", http.StatusOK, `{"data":{}}`, "request was not successful"},
		{"malformed json", http.StatusOK, `<html>`, "malformed JSON response"},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, "boom"},
		{"plain text error", http.StatusBadGateway, `upstream down`, "upstream down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := client.CreateCashEntry(context.Background(), core.CashEntry{Date: "2024-01-15"})
			var pe *sources.PersistenceError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, sources.OpCreate, pe.Op)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Contains(t, pe.Error(), tt.msg)
		})
	}
}

func TestDeleteCashEntry(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "e 1", r.URL.Query().Get("id"))
		io.WriteString(w, `{"success":true}`)
	})

	require.NoError(t, client.DeleteCashEntry(context.Background(), " e 1 "))
}

func TestDeleteCashEntryEmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, client.DeleteCashEntry(context.Background(), "e1"))
}

func TestDeleteCashEntryFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false}`)
	})
	var pe *sources.PersistenceError
	require.ErrorAs(t, client.DeleteCashEntry(context.Background(), "e1"), &pe)
	assert.Equal(t, sources.OpDelete, pe.Op)
}

func TestDeleteCashEntryMissingIDNeverCallsServer(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	for _, id := range []string{"", "   "} {
		assert.ErrorIs(t, client.DeleteCashEntry(context.Background(), id), core.ErrMissingIdentifier)
	}
	assert.False(t, called)
}

func TestNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient(Config{BaseURL: server.URL}, nil)
	server.Close()

	_, err := client.ListCashEntries(context.Background())
	assert.ErrorIs(t, err, sources.ErrNetwork)
	assert.True(t, sources.IsTransient(err))
}
