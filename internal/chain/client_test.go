package chain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL: server.URL,
		APIKeys: []string{"key-a", "key-b"},
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	// httptest's plain server does not speak h2; the stock transport
	// falls back to HTTP/1.1 automatically.
	return client
}

func TestTransferEvents_ParsesAndFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "tokentx" {
			t.Errorf("expected action=tokentx, got %q", got)
		}
		fmt.Fprint(w, `{
			"status": "1",
			"message": "OK",
			"result": [
				{"from": "0xpayer", "to": "0xsystem", "contractAddress": "0xusdt",
				 "value": "25000000000000000000", "timeStamp": "1767225600",
				 "hash": "0xaaa", "blockNumber": "100"},
				{"from": "0xpayer", "to": "0xsystem", "contractAddress": "0xusdt",
				 "value": "1", "timeStamp": "100",
				 "hash": "0xold", "blockNumber": "1"},
				{"from": "0xpayer", "to": "0xsystem", "contractAddress": "0xusdt",
				 "value": "not-a-number", "timeStamp": "1767225600",
				 "hash": "0xbad", "blockNumber": "100"}
			]
		}`)
	})

	since := time.Unix(1767225000, 0).UTC()
	events, err := client.TransferEvents(context.Background(), "0xusdt", "0xpayer", since)
	if err != nil {
		t.Fatalf("TransferEvents failed: %v", err)
	}
	// The pre-since event and the malformed entry are dropped.
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].TxHash != "0xaaa" {
		t.Errorf("expected 0xaaa, got %s", events[0].TxHash)
	}
	if events[0].Value.String() != "25000000000000000000" {
		t.Errorf("unexpected value %s", events[0].Value)
	}
}

func TestTransferEvents_EmptyResultIsNotAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "0", "message": "No transactions found", "result": []}`)
	})

	events, err := client.TransferEvents(context.Background(), "0xusdt", "0xpayer", time.Time{})
	if err != nil {
		t.Fatalf("expected no error for empty result, got %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}

func TestTransferEvents_TransientFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http 500", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status": "0", "message": "Max rate limit reached", "result": []}`)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>not json</html>`)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			_, err := client.TransferEvents(context.Background(), "0xusdt", "0xpayer", time.Time{})
			if !errors.Is(err, ErrUpstreamUnavailable) {
				t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
			}
		})
	}
}

func TestRotateKey_RoundRobin(t *testing.T) {
	var seen []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("apikey"))
		fmt.Fprint(w, `{"status": "0", "message": "No transactions found", "result": []}`)
	})

	for i := 0; i < 3; i++ {
		if _, err := client.TransferEvents(context.Background(), "0xusdt", "0xpayer", time.Time{}); err != nil {
			t.Fatalf("TransferEvents failed: %v", err)
		}
	}
	want := []string{"key-a", "key-b", "key-a"}
	for i, key := range want {
		if seen[i] != key {
			t.Errorf("request %d used key %q, want %q", i, seen[i], key)
		}
	}
}
