package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestHTTPStrategyPlainJSONReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.UserText != "hello" {
			t.Errorf("UserText = %q, want hello", req.UserText)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hi friend"})
	}))
	defer ts.Close()

	reply, err := NewHTTPStrategy(ts.URL).StreamReply(context.Background(), Request{UserText: "hello"}, nil)
	if err != nil {
		t.Fatalf("StreamReply() error = %v", err)
	}
	if reply.Text != "hi friend" {
		t.Fatalf("Text = %q, want %q", reply.Text, "hi friend")
	}
}

func TestHTTPStrategyStreamsSSE(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"delta\": \"hi \"}\n\ndata: {\"delta\": \"friend\"}\n\n"))
	}))
	defer ts.Close()

	var deltas []string
	reply, err := NewHTTPStrategy(ts.URL).StreamReply(context.Background(), Request{UserText: "hello"},
		func(delta string) error {
			deltas = append(deltas, delta)
			return nil
		})
	if err != nil {
		t.Fatalf("StreamReply() error = %v", err)
	}
	if got := strings.Join(deltas, ""); got != reply.Text {
		t.Fatalf("joined deltas %q != reply %q", got, reply.Text)
	}
	if len(deltas) != 2 {
		t.Fatalf("len(deltas) = %d, want 2", len(deltas))
	}
}

func TestHTTPStrategyRetriesTransientStatusOnce(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "recovered"})
	}))
	defer ts.Close()

	reply, err := NewHTTPStrategy(ts.URL).StreamReply(context.Background(), Request{UserText: "hello"}, nil)
	if err != nil {
		t.Fatalf("StreamReply() error = %v", err)
	}
	if reply.Text != "recovered" {
		t.Fatalf("Text = %q, want %q", reply.Text, "recovered")
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestHTTPStrategyDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer ts.Close()

	if _, err := NewHTTPStrategy(ts.URL).StreamReply(context.Background(), Request{UserText: "hello"}, nil); err == nil {
		t.Fatalf("StreamReply() succeeded, want error on 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 400)", calls.Load())
	}
}
