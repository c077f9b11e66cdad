package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPProviderEmbed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("Authorization = %q, want bearer key", r.Header.Get("Authorization"))
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q, want test-model", req.Model)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.URL, "key-1", "test-model", 3)
	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("len(vec) = %d, want 3", len(vec))
	}
}

func TestHTTPProviderNonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.URL, "key-1", "test-model", 3)
	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Fatalf("Embed() succeeded, want error on 503")
	}
}

func TestHTTPProviderDimensionCheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}},
		})
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.URL, "key-1", "test-model", 3)
	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Fatalf("Embed() succeeded, want error on dimension mismatch")
	}
}

func TestMockProviderDeterministic(t *testing.T) {
	p := NewMockProvider(8)
	a, err := p.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := p.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatalf("Embed() second error = %v", err)
	}
	if len(a) != 8 {
		t.Fatalf("len(a) = %d, want 8", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at index %d: %v != %v", i, a[i], b[i])
		}
	}
}
