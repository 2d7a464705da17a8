package cse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDecodesPayload(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			// session bootstrap
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.URL.Path != "/api/marketSummery" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reqMarketSummery":{"aspi":{"value":12500.5}}}`))
	})

	c := NewClient(srv.URL, time.Second, nil)
	payload, err := c.Fetch(context.Background(), EndpointMarketSummary)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	m, ok := payload.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map payload, got %T", payload)
	}
	if _, ok := m["reqMarketSummery"]; !ok {
		t.Fatalf("unexpected payload: %v", m)
	}
}

func TestFetchBareListPayload(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			return
		}
		w.Write([]byte(`[{"symbol":"LOLC.N0000"}]`))
	})

	c := NewClient(srv.URL, time.Second, nil)
	payload, err := c.Fetch(context.Background(), EndpointSharePrices)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := payload.([]interface{}); !ok {
		t.Fatalf("expected slice payload, got %T", payload)
	}
}

func TestFetchHTTPErrorIncludesBody(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			return
		}
		http.Error(w, "blocked", http.StatusForbidden)
	})

	c := NewClient(srv.URL, time.Second, nil)
	_, err := c.Fetch(context.Background(), EndpointASPI)
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"403", "blocked", EndpointASPI} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err.Error(), want)
		}
	}
}

func TestFetchInvalidJSON(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			return
		}
		w.Write([]byte("<html>not json</html>"))
	})

	c := NewClient(srv.URL, time.Second, nil)
	if _, err := c.Fetch(context.Background(), EndpointSNP); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCompanyInfoUppercasesSymbol(t *testing.T) {
	var gotSymbol string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotSymbol = r.PostForm.Get("symbol")
		w.Write([]byte(`{"reqSymbolInfo":{"symbol":"LOLC.N0000"}}`))
	})

	c := NewClient(srv.URL, time.Second, nil)
	if _, err := c.CompanyInfo(context.Background(), "lolc.n0000"); err != nil {
		t.Fatalf("company info: %v", err)
	}
	if gotSymbol != "LOLC.N0000" {
		t.Fatalf("symbol not uppercased: %q", gotSymbol)
	}
}

func TestCompanyInfoEmptySymbol(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := NewClient(srv.URL, time.Second, nil)
	if _, err := c.CompanyInfo(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty symbol")
	}
}
