package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendAndParseDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("since") != "2024-01-02" {
			t.Errorf("since = %q", r.URL.Query().Get("since"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"codes":["AAPL","BRK_B"]}`))
	}))
	defer srv.Close()

	var out struct {
		Codes []string `json:"codes"`
	}
	c := NewClient(WithTimeout(time.Second))
	err := c.SendAndParse(context.Background(), &RequestOptions{
		URL:         srv.URL,
		QueryParams: map[string][]string{"since": {"2024-01-02"}},
	}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Codes) != 2 || out.Codes[1] != "BRK_B" {
		t.Fatalf("unexpected codes %v", out.Codes)
	}
}

func TestSendAndParseStatusError(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		temporary bool
	}{
		{"not found", http.StatusNotFound, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.code)
			}))
			defer srv.Close()

			err := NewClient().SendAndParse(context.Background(), &RequestOptions{URL: srv.URL}, nil)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StatusError, got %v", err)
			}
			if se.Code != tt.code {
				t.Errorf("Code = %d, want %d", se.Code, tt.code)
			}
			if se.Temporary() != tt.temporary {
				t.Errorf("Temporary() = %v, want %v", se.Temporary(), tt.temporary)
			}
		})
	}
}
