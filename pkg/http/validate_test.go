package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type sampleRequest struct {
	InstrumentID int64   `query:"instrument_id" validate:"required,gt=0"`
	Table        string  `json:"table" default:"daily" validate:"oneof=daily minute"`
	IDs          []int64 `json:"ids" validate:"omitempty,dive,gt=0"`
}

// GET binds the query string and then the body.
func bind(t *testing.T, method, target, body string) (*sampleRequest, []ValidationError) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	c := echo.New().NewContext(req, httptest.NewRecorder())

	out := &sampleRequest{}
	verr := ReadAndValidateRequest(c, out)
	if verr == nil {
		return out, nil
	}
	errs, ok := verr.([]ValidationError)
	if !ok {
		t.Fatalf("unexpected validation result %T", verr)
	}
	return out, errs
}

func TestReadAndValidateRequest(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		req, errs := bind(t, http.MethodGet, "/?instrument_id=7", "")
		if errs != nil {
			t.Fatalf("unexpected errors: %+v", errs)
		}
		if req.InstrumentID != 7 || req.Table != "daily" {
			t.Fatalf("got %+v", req)
		}
	})

	tests := []struct {
		name   string
		target string
		body   string
		code   string
		field  string
	}{
		{"missing id", "/", "", "ERR_REQUIRED", "instrument_id"},
		{"bad table", "/?instrument_id=1", `{"table":"weekly"}`, "ERR_ONEOF", "table"},
		{"bad element", "/?instrument_id=1", `{"ids":[3,0]}`, "ERR_GT", "ids[1]"},
		{"bad json", "/?instrument_id=1", `{"ids":`, "ERR_BIND", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := bind(t, http.MethodGet, tt.target, tt.body)
			if len(errs) != 1 {
				t.Fatalf("got %d errors (%+v), want 1", len(errs), errs)
			}
			if errs[0].Code != tt.code || errs[0].Field != tt.field {
				t.Fatalf("got %s/%s, want %s/%s", errs[0].Code, errs[0].Field, tt.code, tt.field)
			}
		})
	}
}
