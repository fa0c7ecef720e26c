package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newRequestWithChiParam(key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	req := httptest.NewRequest("GET", "/", nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// ── ParsePagination ──────────────────────────────────────────────────

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 50, 0},
		{"valid_custom", "limit=25&offset=10", 25, 10},
		{"limit_over_500_ignored", "limit=2000", 50, 0},
		{"limit_zero_ignored", "limit=0", 50, 0},
		{"negative_offset_ignored", "offset=-5", 50, 0},
		{"non_numeric_ignored", "limit=abc&offset=xyz", 50, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)
			p := ParsePagination(req)
			if p.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", p.Limit, tt.wantLimit)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", p.Offset, tt.wantOffset)
			}
		})
	}
}

// ── QueryFloat ───────────────────────────────────────────────────────

func TestQueryFloat(t *testing.T) {
	tests := []struct {
		query  string
		want   float64
		wantOK bool
	}{
		{"t=1.25", 1.25, true},
		{"t=0", 0, true},
		{"t=-3", -3, true},
		{"", 0, false},
		{"t=abc", 0, false},
		{"t=NaN", 0, false},
		{"t=Inf", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)
			got, ok := QueryFloat(req, "t")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("QueryFloat = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ── QueryStringList ──────────────────────────────────────────────────

func TestQueryStringList(t *testing.T) {
	req := httptest.NewRequest("GET", "/?ids=a,%20b,,c", nil)
	got := QueryStringList(req, "ids")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("got %v, want [a b c]", got)
	}
	if QueryStringList(httptest.NewRequest("GET", "/", nil), "ids") != nil {
		t.Error("missing param should return nil")
	}
}

// ── PathInt ──────────────────────────────────────────────────────────

func TestPathInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		v, err := PathInt(newRequestWithChiParam("index", "42"), "index")
		if err != nil || v != 42 {
			t.Errorf("got (%d, %v), want (42, nil)", v, err)
		}
	})
	t.Run("missing", func(t *testing.T) {
		rctx := chi.NewRouteContext()
		req := httptest.NewRequest("GET", "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		if _, err := PathInt(req, "index"); err == nil {
			t.Error("expected error for missing param")
		}
	})
	t.Run("non_numeric", func(t *testing.T) {
		if _, err := PathInt(newRequestWithChiParam("index", "abc"), "index"); err == nil {
			t.Error("expected error for non-numeric param")
		}
	})
}

// ── WriteJSON / WriteError ───────────────────────────────────────────

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"msg": "ok"})

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body["msg"] != "ok" {
		t.Errorf("body = %v, want msg=ok", body)
	}
}

func TestWriteErrorDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorDetail(rec, http.StatusBadGateway, ErrDownloadFailed, "download failed", "HTTP 403")

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body.Error != "download failed" || body.Code != ErrDownloadFailed || body.Detail != "HTTP 403" {
		t.Errorf("body = %+v", body)
	}
}

// ── DecodeJSON ───────────────────────────────────────────────────────

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		URL string `json:"url"`
	}
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"url":"x"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.URL != "x" {
		t.Errorf("DecodeJSON = %v, dst = %+v", err, dst)
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"uri":"x"}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Error("unknown fields should be rejected")
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{bad`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Error("malformed JSON should be rejected")
	}
}
