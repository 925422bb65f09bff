package httpx

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ok"}`))
		var p payload
		if err := ReadJSON(req, &p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Name != "ok" {
			t.Fatalf("got %q", p.Name)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ok","extra":1}`))
		var p payload
		if err := ReadJSON(req, &p); err == nil {
			t.Fatal("expected error for unknown field")
		}
	})

	t.Run("trailing data rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ok"}{"name":"again"}`))
		var p payload
		if err := ReadJSON(req, &p); err == nil {
			t.Fatal("expected error for trailing data")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name": `))
		var p payload
		if err := ReadJSON(req, &p); err == nil {
			t.Fatal("expected error for malformed JSON")
		}
	})
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 404, "SESSION_NOT_FOUND", "no such session", nil)
	if rec.Code != 404 {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("content-type"); ct != "application/json" {
		t.Fatalf("content-type = %q", ct)
	}
	var body struct {
		RequestID string `json:"request_id"`
		Error     struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(body.RequestID, "req_") {
		t.Fatalf("request_id = %q", body.RequestID)
	}
	if body.Error.Code != "SESSION_NOT_FOUND" || body.Error.Message != "no such session" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, 201, map[string]any{"ok": true})
	if rec.Code != 201 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"ok":true`)) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
