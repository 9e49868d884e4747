package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_HandleStore(t *testing.T) {
	t.Run("proxies GET with identity header", func(t *testing.T) {
		apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/products/abc" {
				t.Errorf("expected /products/abc, got %s", r.URL.Path)
			}
			if r.Header.Get("X-User-ID") != "user-7" {
				t.Errorf("expected X-User-ID to be forwarded, got %q", r.Header.Get("X-User-ID"))
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"abc"}`))
		}))
		defer apiServer.Close()

		handler := NewHandler(NewServiceProxy(apiServer.URL, apiServer.Client()), "secret", discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/products/abc", nil)
		req.Header.Set("X-User-ID", "user-7")
		rec := httptest.NewRecorder()

		handler.HandleStore(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if rec.Body.String() != `{"id":"abc"}` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("proxies POST body", func(t *testing.T) {
		apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"promo_code":"TEN"}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer apiServer.Close()

		handler := NewHandler(NewServiceProxy(apiServer.URL, apiServer.Client()), "secret", discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"promo_code":"TEN"}`))
		rec := httptest.NewRecorder()

		handler.HandleStore(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when api unavailable", func(t *testing.T) {
		handler := NewHandler(NewServiceProxy("http://localhost:1", &http.Client{}), "secret", discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/products/abc", nil)
		rec := httptest.NewRecorder()

		handler.HandleStore(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestHandler_HandleAdmin(t *testing.T) {
	t.Run("rejects missing token", func(t *testing.T) {
		handler := NewHandler(NewServiceProxy("http://unused", http.DefaultClient), "secret", discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
		rec := httptest.NewRecorder()

		handler.HandleAdmin(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", rec.Code)
		}
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		handler := NewHandler(NewServiceProxy("http://unused", http.DefaultClient), "secret", discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
		req.Header.Set("X-Admin-Token", "guess")
		rec := httptest.NewRecorder()

		handler.HandleAdmin(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", rec.Code)
		}
	})

	t.Run("forwards with valid token", func(t *testing.T) {
		apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/admin/orders" {
				t.Errorf("expected /admin/orders, got %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(`[]`))
		}))
		defer apiServer.Close()

		handler := NewHandler(NewServiceProxy(apiServer.URL, apiServer.Client()), "secret", discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
		req.Header.Set("X-Admin-Token", "secret")
		rec := httptest.NewRecorder()

		handler.HandleAdmin(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}
