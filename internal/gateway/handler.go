package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Handler is the public edge in front of the storefront API. Store routes
// pass straight through; /admin/* requires the shared back-office token.
type Handler struct {
	apiProxy   *ServiceProxy
	adminToken string
	logger     *slog.Logger
}

func NewHandler(apiProxy *ServiceProxy, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{
		apiProxy:   apiProxy,
		adminToken: adminToken,
		logger:     logger,
	}
}

func (h *Handler) HandleStore(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r)
}

func (h *Handler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		h.logger.Warn("rejected admin request", "path", r.URL.Path)
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	h.proxyRequest(w, r)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request) {
	resp, err := h.apiProxy.ForwardRequest(r.Context(), r, r.URL.Path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", r.URL.Path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", r.URL.Path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
