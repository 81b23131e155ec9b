package api

import (
	"context"
	"io"
	"net/http"

	"github.com/Abhisheksantra28/Streamfinity/internal/auth"
	"github.com/Abhisheksantra28/Streamfinity/internal/media"
	"github.com/Abhisheksantra28/Streamfinity/internal/models"
	"github.com/Abhisheksantra28/Streamfinity/internal/observability/metrics"
	"github.com/Abhisheksantra28/Streamfinity/internal/storage"
)

// Pinger reports the health of an auxiliary component.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Store        storage.Repository
	Tokens       *auth.TokenService
	Media        media.Store
	CookiePolicy AuthCookiePolicy
	RateLimiter  Pinger
	Metrics      *metrics.Recorder
}

func NewHandler(store storage.Repository, tokens *auth.TokenService, mediaStore media.Store) *Handler {
	return &Handler{
		Store:        store,
		Tokens:       tokens,
		Media:        mediaStore,
		CookiePolicy: DefaultAuthCookiePolicy(),
	}
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) componentHealth(ctx context.Context) ([]componentStatus, string, int) {
	overallStatus := "ok"
	statusCode := http.StatusOK
	recordComponent := func(component string, err error) componentStatus {
		status := "ok"
		message := ""
		if err != nil {
			status = "degraded"
			message = err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		return componentStatus{Component: component, Status: status, Error: message}
	}

	components := make([]componentStatus, 0, 2)
	if h.Store != nil {
		components = append(components, recordComponent("datastore", h.Store.Ping(ctx)))
	}
	if h.RateLimiter != nil {
		components = append(components, recordComponent("rate_limiter", h.RateLimiter.Ping(ctx)))
	}
	return components, overallStatus, statusCode
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	components, status, statusCode := h.componentHealth(r.Context())
	writeJSON(w, statusCode, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}

// publicUser strips credential material before a user record leaves the API.
func publicUser(user models.User) models.User {
	user.PasswordHash = ""
	user.RefreshToken = ""
	return user
}

func (h *Handler) observeAuthEvent(event string) {
	if h.Metrics != nil {
		h.Metrics.ObserveAuthEvent(event)
	}
}

func (h *Handler) observeVideoEvent(event string) {
	if h.Metrics != nil {
		h.Metrics.ObserveVideoEvent(event)
	}
}

// uploadAsset forwards to the media store while tracking attempt, failure, and
// in-flight upload counters.
func (h *Handler) uploadAsset(ctx context.Context, key, contentType string, body io.Reader) (media.Asset, error) {
	if h.Metrics != nil {
		h.Metrics.ObserveMediaAttempt("upload")
		h.Metrics.UploadStarted()
		defer h.Metrics.UploadFinished()
	}
	asset, err := h.Media.Upload(ctx, key, contentType, body)
	if err != nil && h.Metrics != nil {
		h.Metrics.ObserveMediaFailure("upload")
	}
	return asset, err
}

func (h *Handler) deleteAsset(ctx context.Context, assetURL string) error {
	if h.Metrics != nil {
		h.Metrics.ObserveMediaAttempt("delete")
	}
	err := h.Media.Delete(ctx, assetURL)
	if err != nil && h.Metrics != nil {
		h.Metrics.ObserveMediaFailure("delete")
	}
	return err
}
