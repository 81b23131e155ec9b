package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Abhisheksantra28/Streamfinity/internal/auth"
	"github.com/Abhisheksantra28/Streamfinity/internal/media"
	"github.com/Abhisheksantra28/Streamfinity/internal/models"
	"github.com/Abhisheksantra28/Streamfinity/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *media.MemoryStore) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewStorage(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
	})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	assets := media.NewMemoryStore("")
	return NewHandler(store, tokens, assets), assets
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("WriteField %s: %v", name, err)
		}
	}
	for name, filename := range files {
		part, err := writer.CreateFormFile(name, filename)
		if err != nil {
			t.Fatalf("CreateFormFile %s: %v", name, err)
		}
		if _, err := io.WriteString(part, "fake-"+name+"-bytes"); err != nil {
			t.Fatalf("write file part %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func registerTestUser(t *testing.T, h *Handler, username string) models.User {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"fullName": "Test " + username,
		"password": "tr0ub4dor-battery-staple",
	}, map[string]string{
		"avatar": username + ".png",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Register(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data models.User `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.Data
}

func loginTestUser(t *testing.T, h *Handler, username, password string) (authResponse, *httptest.ResponseRecorder) {
	t.Helper()
	payload := `{"username":"` + username + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data authResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Data, rec
}

func TestRegisterReturnsEnvelopeWithoutCredentials(t *testing.T) {
	h, assets := newTestHandler(t)
	user := registerTestUser(t, h, "alice")

	if user.PasswordHash != "" || user.RefreshToken != "" {
		t.Fatalf("expected credentials stripped from response: %+v", user)
	}
	if user.AvatarURL == "" {
		t.Fatal("expected avatar URL on registered user")
	}
	if assets.Len() != 1 {
		t.Fatalf("expected one stored asset, got %d", assets.Len())
	}
}

func TestRegisterRequiresAvatar(t *testing.T) {
	h, _ := newTestHandler(t)
	body, contentType := multipartBody(t, map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"fullName": "Alice",
		"password": "tr0ub4dor-battery-staple",
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Register(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if resp.Success || resp.StatusCode != http.StatusBadRequest || resp.Errors == nil {
		t.Fatalf("unexpected error envelope: %+v", resp)
	}
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	h, _ := newTestHandler(t)
	registerTestUser(t, h, "alice")

	body, contentType := multipartBody(t, map[string]string{
		"username": "alice",
		"email":    "alice-two@example.com",
		"fullName": "Alice Two",
		"password": "tr0ub4dor-battery-staple",
	}, map[string]string{"avatar": "a.png"})
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Register(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginSetsCookiesAndStoresRefreshToken(t *testing.T) {
	h, _ := newTestHandler(t)
	created := registerTestUser(t, h, "alice")

	resp, rec := loginTestUser(t, h, "alice", "tr0ub4dor-battery-staple")
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens in login response")
	}
	if resp.User.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, resp.User.ID)
	}

	cookies := rec.Result().Cookies()
	names := map[string]bool{}
	for _, cookie := range cookies {
		names[cookie.Name] = true
		if !cookie.HttpOnly {
			t.Fatalf("expected HttpOnly cookie %s", cookie.Name)
		}
	}
	if !names["accessToken"] || !names["refreshToken"] {
		t.Fatalf("expected auth cookies, got %v", names)
	}

	stored, _ := h.Store.GetUser(created.ID)
	if stored.RefreshToken != resp.RefreshToken {
		t.Fatal("expected refresh token persisted on user record")
	}
}

func TestLoginUnknownUserIs404(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader(`{"username":"ghost","password":"whatever-long-pass"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}
}

func TestLoginBadPasswordIs401(t *testing.T) {
	h, _ := newTestHandler(t)
	registerTestUser(t, h, "alice")

	req := httptest.NewRequest(http.MethodPost, "/api/users/login", strings.NewReader(`{"username":"alice","password":"totally-wrong-pass"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	h, _ := newTestHandler(t)
	registerTestUser(t, h, "alice")
	first, _ := loginTestUser(t, h, "alice", "tr0ub4dor-battery-staple")

	req := httptest.NewRequest(http.MethodPost, "/api/users/refresh-token", strings.NewReader(`{"refreshToken":"`+first.RefreshToken+`"}`))
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh returned %d: %s", rec.Code, rec.Body.String())
	}
	var refreshed struct {
		Data authResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if refreshed.Data.RefreshToken == first.RefreshToken {
		t.Fatal("expected a rotated refresh token")
	}

	// Replaying the superseded token must be rejected.
	replay := httptest.NewRequest(http.MethodPost, "/api/users/refresh-token", strings.NewReader(`{"refreshToken":"`+first.RefreshToken+`"}`))
	replayRec := httptest.NewRecorder()
	h.RefreshToken(replayRec, replay)
	if replayRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for replayed token, got %d", replayRec.Code)
	}
}

func TestRefreshReadsCookie(t *testing.T) {
	h, _ := newTestHandler(t)
	registerTestUser(t, h, "alice")
	session, _ := loginTestUser(t, h, "alice", "tr0ub4dor-battery-staple")

	req := httptest.NewRequest(http.MethodPost, "/api/users/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: session.RefreshToken})
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh via cookie returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/api/users/refresh-token", strings.NewReader(`{"refreshToken":"not-a-jwt"}`))
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestLogoutClearsRefreshTokenAndCookies(t *testing.T) {
	h, _ := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	loginTestUser(t, h, "alice", "tr0ub4dor-battery-staple")

	user, _ := h.Store.GetUser(created.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/users/logout", nil)
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.Logout(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout returned %d: %s", rec.Code, rec.Body.String())
	}

	stored, _ := h.Store.GetUser(created.ID)
	if stored.RefreshToken != "" {
		t.Fatal("expected stored refresh token cleared")
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge != -1 {
			t.Fatalf("expected expired cookie %s, got MaxAge %d", cookie.Name, cookie.MaxAge)
		}
	}
}

func TestChangePasswordVerifiesOldPassword(t *testing.T) {
	h, _ := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	user, _ := h.Store.GetUser(created.ID)

	req := httptest.NewRequest(http.MethodPost, "/api/users/change-password", strings.NewReader(`{"oldPassword":"wrong-old-password","newPassword":"another-Strong-pass-9"}`))
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.ChangePassword(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong old password, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/users/change-password", strings.NewReader(`{"oldPassword":"tr0ub4dor-battery-staple","newPassword":"another-Strong-pass-9","confirmPassword":"different"}`))
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec = httptest.NewRecorder()
	h.ChangePassword(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for mismatched confirmation, got %d", rec.Code)
	}
	if _, err := h.Store.AuthenticateUser("alice", "tr0ub4dor-battery-staple"); err != nil {
		t.Fatalf("old password should still authenticate after failed attempts: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/users/change-password", strings.NewReader(`{"oldPassword":"tr0ub4dor-battery-staple","newPassword":"another-Strong-pass-9"}`))
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec = httptest.NewRecorder()
	h.ChangePassword(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing confirmation, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/users/change-password", strings.NewReader(`{"oldPassword":"tr0ub4dor-battery-staple","newPassword":"another-Strong-pass-9","confirmPassword":"another-Strong-pass-9"}`))
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec = httptest.NewRecorder()
	h.ChangePassword(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("change password returned %d: %s", rec.Code, rec.Body.String())
	}

	if _, err := h.Store.AuthenticateUser("alice", "another-Strong-pass-9"); err != nil {
		t.Fatalf("expected new password to authenticate: %v", err)
	}
}

func TestChangePasswordKeepsRefreshTokenValid(t *testing.T) {
	h, _ := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	session, _ := loginTestUser(t, h, "alice", "tr0ub4dor-battery-staple")
	user, _ := h.Store.GetUser(created.ID)

	req := httptest.NewRequest(http.MethodPost, "/api/users/change-password", strings.NewReader(`{"oldPassword":"tr0ub4dor-battery-staple","newPassword":"another-Strong-pass-9","confirmPassword":"another-Strong-pass-9"}`))
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.ChangePassword(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("change password returned %d", rec.Code)
	}

	refresh := httptest.NewRequest(http.MethodPost, "/api/users/refresh-token", strings.NewReader(`{"refreshToken":"`+session.RefreshToken+`"}`))
	refreshRec := httptest.NewRecorder()
	h.RefreshToken(refreshRec, refresh)
	if refreshRec.Code != http.StatusOK {
		t.Fatalf("expected refresh to survive password change, got %d", refreshRec.Code)
	}
}

func TestCurrentUserRequiresAuthentication(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/users/current", nil)
	rec := httptest.NewRecorder()
	h.CurrentUser(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthenticateRequestAcceptsBearerAndCookie(t *testing.T) {
	h, _ := newTestHandler(t)
	registerTestUser(t, h, "alice")
	session, _ := loginTestUser(t, h, "alice", "tr0ub4dor-battery-staple")

	bearer := httptest.NewRequest(http.MethodGet, "/api/users/current", nil)
	bearer.Header.Set("Authorization", "Bearer "+session.AccessToken)
	if _, err := h.AuthenticateRequest(bearer); err != nil {
		t.Fatalf("bearer auth failed: %v", err)
	}

	cookie := httptest.NewRequest(http.MethodGet, "/api/users/current", nil)
	cookie.AddCookie(&http.Cookie{Name: "accessToken", Value: session.AccessToken})
	if _, err := h.AuthenticateRequest(cookie); err != nil {
		t.Fatalf("cookie auth failed: %v", err)
	}

	garbage := httptest.NewRequest(http.MethodGet, "/api/users/current", nil)
	garbage.Header.Set("Authorization", "Bearer nope")
	if _, err := h.AuthenticateRequest(garbage); err == nil {
		t.Fatal("expected error for invalid token")
	}
}

func TestUpdateAccountRequiresAField(t *testing.T) {
	h, _ := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	user, _ := h.Store.GetUser(created.ID)

	req := httptest.NewRequest(http.MethodPatch, "/api/users/update-account", strings.NewReader(`{}`))
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.UpdateAccount(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPatch, "/api/users/update-account", strings.NewReader(`{"fullName":"Alice Renamed"}`))
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec = httptest.NewRecorder()
	h.UpdateAccount(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update account returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data models.User `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode update response: %v", err)
	}
	if resp.Data.FullName != "Alice Renamed" {
		t.Fatalf("expected renamed user, got %q", resp.Data.FullName)
	}
}

func TestUpdateAvatarReplacesAsset(t *testing.T) {
	h, assets := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	user, _ := h.Store.GetUser(created.ID)
	previous := user.AvatarURL

	body, contentType := multipartBody(t, nil, map[string]string{"avatar": "new.png"})
	req := httptest.NewRequest(http.MethodPatch, "/api/users/avatar", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.UpdateAvatar(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update avatar returned %d: %s", rec.Code, rec.Body.String())
	}

	refreshed, _ := h.Store.GetUser(created.ID)
	if refreshed.AvatarURL == previous {
		t.Fatal("expected avatar URL to change")
	}
	if _, ok := assets.Object(previous); ok {
		t.Fatal("expected previous avatar asset deleted")
	}
}
