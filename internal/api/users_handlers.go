package api

import (
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Abhisheksantra28/Streamfinity/internal/media"
	"github.com/Abhisheksantra28/Streamfinity/internal/models"
	"github.com/Abhisheksantra28/Streamfinity/internal/storage"
)

// maxImageUploadBytes bounds the multipart memory used for avatar and cover
// uploads.
const maxImageUploadBytes = 32 << 20

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User         models.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

type updateAccountRequest struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
}

// Register creates an account from a multipart form carrying the profile
// fields plus an avatar (required) and cover image (optional).
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
		writeError(w, BadRequestError("invalid multipart form"))
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(r.FormValue("email"))
	fullName := strings.TrimSpace(r.FormValue("fullName"))
	password := r.FormValue("password")
	if username == "" || email == "" || fullName == "" || password == "" {
		writeError(w, BadRequestError("username, email, fullName and password are required"))
		return
	}
	if _, exists := h.Store.FindUserByIdentifier(username); exists {
		writeError(w, ConflictError("username or email already in use"))
		return
	}
	if _, exists := h.Store.FindUserByIdentifier(email); exists {
		writeError(w, ConflictError("username or email already in use"))
		return
	}

	avatarFile, avatarHeader, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, BadRequestError("avatar file is required"))
		return
	}
	defer avatarFile.Close()

	coverFile, coverHeader, coverErr := r.FormFile("coverImage")
	if coverErr == nil {
		defer coverFile.Close()
	}

	// Avatar and cover go to the media store concurrently; either failure
	// aborts registration before any record is written.
	var avatarAsset, coverAsset media.Asset
	group, groupCtx := errgroup.WithContext(r.Context())
	group.Go(func() error {
		asset, err := h.uploadAsset(groupCtx, assetKey("avatars", username, avatarHeader), detectContentType(avatarHeader), avatarFile)
		if err != nil {
			return fmt.Errorf("upload avatar: %w", err)
		}
		avatarAsset = asset
		return nil
	})
	if coverErr == nil {
		group.Go(func() error {
			asset, err := h.uploadAsset(groupCtx, assetKey("covers", username, coverHeader), detectContentType(coverHeader), coverFile)
			if err != nil {
				return fmt.Errorf("upload cover image: %w", err)
			}
			coverAsset = asset
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		slog.Error("register upload failed", "username", username, "error", err)
		writeError(w, newRequestError(http.StatusBadGateway, "media upload failed"))
		return
	}

	user, err := h.Store.CreateUser(storage.CreateUserParams{
		Username:      username,
		Email:         email,
		FullName:      fullName,
		Password:      password,
		AvatarURL:     avatarAsset.URL,
		CoverImageURL: coverAsset.URL,
	})
	if err != nil {
		h.cleanupAssets(r, avatarAsset.URL, coverAsset.URL)
		writeError(w, err)
		return
	}

	h.observeAuthEvent("register")
	writeData(w, http.StatusCreated, publicUser(user), "user registered successfully")
}

// Login authenticates by username or email and issues a fresh token pair. The
// refresh token is persisted so later refreshes can detect reuse.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, BadRequestError(err.Error()))
		return
	}
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" {
		writeError(w, BadRequestError("username or email is required"))
		return
	}

	user, err := h.Store.AuthenticateUser(identifier, req.Password)
	if err != nil {
		h.observeAuthEvent("login_failed")
		writeError(w, err)
		return
	}

	access, accessExpires, err := h.Tokens.IssueAccessToken(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	refresh, refreshExpires, err := h.Tokens.IssueRefreshToken(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.SetRefreshToken(user.ID, refresh); err != nil {
		writeError(w, err)
		return
	}

	h.observeAuthEvent("login")
	h.setAuthCookies(w, r, access, accessExpires, refresh, refreshExpires)
	writeData(w, http.StatusOK, authResponse{
		User:         publicUser(user),
		AccessToken:  access,
		RefreshToken: refresh,
	}, "user logged in successfully")
}

// Logout clears the stored refresh token and both auth cookies.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := h.Store.SetRefreshToken(user.ID, ""); err != nil {
		writeError(w, err)
		return
	}
	h.observeAuthEvent("logout")
	h.ClearAuthCookies(w, r)
	writeData(w, http.StatusOK, struct{}{}, "user logged out")
}

// RefreshToken exchanges a valid refresh token for a new pair. The incoming
// token must match the stored one; a superseded token loses the rotation and
// is rejected.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}

	incoming := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		incoming = cookie.Value
	}
	if incoming == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req); err == nil {
			incoming = strings.TrimSpace(req.RefreshToken)
		}
	}
	if incoming == "" {
		writeError(w, UnauthorizedError("refresh token is required"))
		return
	}

	userID, err := h.Tokens.VerifyRefreshToken(incoming)
	if err != nil {
		writeError(w, err)
		return
	}
	user, exists := h.Store.GetUser(userID)
	if !exists {
		writeError(w, UnauthorizedError("invalid refresh token"))
		return
	}
	if user.RefreshToken != incoming {
		writeError(w, UnauthorizedError("refresh token is expired or already used"))
		return
	}

	access, accessExpires, err := h.Tokens.IssueAccessToken(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	refresh, refreshExpires, err := h.Tokens.IssueRefreshToken(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Store.RotateRefreshToken(user.ID, incoming, refresh); err != nil {
		writeError(w, err)
		return
	}

	h.observeAuthEvent("refresh")
	h.setAuthCookies(w, r, access, accessExpires, refresh, refreshExpires)
	writeData(w, http.StatusOK, authResponse{
		User:         publicUser(user),
		AccessToken:  access,
		RefreshToken: refresh,
	}, "access token refreshed")
}

// ChangePassword verifies the current password before storing a new one.
// Existing refresh tokens stay valid.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, BadRequestError(err.Error()))
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, BadRequestError("oldPassword and newPassword are required"))
		return
	}
	if req.ConfirmPassword != req.NewPassword {
		writeError(w, BadRequestError("newPassword and confirmPassword do not match"))
		return
	}
	if _, err := h.Store.AuthenticateUser(user.Username, req.OldPassword); err != nil {
		writeError(w, UnauthorizedError("invalid old password"))
		return
	}
	if err := h.Store.SetUserPassword(user.ID, req.NewPassword); err != nil {
		writeError(w, BadRequestError(err.Error()))
		return
	}
	writeData(w, http.StatusOK, struct{}{}, "password changed successfully")
}

// CurrentUser returns the authenticated account.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, publicUser(user), "current user fetched successfully")
}

// UpdateAccount changes the editable profile fields.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, "PATCH")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	var req updateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, BadRequestError(err.Error()))
		return
	}
	if req.FullName == nil && req.Email == nil {
		writeError(w, BadRequestError("at least one of fullName or email is required"))
		return
	}
	updated, err := h.Store.UpdateUser(user.ID, storage.UserUpdate{
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, publicUser(updated), "account details updated successfully")
}

// UpdateAvatar replaces the avatar image and removes the previous asset.
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", "avatars", func(user models.User) string {
		return user.AvatarURL
	}, func(url string) storage.UserUpdate {
		return storage.UserUpdate{AvatarURL: &url}
	}, "avatar updated successfully")
}

// UpdateCoverImage replaces the cover image and removes the previous asset.
func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", "covers", func(user models.User) string {
		return user.CoverImageURL
	}, func(url string) storage.UserUpdate {
		return storage.UserUpdate{CoverImageURL: &url}
	}, "cover image updated successfully")
}

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request, field, keyspace string, current func(models.User) string, buildUpdate func(string) storage.UserUpdate, message string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, "PATCH")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
		writeError(w, BadRequestError("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, BadRequestError(field+" file is required"))
		return
	}
	defer file.Close()

	asset, err := h.uploadAsset(r.Context(), assetKey(keyspace, user.Username, header), detectContentType(header), file)
	if err != nil {
		slog.Error("image upload failed", "field", field, "userID", user.ID, "error", err)
		writeError(w, newRequestError(http.StatusBadGateway, "media upload failed"))
		return
	}

	previous := current(user)
	updated, err := h.Store.UpdateUser(user.ID, buildUpdate(asset.URL))
	if err != nil {
		h.cleanupAssets(r, asset.URL)
		writeError(w, err)
		return
	}
	h.cleanupAssets(r, previous)

	writeData(w, http.StatusOK, publicUser(updated), message)
}

// cleanupAssets deletes media best-effort; a failed delete only logs.
func (h *Handler) cleanupAssets(r *http.Request, urls ...string) {
	for _, url := range urls {
		if url == "" {
			continue
		}
		if err := h.deleteAsset(r.Context(), url); err != nil {
			slog.Warn("asset cleanup failed", "url", url, "error", err)
		}
	}
}

// assetKey namespaces uploads per owner with a random component so repeated
// uploads of the same filename never collide.
func assetKey(keyspace, owner string, header *multipart.FileHeader) string {
	name := "upload"
	if header != nil && header.Filename != "" {
		name = path.Base(header.Filename)
	}
	return fmt.Sprintf("%s/%s/%s-%s", keyspace, owner, uuid.NewString(), name)
}

func detectContentType(header *multipart.FileHeader) string {
	if header == nil {
		return ""
	}
	return header.Header.Get("Content-Type")
}
