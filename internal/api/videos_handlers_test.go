package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Abhisheksantra28/Streamfinity/internal/models"
)

func publishTestVideo(t *testing.T, h *Handler, user models.User, title string) models.Video {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{
		"title":           title,
		"description":     "Description for " + title,
		"durationSeconds": "42.5",
	}, map[string]string{
		"videoFile": title + ".mp4",
		"thumbnail": title + ".jpg",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.Videos(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data models.Video `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode publish response: %v", err)
	}
	return resp.Data
}

func TestPublishVideoUploadsBothAssets(t *testing.T) {
	h, assets := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	user, _ := h.Store.GetUser(created.ID)

	video := publishTestVideo(t, h, user, "First")
	if video.VideoFileURL == "" || video.ThumbnailURL == "" {
		t.Fatalf("expected asset URLs on video: %+v", video)
	}
	if video.DurationSeconds != 42.5 {
		t.Fatalf("expected duration from form, got %v", video.DurationSeconds)
	}
	if !video.IsPublished {
		t.Fatal("expected video published on create")
	}
	// avatar + video + thumbnail
	if assets.Len() != 3 {
		t.Fatalf("expected 3 stored assets, got %d", assets.Len())
	}
}

func TestPublishVideoRequiresFiles(t *testing.T) {
	h, _ := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	user, _ := h.Store.GetUser(created.ID)

	body, contentType := multipartBody(t, map[string]string{
		"title":       "No files",
		"description": "Missing uploads",
	}, map[string]string{"thumbnail": "t.jpg"})
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.Videos(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListVideosEnvelope(t *testing.T) {
	h, _ := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	user, _ := h.Store.GetUser(created.ID)
	for i := 0; i < 3; i++ {
		publishTestVideo(t, h, user, fmt.Sprintf("Video %d", i))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/videos?limit=2&sortBy=title&sortType=asc", nil)
	rec := httptest.NewRecorder()
	h.Videos(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		StatusCode int                   `json:"statusCode"`
		Data       []models.VideoListing `json:"data"`
		Success    bool                  `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if !resp.Success || resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(resp.Data))
	}
	if resp.Data[0].Title != "Video 0" {
		t.Fatalf("expected title-ascending order, got %q first", resp.Data[0].Title)
	}
	if resp.Data[0].Owner.Username != "alice" {
		t.Fatalf("expected joined owner, got %+v", resp.Data[0].Owner)
	}
}

func TestListVideosRejectsBadPaging(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/videos?page=abc", nil)
	rec := httptest.NewRecorder()
	h.Videos(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", rec.Code)
	}
}

func TestGetVideoIncrementsViews(t *testing.T) {
	h, _ := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	user, _ := h.Store.GetUser(created.ID)
	video := publishTestVideo(t, h, user, "Watched")

	req := httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil)
	rec := httptest.NewRecorder()
	h.VideoByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d: %s", rec.Code, rec.Body.String())
	}

	stored, _ := h.Store.GetVideo(video.ID)
	if stored.Views != 1 {
		t.Fatalf("expected 1 view, got %d", stored.Views)
	}

	ownerReq := httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil)
	ownerReq = ownerReq.WithContext(ContextWithUser(ownerReq.Context(), user))
	rec = httptest.NewRecorder()
	h.VideoByID(rec, ownerReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner get returned %d: %s", rec.Code, rec.Body.String())
	}

	stored, _ = h.Store.GetVideo(video.ID)
	if stored.Views != 1 {
		t.Fatalf("expected owner views to be free, got %d", stored.Views)
	}
}

func TestUnpublishedVideoHiddenFromOthers(t *testing.T) {
	h, _ := newTestHandler(t)
	owner := registerTestUser(t, h, "alice")
	other := registerTestUser(t, h, "bob")
	ownerUser, _ := h.Store.GetUser(owner.ID)
	otherUser, _ := h.Store.GetUser(other.ID)
	video := publishTestVideo(t, h, ownerUser, "Secret")

	toggle := httptest.NewRequest(http.MethodPatch, "/api/videos/"+video.ID+"/toggle-publish", nil)
	toggle = toggle.WithContext(ContextWithUser(toggle.Context(), ownerUser))
	toggleRec := httptest.NewRecorder()
	h.VideoByID(toggleRec, toggle)
	if toggleRec.Code != http.StatusOK {
		t.Fatalf("toggle returned %d: %s", toggleRec.Code, toggleRec.Body.String())
	}

	anon := httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil)
	anonRec := httptest.NewRecorder()
	h.VideoByID(anonRec, anon)
	if anonRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for anonymous viewer, got %d", anonRec.Code)
	}

	stranger := httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil)
	stranger = stranger.WithContext(ContextWithUser(stranger.Context(), otherUser))
	strangerRec := httptest.NewRecorder()
	h.VideoByID(strangerRec, stranger)
	if strangerRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for non-owner, got %d", strangerRec.Code)
	}

	asOwner := httptest.NewRequest(http.MethodGet, "/api/videos/"+video.ID, nil)
	asOwner = asOwner.WithContext(ContextWithUser(asOwner.Context(), ownerUser))
	ownerRec := httptest.NewRecorder()
	h.VideoByID(ownerRec, asOwner)
	if ownerRec.Code != http.StatusOK {
		t.Fatalf("expected owner to see unpublished video, got %d", ownerRec.Code)
	}
}

func TestVideoMutationsAreOwnerOnly(t *testing.T) {
	h, _ := newTestHandler(t)
	owner := registerTestUser(t, h, "alice")
	other := registerTestUser(t, h, "bob")
	ownerUser, _ := h.Store.GetUser(owner.ID)
	otherUser, _ := h.Store.GetUser(other.ID)
	video := publishTestVideo(t, h, ownerUser, "Protected")

	update := httptest.NewRequest(http.MethodPatch, "/api/videos/"+video.ID, strings.NewReader(`{"title":"Hijacked"}`))
	update = update.WithContext(ContextWithUser(update.Context(), otherUser))
	updateRec := httptest.NewRecorder()
	h.VideoByID(updateRec, update)
	if updateRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner update, got %d", updateRec.Code)
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/videos/"+video.ID, nil)
	del = del.WithContext(ContextWithUser(del.Context(), otherUser))
	delRec := httptest.NewRecorder()
	h.VideoByID(delRec, del)
	if delRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner delete, got %d", delRec.Code)
	}
}

func TestUpdateVideoJSON(t *testing.T) {
	h, _ := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	user, _ := h.Store.GetUser(created.ID)
	video := publishTestVideo(t, h, user, "Original")

	req := httptest.NewRequest(http.MethodPatch, "/api/videos/"+video.ID, strings.NewReader(`{"title":"Renamed"}`))
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.VideoByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", rec.Code, rec.Body.String())
	}

	stored, _ := h.Store.GetVideo(video.ID)
	if stored.Title != "Renamed" {
		t.Fatalf("expected renamed video, got %q", stored.Title)
	}
}

func TestDeleteVideoRemovesAssets(t *testing.T) {
	h, assets := newTestHandler(t)
	created := registerTestUser(t, h, "alice")
	user, _ := h.Store.GetUser(created.ID)
	video := publishTestVideo(t, h, user, "Doomed")

	req := httptest.NewRequest(http.MethodDelete, "/api/videos/"+video.ID, nil)
	req = req.WithContext(ContextWithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.VideoByID(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", rec.Code, rec.Body.String())
	}

	if _, ok := h.Store.GetVideo(video.ID); ok {
		t.Fatal("expected video removed")
	}
	if _, ok := assets.Object(video.VideoFileURL); ok {
		t.Fatal("expected video asset deleted")
	}
	if _, ok := assets.Object(video.ThumbnailURL); ok {
		t.Fatal("expected thumbnail asset deleted")
	}
}
