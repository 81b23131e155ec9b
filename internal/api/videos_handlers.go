package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Abhisheksantra28/Streamfinity/internal/media"
	"github.com/Abhisheksantra28/Streamfinity/internal/models"
	"github.com/Abhisheksantra28/Streamfinity/internal/storage"
)

// maxVideoUploadBytes bounds the multipart memory used when publishing a
// video; larger bodies spill to temp files.
const maxVideoUploadBytes = 64 << 20

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Videos serves the collection endpoints: listing published videos and
// publishing a new one.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listVideos(w, r)
	case http.MethodPost:
		h.publishVideo(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// listVideos runs the listing pipeline from query parameters. Unknown sort
// fields and out-of-range paging fall back to defaults rather than failing.
func (h *Handler) listVideos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := storage.ListVideosParams{
		Query:    query.Get("query"),
		SortBy:   query.Get("sortBy"),
		SortType: query.Get("sortType"),
		OwnerID:  query.Get("userId"),
	}
	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, BadRequestError("page must be an integer"))
			return
		}
		params.Page = page
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, BadRequestError("limit must be an integer"))
			return
		}
		params.Limit = limit
	}

	listings, err := h.Store.ListVideos(params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, listings, "videos fetched successfully")
}

// publishVideo uploads the video file and thumbnail concurrently, then
// persists the record. DurationSeconds comes from the form because object
// stores cannot probe media metadata.
func (h *Handler) publishVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxVideoUploadBytes); err != nil {
		writeError(w, BadRequestError("invalid multipart form"))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	if title == "" || description == "" {
		writeError(w, BadRequestError("title and description are required"))
		return
	}
	duration := 0.0
	if raw := r.FormValue("durationSeconds"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			writeError(w, BadRequestError("durationSeconds must be a non-negative number"))
			return
		}
		duration = parsed
	}

	videoFile, videoHeader, err := r.FormFile("videoFile")
	if err != nil {
		writeError(w, BadRequestError("videoFile is required"))
		return
	}
	defer videoFile.Close()

	thumbFile, thumbHeader, err := r.FormFile("thumbnail")
	if err != nil {
		writeError(w, BadRequestError("thumbnail is required"))
		return
	}
	defer thumbFile.Close()

	var videoAsset, thumbAsset media.Asset
	group, groupCtx := errgroup.WithContext(r.Context())
	group.Go(func() error {
		asset, err := h.uploadAsset(groupCtx, assetKey("videos", user.Username, videoHeader), detectContentType(videoHeader), videoFile)
		if err != nil {
			return err
		}
		videoAsset = asset
		return nil
	})
	group.Go(func() error {
		asset, err := h.uploadAsset(groupCtx, assetKey("thumbnails", user.Username, thumbHeader), detectContentType(thumbHeader), thumbFile)
		if err != nil {
			return err
		}
		thumbAsset = asset
		return nil
	})
	if err := group.Wait(); err != nil {
		slog.Error("video upload failed", "userID", user.ID, "error", err)
		h.cleanupAssets(r, videoAsset.URL, thumbAsset.URL)
		writeError(w, newRequestError(http.StatusBadGateway, "media upload failed"))
		return
	}
	if videoAsset.DurationSeconds > 0 {
		duration = videoAsset.DurationSeconds
	}

	video, err := h.Store.CreateVideo(storage.CreateVideoParams{
		OwnerID:         user.ID,
		Title:           title,
		Description:     description,
		VideoFileURL:    videoAsset.URL,
		ThumbnailURL:    thumbAsset.URL,
		DurationSeconds: duration,
		IsPublished:     true,
	})
	if err != nil {
		h.cleanupAssets(r, videoAsset.URL, thumbAsset.URL)
		writeError(w, err)
		return
	}

	h.observeVideoEvent("publish")
	writeData(w, http.StatusCreated, video, "video published successfully")
}

// VideoByID routes /api/videos/{id} and /api/videos/{id}/toggle-publish.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/videos/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, NotFoundError("video not found"))
		return
	}
	videoID := parts[0]

	if len(parts) == 2 && parts[1] == "toggle-publish" {
		h.togglePublish(w, r, videoID)
		return
	}
	if len(parts) > 1 {
		writeError(w, NotFoundError("video not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getVideo(w, r, videoID)
	case http.MethodPatch:
		h.updateVideo(w, r, videoID)
	case http.MethodDelete:
		h.deleteVideo(w, r, videoID)
	default:
		methodNotAllowed(w, "GET, PATCH, DELETE")
	}
}

// getVideo returns a single video. Unpublished videos are only visible to
// their owner; published views bump the counter unless the owner is looking
// at their own upload.
func (h *Handler) getVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	video, exists := h.Store.GetVideo(videoID)
	if !exists {
		writeError(w, NotFoundError("video not found"))
		return
	}
	user, authenticated := UserFromContext(r.Context())
	if !video.IsPublished {
		if !authenticated || user.ID != video.OwnerID {
			writeError(w, NotFoundError("video not found"))
			return
		}
	} else if !authenticated || user.ID != video.OwnerID {
		if err := h.Store.IncrementViews(video.ID); err == nil {
			video.Views++
			h.observeVideoEvent("view")
		}
	}
	writeData(w, http.StatusOK, video, "video fetched successfully")
}

func (h *Handler) updateVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	user, video, ok := h.requireVideoOwner(w, r, videoID)
	if !ok {
		return
	}

	update := storage.VideoUpdate{}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageUploadBytes); err != nil {
			writeError(w, BadRequestError("invalid multipart form"))
			return
		}
		if title := strings.TrimSpace(r.FormValue("title")); title != "" {
			update.Title = &title
		}
		if description := strings.TrimSpace(r.FormValue("description")); description != "" {
			update.Description = &description
		}
		if file, header, err := r.FormFile("thumbnail"); err == nil {
			defer file.Close()
			asset, err := h.uploadAsset(r.Context(), assetKey("thumbnails", user.Username, header), detectContentType(header), file)
			if err != nil {
				slog.Error("thumbnail upload failed", "videoID", videoID, "error", err)
				writeError(w, newRequestError(http.StatusBadGateway, "media upload failed"))
				return
			}
			update.ThumbnailURL = &asset.URL
		}
	} else {
		var req updateVideoRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, BadRequestError(err.Error()))
			return
		}
		update.Title = req.Title
		update.Description = req.Description
	}

	if update.Title == nil && update.Description == nil && update.ThumbnailURL == nil {
		writeError(w, BadRequestError("nothing to update"))
		return
	}

	previousThumbnail := video.ThumbnailURL
	updated, err := h.Store.UpdateVideo(videoID, update)
	if err != nil {
		if update.ThumbnailURL != nil {
			h.cleanupAssets(r, *update.ThumbnailURL)
		}
		writeError(w, err)
		return
	}
	if update.ThumbnailURL != nil {
		h.cleanupAssets(r, previousThumbnail)
	}

	writeData(w, http.StatusOK, updated, "video updated successfully")
}

// deleteVideo removes the record and its stored assets.
func (h *Handler) deleteVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	_, _, ok := h.requireVideoOwner(w, r, videoID)
	if !ok {
		return
	}
	deleted, err := h.Store.DeleteVideo(videoID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cleanupAssets(r, deleted.VideoFileURL, deleted.ThumbnailURL)
	h.observeVideoEvent("delete")
	writeData(w, http.StatusOK, struct{}{}, "video deleted successfully")
}

func (h *Handler) togglePublish(w http.ResponseWriter, r *http.Request, videoID string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, "PATCH")
		return
	}
	_, _, ok := h.requireVideoOwner(w, r, videoID)
	if !ok {
		return
	}
	video, err := h.Store.TogglePublish(videoID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.observeVideoEvent("toggle_publish")
	writeData(w, http.StatusOK, video, "publish status toggled")
}

// requireVideoOwner loads the video and enforces that the authenticated user
// owns it.
func (h *Handler) requireVideoOwner(w http.ResponseWriter, r *http.Request, videoID string) (models.User, models.Video, bool) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.User{}, models.Video{}, false
	}
	video, exists := h.Store.GetVideo(videoID)
	if !exists {
		writeError(w, NotFoundError("video not found"))
		return models.User{}, models.Video{}, false
	}
	if video.OwnerID != user.ID {
		writeError(w, ForbiddenError("only the owner can modify this video"))
		return models.User{}, models.Video{}, false
	}
	return user, video, true
}
