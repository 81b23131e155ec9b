package storage

import (
	"errors"
	"sort"
	"strings"

	"github.com/Abhisheksantra28/Streamfinity/internal/models"
)

// CreateVideo persists a new video record for the owning user.
func (s *Storage) CreateVideo(params CreateVideoParams) (models.Video, error) {
	title := strings.TrimSpace(params.Title)
	description := strings.TrimSpace(params.Description)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}
	if description == "" {
		return models.Video{}, errors.New("description is required")
	}
	if params.VideoFileURL == "" {
		return models.Video{}, errors.New("videoFileUrl is required")
	}
	if params.ThumbnailURL == "" {
		return models.Video{}, errors.New("thumbnailUrl is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, ErrUserNotFound
	}

	now := s.clock()
	video := models.Video{
		ID:              s.generateID(),
		OwnerID:         params.OwnerID,
		Title:           title,
		Description:     description,
		VideoFileURL:    params.VideoFileURL,
		ThumbnailURL:    params.ThumbnailURL,
		DurationSeconds: params.DurationSeconds,
		IsPublished:     params.IsPublished,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.data.Videos[video.ID] = video
	if err := s.persist(); err != nil {
		delete(s.data.Videos, video.ID)
		return models.Video{}, err
	}

	return video, nil
}

// GetVideo returns the video with the provided id.
func (s *Storage) GetVideo(id string) (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	return video, ok
}

// UpdateVideo applies the provided update and returns the new record.
func (s *Storage) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	video, ok := updated.Videos[id]
	if !ok {
		return models.Video{}, ErrVideoNotFound
	}

	if update.Title != nil {
		trimmed := strings.TrimSpace(*update.Title)
		if trimmed == "" {
			return models.Video{}, errors.New("title cannot be empty")
		}
		video.Title = trimmed
	}
	if update.Description != nil {
		trimmed := strings.TrimSpace(*update.Description)
		if trimmed == "" {
			return models.Video{}, errors.New("description cannot be empty")
		}
		video.Description = trimmed
	}
	if update.ThumbnailURL != nil {
		trimmed := strings.TrimSpace(*update.ThumbnailURL)
		if trimmed == "" {
			return models.Video{}, errors.New("thumbnailUrl cannot be empty")
		}
		video.ThumbnailURL = trimmed
	}

	video.UpdatedAt = s.clock()
	updated.Videos[id] = video

	if err := s.persistDataset(updated); err != nil {
		return models.Video{}, err
	}
	s.data = updated

	return video, nil
}

// DeleteVideo removes the record and returns it so callers can clean up the
// media assets it referenced.
func (s *Storage) DeleteVideo(id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrVideoNotFound
	}

	updated := cloneDataset(s.data)
	delete(updated.Videos, id)

	if err := s.persistDataset(updated); err != nil {
		return models.Video{}, err
	}
	s.data = updated

	return video, nil
}

// TogglePublish flips the publish flag and returns the new record.
func (s *Storage) TogglePublish(id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	video, ok := updated.Videos[id]
	if !ok {
		return models.Video{}, ErrVideoNotFound
	}
	video.IsPublished = !video.IsPublished
	video.UpdatedAt = s.clock()
	updated.Videos[id] = video

	if err := s.persistDataset(updated); err != nil {
		return models.Video{}, err
	}
	s.data = updated

	return video, nil
}

// IncrementViews bumps the view counter without touching UpdatedAt.
func (s *Storage) IncrementViews(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	video, ok := updated.Videos[id]
	if !ok {
		return ErrVideoNotFound
	}
	video.Views++
	updated.Videos[id] = video

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// ListVideos runs the listing pipeline: filter published (optionally by
// owner), match the free-text query over title and description, sort,
// paginate, and join the owner's public profile fields. No matches is an
// empty slice, not an error.
func (s *Storage) ListVideos(params ListVideosParams) ([]models.VideoListing, error) {
	params = params.normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Video, 0, len(s.data.Videos))
	query := strings.ToLower(params.Query)
	for _, video := range s.data.Videos {
		if !video.IsPublished {
			continue
		}
		if params.OwnerID != "" && video.OwnerID != params.OwnerID {
			continue
		}
		if query != "" && !matchesQuery(video, query) {
			continue
		}
		matched = append(matched, video)
	}

	sortVideos(matched, params.SortBy, params.SortType)

	start := (params.Page - 1) * params.Limit
	if start >= len(matched) {
		return []models.VideoListing{}, nil
	}
	end := start + params.Limit
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]models.VideoListing, 0, end-start)
	for _, video := range matched[start:end] {
		listing := models.VideoListing{
			ID:              video.ID,
			Title:           video.Title,
			Description:     video.Description,
			ThumbnailURL:    video.ThumbnailURL,
			DurationSeconds: video.DurationSeconds,
			Views:           video.Views,
			CreatedAt:       video.CreatedAt,
		}
		if owner, ok := s.data.Users[video.OwnerID]; ok {
			listing.Owner = models.VideoOwner{
				ID:        owner.ID,
				Username:  owner.Username,
				FullName:  owner.FullName,
				AvatarURL: owner.AvatarURL,
			}
		}
		page = append(page, listing)
	}

	return page, nil
}

func matchesQuery(video models.Video, loweredQuery string) bool {
	return strings.Contains(strings.ToLower(video.Title), loweredQuery) ||
		strings.Contains(strings.ToLower(video.Description), loweredQuery)
}

func sortVideos(videos []models.Video, sortBy, sortType string) {
	ascending := sortType == "asc"
	sort.Slice(videos, func(i, j int) bool {
		a, b := videos[i], videos[j]
		var less bool
		switch sortBy {
		case "title":
			if a.Title == b.Title {
				return a.ID < b.ID
			}
			less = a.Title < b.Title
		case "durationSeconds":
			if a.DurationSeconds == b.DurationSeconds {
				return a.ID < b.ID
			}
			less = a.DurationSeconds < b.DurationSeconds
		case "views":
			if a.Views == b.Views {
				return a.ID < b.ID
			}
			less = a.Views < b.Views
		default: // createdAt
			if a.CreatedAt.Equal(b.CreatedAt) {
				return a.ID < b.ID
			}
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if ascending {
			return less
		}
		return !less
	})
}
