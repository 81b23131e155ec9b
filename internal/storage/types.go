package storage

import (
	"errors"
	"strings"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000

	// DefaultPageLimit applies when a listing request omits the limit.
	DefaultPageLimit = 10
	// MaxPageLimit caps how many listing entries a single page may return.
	MaxPageLimit = 100
)

var (
	ErrUserExists         = errors.New("username or email already in use")
	ErrUserNotFound       = errors.New("user not found")
	ErrVideoNotFound      = errors.New("video not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRefreshTokenMismatch is returned when a rotation update loses against
	// a newer stored refresh token.
	ErrRefreshTokenMismatch = errors.New("stored refresh token does not match")
)

// CreateUserParams captures the attributes set when registering a user. The
// media URLs are expected to already point at uploaded assets.
type CreateUserParams struct {
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// UserUpdate mutates the editable profile fields of a user. Nil pointers leave
// the current value untouched.
type UserUpdate struct {
	FullName      *string
	Email         *string
	AvatarURL     *string
	CoverImageURL *string
}

// CreateVideoParams captures the attributes set when publishing a video.
type CreateVideoParams struct {
	OwnerID         string
	Title           string
	Description     string
	VideoFileURL    string
	ThumbnailURL    string
	DurationSeconds float64
	IsPublished     bool
}

// VideoUpdate mutates the editable fields of a video record.
type VideoUpdate struct {
	Title        *string
	Description  *string
	ThumbnailURL *string
}

// ListVideosParams describes a listing query. Zero values fall back to the
// defaults applied by normalize: first page, DefaultPageLimit entries, newest
// first.
type ListVideosParams struct {
	Page     int
	Limit    int
	Query    string
	SortBy   string
	SortType string
	OwnerID  string
}

var listSortFields = map[string]struct{}{
	"createdAt":       {},
	"title":           {},
	"durationSeconds": {},
	"views":           {},
}

func (p ListVideosParams) normalize() ListVideosParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	p.Query = strings.TrimSpace(p.Query)
	p.OwnerID = strings.TrimSpace(p.OwnerID)
	if _, ok := listSortFields[p.SortBy]; !ok {
		p.SortBy = "createdAt"
	}
	switch strings.ToLower(strings.TrimSpace(p.SortType)) {
	case "asc":
		p.SortType = "asc"
	default:
		p.SortType = "desc"
	}
	return p
}
