package storage

import (
	"context"

	"github.com/Abhisheksantra28/Streamfinity/internal/models"
)

// Repository exposes the datastore operations required by the API handlers:
// credential storage with refresh-token rotation on the user side, and the
// filtered/sorted/paginated listing pipeline on the video side.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	GetUser(id string) (models.User, bool)
	FindUserByIdentifier(identifier string) (models.User, bool)
	AuthenticateUser(identifier, password string) (models.User, error)
	UpdateUser(id string, update UserUpdate) (models.User, error)
	SetUserPassword(id, password string) error
	SetRefreshToken(id, token string) error
	RotateRefreshToken(id, previous, next string) error

	CreateVideo(params CreateVideoParams) (models.Video, error)
	GetVideo(id string) (models.Video, bool)
	UpdateVideo(id string, update VideoUpdate) (models.Video, error)
	DeleteVideo(id string) (models.Video, error)
	TogglePublish(id string) (models.Video, error)
	IncrementViews(id string) error
	ListVideos(params ListVideosParams) ([]models.VideoListing, error)
}

var _ Repository = (*Storage)(nil)

// NewJSONRepository opens the JSON-backed datastore and returns it as a
// Repository.
func NewJSONRepository(path string, opts ...Option) (Repository, error) {
	return NewStorage(path, opts...)
}
