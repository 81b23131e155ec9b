package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abhisheksantra28/Streamfinity/internal/models"
)

// postgresRepository persists users and videos as JSONB documents, with the
// columns needed for uniqueness, joins, and sorting lifted out of the
// document. Refresh-token rotation relies on a guarded UPDATE so concurrent
// rotations resolve inside the database.
type postgresRepository struct {
	pool  *pgxpool.Pool
	cfg   PostgresConfig
	clock func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema migration.
func NewPostgresRepository(dsn string, opts ...Option) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &postgresRepository{
		pool:  pool,
		cfg:   cfg,
		clock: func() time.Time { return time.Now().UTC() },
	}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the Postgres connection pool resources.
func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	username := strings.ToLower(strings.TrimSpace(params.Username))
	email := strings.ToLower(strings.TrimSpace(params.Email))
	fullName := strings.TrimSpace(params.FullName)

	if username == "" {
		return models.User{}, errors.New("username is required")
	}
	if email == "" {
		return models.User{}, errors.New("email is required")
	}
	if fullName == "" {
		return models.User{}, errors.New("fullName is required")
	}
	if params.Password == "" {
		return models.User{}, errors.New("password is required")
	}
	if err := validatePasswordStrength(params.Password); err != nil {
		return models.User{}, err
	}
	if strings.TrimSpace(params.AvatarURL) == "" {
		return models.User{}, errors.New("avatarUrl is required")
	}

	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := r.clock()
	user := models.User{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     strings.TrimSpace(params.AvatarURL),
		CoverImageURL: strings.TrimSpace(params.CoverImageURL),
		PasswordHash:  hashed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	doc, err := json.Marshal(user)
	if err != nil {
		return models.User{}, fmt.Errorf("encode user: %w", err)
	}
	_, err = r.pool.Exec(context.Background(), `
INSERT INTO users (id, username, email, doc)
VALUES ($1, $2, $3, $4)
`, user.ID, user.Username, user.Email, doc)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) GetUser(id string) (models.User, bool) {
	row := r.pool.QueryRow(context.Background(), `SELECT doc FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *postgresRepository) FindUserByIdentifier(identifier string) (models.User, bool) {
	normalized := strings.ToLower(strings.TrimSpace(identifier))
	if normalized == "" {
		return models.User{}, false
	}
	row := r.pool.QueryRow(context.Background(), `
SELECT doc FROM users WHERE username = $1 OR email = $1
`, normalized)
	return scanUser(row)
}

func (r *postgresRepository) AuthenticateUser(identifier, password string) (models.User, error) {
	user, ok := r.FindUserByIdentifier(identifier)
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *postgresRepository) UpdateUser(id string, update UserUpdate) (models.User, error) {
	ctx := context.Background()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("begin update user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT doc FROM users WHERE id = $1 FOR UPDATE`, id)
	user, ok := scanUser(row)
	if !ok {
		return models.User{}, ErrUserNotFound
	}

	if update.FullName != nil {
		trimmed := strings.TrimSpace(*update.FullName)
		if trimmed == "" {
			return models.User{}, errors.New("fullName cannot be empty")
		}
		user.FullName = trimmed
	}
	if update.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*update.Email))
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		user.Email = email
	}
	if update.AvatarURL != nil {
		trimmed := strings.TrimSpace(*update.AvatarURL)
		if trimmed == "" {
			return models.User{}, errors.New("avatarUrl cannot be empty")
		}
		user.AvatarURL = trimmed
	}
	if update.CoverImageURL != nil {
		user.CoverImageURL = strings.TrimSpace(*update.CoverImageURL)
	}
	user.UpdatedAt = r.clock()

	doc, err := json.Marshal(user)
	if err != nil {
		return models.User{}, fmt.Errorf("encode user: %w", err)
	}
	if _, err := tx.Exec(ctx, `
UPDATE users SET email = $2, doc = $3 WHERE id = $1
`, id, user.Email, doc); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit update user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) SetUserPassword(id, password string) error {
	if err := validatePasswordStrength(password); err != nil {
		return err
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	tag, err := r.pool.Exec(context.Background(), `
UPDATE users
SET doc = jsonb_set(jsonb_set(doc, '{passwordHash}', to_jsonb($2::text), true), '{updatedAt}', to_jsonb($3::timestamptz), true)
WHERE id = $1
`, id, hashed, r.clock())
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *postgresRepository) SetRefreshToken(id, token string) error {
	tag, err := r.pool.Exec(context.Background(), `
UPDATE users
SET doc = jsonb_set(jsonb_set(doc, '{refreshToken}', to_jsonb($2::text), true), '{updatedAt}', to_jsonb($3::timestamptz), true)
WHERE id = $1
`, id, token, r.clock())
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *postgresRepository) RotateRefreshToken(id, previous, next string) error {
	tag, err := r.pool.Exec(context.Background(), `
UPDATE users
SET doc = jsonb_set(jsonb_set(doc, '{refreshToken}', to_jsonb($3::text), true), '{updatedAt}', to_jsonb($4::timestamptz), true)
WHERE id = $1 AND COALESCE(doc->>'refreshToken', '') = $2
`, id, previous, next, r.clock())
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, ok := r.GetUser(id); !ok {
			return ErrUserNotFound
		}
		return ErrRefreshTokenMismatch
	}
	return nil
}

func (r *postgresRepository) CreateVideo(params CreateVideoParams) (models.Video, error) {
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

	now := r.clock()
	video := models.Video{
		ID:              uuid.NewString(),
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
	doc, err := json.Marshal(video)
	if err != nil {
		return models.Video{}, fmt.Errorf("encode video: %w", err)
	}
	_, err = r.pool.Exec(context.Background(), `
INSERT INTO videos (id, owner_id, is_published, created_at, doc)
VALUES ($1, $2, $3, $4, $5)
`, video.ID, video.OwnerID, video.IsPublished, video.CreatedAt, doc)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.Video{}, ErrUserNotFound
		}
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) GetVideo(id string) (models.Video, bool) {
	row := r.pool.QueryRow(context.Background(), `SELECT doc FROM videos WHERE id = $1`, id)
	return scanVideo(row)
}

func (r *postgresRepository) UpdateVideo(id string, update VideoUpdate) (models.Video, error) {
	ctx := context.Background()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("begin update video: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT doc FROM videos WHERE id = $1 FOR UPDATE`, id)
	video, ok := scanVideo(row)
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
	video.UpdatedAt = r.clock()

	doc, err := json.Marshal(video)
	if err != nil {
		return models.Video{}, fmt.Errorf("encode video: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE videos SET doc = $2 WHERE id = $1`, id, doc); err != nil {
		return models.Video{}, fmt.Errorf("update video: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Video{}, fmt.Errorf("commit update video: %w", err)
	}
	return video, nil
}

func (r *postgresRepository) DeleteVideo(id string) (models.Video, error) {
	row := r.pool.QueryRow(context.Background(), `
DELETE FROM videos WHERE id = $1 RETURNING doc
`, id)
	video, ok := scanVideo(row)
	if !ok {
		return models.Video{}, ErrVideoNotFound
	}
	return video, nil
}

func (r *postgresRepository) TogglePublish(id string) (models.Video, error) {
	row := r.pool.QueryRow(context.Background(), `
UPDATE videos
SET is_published = NOT is_published,
    doc = jsonb_set(jsonb_set(doc, '{isPublished}', to_jsonb(NOT is_published), true), '{updatedAt}', to_jsonb($2::timestamptz), true)
WHERE id = $1
RETURNING doc
`, id, r.clock())
	video, ok := scanVideo(row)
	if !ok {
		return models.Video{}, ErrVideoNotFound
	}
	return video, nil
}

func (r *postgresRepository) IncrementViews(id string) error {
	tag, err := r.pool.Exec(context.Background(), `
UPDATE videos
SET doc = jsonb_set(doc, '{views}', to_jsonb(COALESCE((doc->>'views')::bigint, 0) + 1), true)
WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

var listSortColumns = map[string]string{
	"createdAt":       "v.created_at",
	"title":           "v.doc->>'title'",
	"durationSeconds": "(v.doc->>'durationSeconds')::double precision",
	"views":           "COALESCE((v.doc->>'views')::bigint, 0)",
}

// likeEscaper neutralizes LIKE metacharacters so user-supplied search text
// matches literally, the same way the JSON store's substring match does.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLikePattern(query string) string {
	return likeEscaper.Replace(query)
}

func (r *postgresRepository) ListVideos(params ListVideosParams) ([]models.VideoListing, error) {
	params = params.normalize()

	column, ok := listSortColumns[params.SortBy]
	if !ok {
		column = listSortColumns["createdAt"]
	}
	direction := "DESC"
	if params.SortType == "asc" {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
SELECT v.doc, u.doc
FROM videos v
JOIN users u ON u.id = v.owner_id
WHERE v.is_published
  AND ($1 = '' OR v.owner_id = $1)
  AND ($2 = '' OR v.doc->>'title' ILIKE '%%' || $2 || '%%' ESCAPE '\' OR v.doc->>'description' ILIKE '%%' || $2 || '%%' ESCAPE '\')
ORDER BY %s %s, v.id
LIMIT $3 OFFSET $4
`, column, direction)

	rows, err := r.pool.Query(context.Background(), query,
		params.OwnerID, escapeLikePattern(params.Query), params.Limit, (params.Page-1)*params.Limit)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	listings := []models.VideoListing{}
	for rows.Next() {
		var videoDoc, ownerDoc []byte
		if err := rows.Scan(&videoDoc, &ownerDoc); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		var video models.Video
		if err := json.Unmarshal(videoDoc, &video); err != nil {
			return nil, fmt.Errorf("decode video doc: %w", err)
		}
		var owner models.User
		if err := json.Unmarshal(ownerDoc, &owner); err != nil {
			return nil, fmt.Errorf("decode owner doc: %w", err)
		}
		listings = append(listings, models.VideoListing{
			ID:              video.ID,
			Title:           video.Title,
			Description:     video.Description,
			ThumbnailURL:    video.ThumbnailURL,
			DurationSeconds: video.DurationSeconds,
			Views:           video.Views,
			CreatedAt:       video.CreatedAt,
			Owner: models.VideoOwner{
				ID:        owner.ID,
				Username:  owner.Username,
				FullName:  owner.FullName,
				AvatarURL: owner.AvatarURL,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return listings, nil
}

func scanUser(row pgx.Row) (models.User, bool) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		return models.User{}, false
	}
	var user models.User
	if err := json.Unmarshal(doc, &user); err != nil {
		return models.User{}, false
	}
	return user, true
}

func scanVideo(row pgx.Row) (models.Video, bool) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		return models.Video{}, false
	}
	var video models.Video
	if err := json.Unmarshal(doc, &video); err != nil {
		return models.Video{}, false
	}
	return video, true
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ Repository = (*postgresRepository)(nil)
