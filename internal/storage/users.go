package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Abhisheksantra28/Streamfinity/internal/models"
)

// CreateUser registers a new account. Username and email are normalised to
// lower case and must be unique across all users.
func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.data.Users {
		if user.Username == username || user.Email == email {
			return models.User{}, ErrUserExists
		}
	}

	now := s.clock()
	user := models.User{
		ID:            s.generateID(),
		Username:      username,
		Email:         email,
		FullName:      fullName,
		AvatarURL:     strings.TrimSpace(params.AvatarURL),
		CoverImageURL: strings.TrimSpace(params.CoverImageURL),
		PasswordHash:  hashed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.data.Users[user.ID] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, user.ID)
		return models.User{}, err
	}

	return user, nil
}

// GetUser returns the user with the provided id.
func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok
}

// FindUserByIdentifier looks a user up by username or email, case-insensitively.
func (s *Storage) FindUserByIdentifier(identifier string) (models.User, bool) {
	normalized := strings.ToLower(strings.TrimSpace(identifier))
	if normalized == "" {
		return models.User{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.Username == normalized || user.Email == normalized {
			return user, true
		}
	}
	return models.User{}, false
}

// AuthenticateUser verifies credentials and returns the matching user.
// Unknown identifiers surface as ErrUserNotFound so callers can distinguish
// them from a bad password.
func (s *Storage) AuthenticateUser(identifier, password string) (models.User, error) {
	user, ok := s.FindUserByIdentifier(identifier)
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

// UpdateUser applies the provided profile update and returns the new record.
func (s *Storage) UpdateUser(id string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	user, ok := updated.Users[id]
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
		for otherID, other := range updated.Users {
			if otherID != id && other.Email == email {
				return models.User{}, ErrUserExists
			}
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

	user.UpdatedAt = s.clock()
	updated.Users[id] = user

	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated

	return user, nil
}

// SetUserPassword re-hashes and persists a new password for the user.
func (s *Storage) SetUserPassword(id, password string) error {
	if err := validatePasswordStrength(password); err != nil {
		return err
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	user, ok := updated.Users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hashed
	user.UpdatedAt = s.clock()
	updated.Users[id] = user

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// SetRefreshToken unconditionally overwrites the stored refresh token for the
// user. An empty token clears it (logout).
func (s *Storage) SetRefreshToken(id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	user, ok := updated.Users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.RefreshToken = token
	user.UpdatedAt = s.clock()
	updated.Users[id] = user

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// RotateRefreshToken swaps the stored refresh token from previous to next.
// The update only applies while previous is still the stored value, so of two
// racing refresh calls exactly one wins and the loser observes
// ErrRefreshTokenMismatch.
func (s *Storage) RotateRefreshToken(id, previous, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	user, ok := updated.Users[id]
	if !ok {
		return ErrUserNotFound
	}
	if user.RefreshToken != previous {
		return ErrRefreshTokenMismatch
	}
	user.RefreshToken = next
	user.UpdatedAt = s.clock()
	updated.Users[id] = user

	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}
