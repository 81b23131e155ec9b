// Command seed-user seeds or updates an account in the datastore, which is
// handy for development environments and smoke tests.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Abhisheksantra28/Streamfinity/internal/models"
	"github.com/Abhisheksantra28/Streamfinity/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		username    string
		email       string
		fullName    string
		password    string
		avatarURL   string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&username, "username", "", "Username for the account")
	flag.StringVar(&email, "email", "", "Email address for the account")
	flag.StringVar(&fullName, "name", "", "Full name for the account")
	flag.StringVar(&password, "password", "", "Password for the account")
	flag.StringVar(&avatarURL, "avatar-url", "", "Avatar URL for the account")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(username) == "" {
		fatalf("--username is required")
	}
	if strings.TrimSpace(email) == "" {
		fatalf("--email is required")
	}
	if strings.TrimSpace(fullName) == "" {
		fatalf("--name is required")
	}
	if password == "" {
		fatalf("--password is required")
	}
	if strings.TrimSpace(avatarURL) == "" {
		fatalf("--avatar-url is required")
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	user, created, err := seedUser(repo, storage.CreateUserParams{
		Username:  strings.TrimSpace(username),
		Email:     strings.TrimSpace(email),
		FullName:  strings.TrimSpace(fullName),
		Password:  password,
		AvatarURL: strings.TrimSpace(avatarURL),
	})
	if err != nil {
		fatalf("seed user: %v", err)
	}

	state := "updated"
	if created {
		state = "created"
	}
	fmt.Printf("User %s (%s) %s successfully.\n", user.Username, user.Email, state)
	fmt.Println("Remember to rotate this password after the first login.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewJSONRepository(jsonPath)
	}
	return storage.NewPostgresRepository(postgresDSN)
}

func closeRepository(repo storage.Repository) {
	type closer interface {
		Close(context.Context) error
	}
	if c, ok := repo.(closer); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}

func seedUser(repo storage.Repository, params storage.CreateUserParams) (models.User, bool, error) {
	existing, found := repo.FindUserByIdentifier(params.Username)
	if !found {
		existing, found = repo.FindUserByIdentifier(params.Email)
	}
	if !found {
		user, err := repo.CreateUser(params)
		if err != nil {
			return models.User{}, false, err
		}
		return user, true, nil
	}

	update := storage.UserUpdate{}
	if existing.FullName != params.FullName {
		update.FullName = &params.FullName
	}
	if existing.AvatarURL != params.AvatarURL {
		update.AvatarURL = &params.AvatarURL
	}

	updated := existing
	var err error
	if update.FullName != nil || update.AvatarURL != nil {
		updated, err = repo.UpdateUser(existing.ID, update)
		if err != nil {
			return models.User{}, false, err
		}
	}

	if err := repo.SetUserPassword(existing.ID, params.Password); err != nil {
		return models.User{}, false, err
	}
	return updated, false, nil
}
