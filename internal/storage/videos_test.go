package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func seedVideos(t *testing.T, store *Storage, ownerID string, count int, published bool) []string {
	t.Helper()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		video, err := store.CreateVideo(CreateVideoParams{
			OwnerID:         ownerID,
			Title:           fmt.Sprintf("Video %02d", i),
			Description:     fmt.Sprintf("Description for video %02d", i),
			VideoFileURL:    fmt.Sprintf("https://cdn.example.com/videos/%02d.mp4", i),
			ThumbnailURL:    fmt.Sprintf("https://cdn.example.com/thumbs/%02d.jpg", i),
			DurationSeconds: float64(30 + i),
			IsPublished:     published,
		})
		if err != nil {
			t.Fatalf("CreateVideo %d: %v", i, err)
		}
		ids = append(ids, video.ID)
	}
	return ids
}

func TestCreateVideoRequiresExistingOwner(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateVideo(CreateVideoParams{
		OwnerID:      "ghost",
		Title:        "Orphan",
		Description:  "No owner",
		VideoFileURL: "https://cdn.example.com/videos/orphan.mp4",
		ThumbnailURL: "https://cdn.example.com/thumbs/orphan.jpg",
	})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListVideosPaginatesNewestFirst(t *testing.T) {
	start := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, WithClock(fixedClock(start, time.Minute)))
	owner := createTestUser(t, store, "alice")
	seedVideos(t, store, owner.ID, 25, true)

	page, err := store.ListVideos(ListVideosParams{Page: 2})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(page) != DefaultPageLimit {
		t.Fatalf("expected %d entries, got %d", DefaultPageLimit, len(page))
	}
	// Newest first: page 2 with 25 videos starts at the 11th newest, Video 14.
	if page[0].Title != "Video 14" {
		t.Fatalf("expected page to start at Video 14, got %q", page[0].Title)
	}
	if page[len(page)-1].Title != "Video 05" {
		t.Fatalf("expected page to end at Video 05, got %q", page[len(page)-1].Title)
	}

	empty, err := store.ListVideos(ListVideosParams{Page: 9})
	if err != nil {
		t.Fatalf("ListVideos out of range: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d entries", len(empty))
	}
}

func TestListVideosFiltersPublishedOwnerAndQuery(t *testing.T) {
	store := newTestStore(t)
	alice := createTestUser(t, store, "alice")
	bob := createTestUser(t, store, "bob")

	seedVideos(t, store, alice.ID, 3, true)
	seedVideos(t, store, bob.ID, 2, true)
	seedVideos(t, store, alice.ID, 4, false)

	all, err := store.ListVideos(ListVideosParams{})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 published videos, got %d", len(all))
	}

	mine, err := store.ListVideos(ListVideosParams{OwnerID: alice.ID})
	if err != nil {
		t.Fatalf("ListVideos owner filter: %v", err)
	}
	if len(mine) != 3 {
		t.Fatalf("expected 3 videos for owner, got %d", len(mine))
	}

	matched, err := store.ListVideos(ListVideosParams{Query: "VIDEO 01"})
	if err != nil {
		t.Fatalf("ListVideos query: %v", err)
	}
	// Both owners seeded a "Video 01".
	if len(matched) != 2 {
		t.Fatalf("expected 2 query matches, got %d", len(matched))
	}

	none, err := store.ListVideos(ListVideosParams{Query: "no such title"})
	if err != nil {
		t.Fatalf("ListVideos empty query result: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %d", len(none))
	}
}

func TestListVideosSortingAndWhitelist(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "alice")
	seedVideos(t, store, owner.ID, 5, true)

	asc, err := store.ListVideos(ListVideosParams{SortBy: "durationSeconds", SortType: "asc"})
	if err != nil {
		t.Fatalf("ListVideos asc: %v", err)
	}
	for i := 1; i < len(asc); i++ {
		if asc[i-1].DurationSeconds > asc[i].DurationSeconds {
			t.Fatalf("expected ascending duration order at %d: %v > %v", i, asc[i-1].DurationSeconds, asc[i].DurationSeconds)
		}
	}

	titles, err := store.ListVideos(ListVideosParams{SortBy: "title", SortType: "desc"})
	if err != nil {
		t.Fatalf("ListVideos title desc: %v", err)
	}
	if titles[0].Title != "Video 04" {
		t.Fatalf("expected Video 04 first, got %q", titles[0].Title)
	}

	// Unknown sort fields fall back to createdAt descending rather than erroring.
	fallback, err := store.ListVideos(ListVideosParams{SortBy: "passwordHash"})
	if err != nil {
		t.Fatalf("ListVideos fallback sort: %v", err)
	}
	if len(fallback) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(fallback))
	}
}

func TestListVideosJoinsOwnerProfile(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "alice")
	seedVideos(t, store, owner.ID, 1, true)

	page, err := store.ListVideos(ListVideosParams{})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected single listing, got %d", len(page))
	}
	got := page[0].Owner
	if got.ID != owner.ID || got.Username != owner.Username || got.FullName != owner.FullName || got.AvatarURL != owner.AvatarURL {
		t.Fatalf("unexpected owner projection: %+v", got)
	}
}

func TestListVideosCapsLimit(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "alice")
	seedVideos(t, store, owner.ID, 3, true)

	params := ListVideosParams{Limit: 100000}.normalize()
	if params.Limit != MaxPageLimit {
		t.Fatalf("expected limit capped at %d, got %d", MaxPageLimit, params.Limit)
	}

	defaults := ListVideosParams{Limit: -5, Page: 0}.normalize()
	if defaults.Limit != DefaultPageLimit || defaults.Page != 1 {
		t.Fatalf("expected defaults applied, got %+v", defaults)
	}
}

func TestTogglePublishFlipsVisibility(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "alice")
	ids := seedVideos(t, store, owner.ID, 1, false)

	hidden, err := store.ListVideos(ListVideosParams{})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(hidden) != 0 {
		t.Fatalf("expected unpublished video to be hidden, got %d", len(hidden))
	}

	toggled, err := store.TogglePublish(ids[0])
	if err != nil {
		t.Fatalf("TogglePublish: %v", err)
	}
	if !toggled.IsPublished {
		t.Fatal("expected video to be published after toggle")
	}

	visible, err := store.ListVideos(ListVideosParams{})
	if err != nil {
		t.Fatalf("ListVideos after toggle: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("expected published video to be listed, got %d", len(visible))
	}

	if _, err := store.TogglePublish("missing"); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("expected ErrVideoNotFound, got %v", err)
	}
}

func TestEscapeLikePatternNeutralizesWildcards(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"100%", `100\%`},
		{"under_score", `under\_score`},
		{`back\slash`, `back\\slash`},
		{`%_\`, `\%\_\\`},
	}
	for _, tc := range cases {
		if got := escapeLikePattern(tc.in); got != tc.want {
			t.Fatalf("escapeLikePattern(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIncrementViews(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "alice")
	ids := seedVideos(t, store, owner.ID, 1, true)

	for i := 0; i < 3; i++ {
		if err := store.IncrementViews(ids[0]); err != nil {
			t.Fatalf("IncrementViews: %v", err)
		}
	}
	video, ok := store.GetVideo(ids[0])
	if !ok {
		t.Fatal("expected video to exist")
	}
	if video.Views != 3 {
		t.Fatalf("expected 3 views, got %d", video.Views)
	}
}

func TestDeleteVideoReturnsRecordForCleanup(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "alice")
	ids := seedVideos(t, store, owner.ID, 1, true)

	deleted, err := store.DeleteVideo(ids[0])
	if err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if deleted.VideoFileURL == "" || deleted.ThumbnailURL == "" {
		t.Fatalf("expected asset URLs on deleted record: %+v", deleted)
	}
	if _, ok := store.GetVideo(ids[0]); ok {
		t.Fatal("expected video to be gone")
	}
	if _, err := store.DeleteVideo(ids[0]); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("expected ErrVideoNotFound, got %v", err)
	}
}

func TestUpdateVideoAppliesPartialChanges(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "alice")
	ids := seedVideos(t, store, owner.ID, 1, true)

	title := "Renamed"
	updated, err := store.UpdateVideo(ids[0], VideoUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateVideo: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Fatalf("expected renamed title, got %q", updated.Title)
	}
	if updated.Description == "" {
		t.Fatal("expected description preserved")
	}

	empty := "   "
	if _, err := store.UpdateVideo(ids[0], VideoUpdate{Title: &empty}); err == nil {
		t.Fatal("expected error for blank title")
	}
}
