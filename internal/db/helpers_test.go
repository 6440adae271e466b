package db

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tavern/internal/auth"
	"tavern/internal/models"
)

func openTestDB(t *testing.T, name string, opts ...Option) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	database, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := ApplyMigrations(context.Background(), database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

// stepClock advances by step on every reading so stamps are strictly
// increasing.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), step: time.Second}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func createUserForTest(t *testing.T, database *DB, name, role string) models.Actor {
	t.Helper()
	key, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	u, err := CreateUser(context.Background(), database, name, role, auth.HashAPIKey(key))
	require.NoError(t, err)
	return u.Actor()
}

func createForumForTest(t *testing.T, database *DB, actor models.Actor, name string) *models.Forum {
	t.Helper()
	ctx := context.Background()
	category, err := CreateCategory(ctx, database, actor, CategoryParams{Name: name + " Category"})
	require.NoError(t, err)
	forum, err := CreateForum(ctx, database, actor, ForumParams{CategoryID: category.ID, Name: name})
	require.NoError(t, err)
	return forum
}

func createTopicForTest(t *testing.T, database *DB, actor models.Actor, forumID int64, title string) *models.Topic {
	t.Helper()
	topic, err := CreateTopic(context.Background(), database, actor, CreateTopicParams{
		ForumID: forumID,
		Title:   title,
		Content: "opening post for " + title,
	})
	require.NoError(t, err)
	return topic
}

func mustForum(t *testing.T, database *DB, id int64) *models.Forum {
	t.Helper()
	f, err := GetForum(context.Background(), database, id)
	require.NoError(t, err)
	return f
}

func mustTopic(t *testing.T, database *DB, id int64) *models.Topic {
	t.Helper()
	topic, err := GetTopic(context.Background(), database, id)
	require.NoError(t, err)
	return topic
}

func requireConsistent(t *testing.T, database *DB) {
	t.Helper()
	drifts, err := VerifyAggregates(context.Background(), database)
	require.NoError(t, err)
	require.Empty(t, drifts)
}
