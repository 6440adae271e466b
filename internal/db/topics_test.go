package db

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tavern/internal/models"
)

func TestTopicSlugsAreUnique(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	database := openTestDB(t, "topic-slugs.db", WithClock(clock.Now))
	alice := createUserForTest(t, database, "alice", "member")
	forum := createForumForTest(t, database, alice, "Slugs")

	first := createTopicForTest(t, database, alice, forum.ID, "Hello World")
	second := createTopicForTest(t, database, alice, forum.ID, "Hello World")
	assert.Equal(t, "hello-world", first.Slug)
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.True(t, strings.HasPrefix(second.Slug, "hello-world-"), second.Slug)

	got, err := GetTopicBySlug(ctx, database, second.Slug)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = GetTopicBySlug(ctx, database, "no-such-topic")
	assert.True(t, IsNotFound(err))
}

func TestUpdateTopicReslugsWithoutCollidingWithItself(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	database := openTestDB(t, "topic-update.db", WithClock(clock.Now))
	alice := createUserForTest(t, database, "alice", "member")
	forum := createForumForTest(t, database, alice, "Updates")
	topic := createTopicForTest(t, database, alice, forum.ID, "Hello World")
	other := createTopicForTest(t, database, alice, forum.ID, "Something else")

	updated, err := UpdateTopic(ctx, database, alice, topic.ID, UpdateTopicParams{
		Title:   "Hello, World",
		Content: "the opening post, revised",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", updated.Slug)
	assert.Equal(t, "Hello, World", updated.Title)
	assert.Equal(t, "the opening post, revised", updated.Content)

	posts, _, err := ListTopicPosts(ctx, database, topic.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "the opening post, revised", posts[0].Content)
	history, err := ListPostHistory(ctx, database, posts[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "opening post for Hello World", history[0].Content)

	renamed, err := UpdateTopic(ctx, database, alice, other.ID, UpdateTopicParams{
		Title:   "Hello World",
		Content: "opening post for Something else",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(renamed.Slug, "hello-world-"), renamed.Slug)

	_, err = UpdateTopic(ctx, database, alice, 9999, UpdateTopicParams{Title: "Missing topic", Content: "nothing to see here"})
	assert.True(t, IsNotFound(err))
	_, err = UpdateTopic(ctx, database, alice, topic.ID, UpdateTopicParams{Title: "Hi", Content: "nothing to see here"})
	assert.True(t, IsValidation(err))
	requireConsistent(t, database)
}

func TestCreateTopicValidation(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t, "topic-validation.db")
	alice := createUserForTest(t, database, "alice", "member")
	forum := createForumForTest(t, database, alice, "Validation")

	tests := []struct {
		name   string
		params CreateTopicParams
		field  string
	}{
		{"short title", CreateTopicParams{ForumID: forum.ID, Title: "Hey", Content: "long enough content"}, "title"},
		{"blank title", CreateTopicParams{ForumID: forum.ID, Title: "   ", Content: "long enough content"}, "title"},
		{"short content", CreateTopicParams{ForumID: forum.ID, Title: "Valid title", Content: "tiny"}, "content"},
		{"missing forum", CreateTopicParams{Title: "Valid title", Content: "long enough content"}, "forum_id"},
		{"long tag", CreateTopicParams{ForumID: forum.ID, Title: "Valid title", Content: "long enough content", Tags: []string{strings.Repeat("x", 40)}}, "tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateTopic(ctx, database, alice, tt.params)
			require.Error(t, err)
			require.True(t, IsValidation(err))
			assert.Equal(t, tt.field, FieldErrors(err)[0].Field)
		})
	}

	_, err := CreateTopic(ctx, database, alice, CreateTopicParams{ForumID: 9999, Title: "Valid title", Content: "long enough content"})
	assert.True(t, IsNotFound(err))

	f := mustForum(t, database, forum.ID)
	assert.Equal(t, 0, f.TopicCount)
	assert.Equal(t, 0, f.PostCount)
}

func TestTopicFlagsAndViews(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t, "topic-flags.db")
	alice := createUserForTest(t, database, "alice", "member")
	mod := createUserForTest(t, database, "mod", "moderator")
	forum := createForumForTest(t, database, alice, "Flags")
	topic := createTopicForTest(t, database, alice, forum.ID, "Flag me")

	views, err := IncrementView(ctx, database, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, views)
	views, err = IncrementView(ctx, database, topic.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, views)

	sticky, err := ToggleSticky(ctx, database, mod, topic.ID)
	require.NoError(t, err)
	assert.True(t, sticky)
	locked, err := ToggleLock(ctx, database, mod, topic.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	got := mustTopic(t, database, topic.ID)
	assert.True(t, got.IsSticky)
	assert.True(t, got.IsLocked)
	assert.Equal(t, 2, got.ViewCount)
	assert.True(t, got.Updated.Equal(topic.Updated))

	_, err = IncrementView(ctx, database, 9999)
	assert.True(t, IsNotFound(err))
	_, err = ToggleSticky(ctx, database, mod, 9999)
	assert.True(t, IsNotFound(err))
	_, err = ToggleLock(ctx, database, mod, 9999)
	assert.True(t, IsNotFound(err))
	requireConsistent(t, database)
}

func TestListTopicsOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	database := openTestDB(t, "list-topics.db", WithClock(clock.Now))
	alice := createUserForTest(t, database, "alice", "member")
	bob := createUserForTest(t, database, "bob", "member")
	forum := createForumForTest(t, database, alice, "Listing")
	elsewhere := createForumForTest(t, database, alice, "Elsewhere")

	pinned, err := CreateTopic(ctx, database, alice, CreateTopicParams{
		ForumID: forum.ID,
		Title:   "Read this first",
		Content: "forum rules and guidance",
		Sticky:  true,
	})
	require.NoError(t, err)
	older := createTopicForTest(t, database, bob, forum.ID, "Older question")
	newer, err := CreateTopic(ctx, database, alice, CreateTopicParams{
		ForumID: forum.ID,
		Title:   "Newer question",
		Content: "something about go modules",
		Tags:    []string{"Go", "modules"},
	})
	require.NoError(t, err)
	outside := createTopicForTest(t, database, bob, elsewhere.ID, "Outside topic")

	ids := func(topics []models.Topic) []int64 {
		out := make([]int64, 0, len(topics))
		for _, tp := range topics {
			out = append(out, tp.ID)
		}
		return out
	}

	topics, total, err := ListTopics(ctx, database, ListTopicsParams{ForumID: forum.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []int64{pinned.ID, newer.ID, older.ID}, ids(topics))

	_, err = CreateReply(ctx, database, alice, older.ID, "bumping the older question")
	require.NoError(t, err)
	topics, _, err = ListTopics(ctx, database, ListTopicsParams{ForumID: forum.ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{pinned.ID, older.ID, newer.ID}, ids(topics))

	topics, _, err = ListTopics(ctx, database, ListTopicsParams{ForumID: forum.ID, Sort: "created"})
	require.NoError(t, err)
	assert.Equal(t, []int64{pinned.ID, newer.ID, older.ID}, ids(topics))

	topics, total, err = ListTopics(ctx, database, ListTopicsParams{Tag: "GO"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, topics, 1)
	assert.Equal(t, newer.ID, topics[0].ID)
	assert.Equal(t, []string{"go", "modules"}, topics[0].Tags)

	recent, err := RecentTopics(ctx, database, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{older.ID, outside.ID}, ids(recent))

	byBob, total, err := ListTopicsByUser(ctx, database, bob.UserID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []int64{outside.ID, older.ID}, ids(byBob))
}

func TestUpdateTopicTags(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t, "topic-tags.db")
	alice := createUserForTest(t, database, "alice", "member")
	forum := createForumForTest(t, database, alice, "Tagging")
	topic, err := CreateTopic(ctx, database, alice, CreateTopicParams{
		ForumID: forum.ID,
		Title:   "Tagged topic",
		Content: "a topic with some tags",
		Tags:    []string{"sql", "Go"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sql"}, topic.Tags)

	tags, err := UpdateTopicTags(ctx, database, alice, topic.ID, []string{"Testing", "go", " testing "}, []string{"SQL"})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "testing"}, tags)

	many := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		many = append(many, "tag"+strings.Repeat("x", i))
	}
	_, err = UpdateTopicTags(ctx, database, alice, topic.ID, many, nil)
	assert.True(t, IsValidation(err))

	_, err = UpdateTopicTags(ctx, database, alice, 9999, []string{"go"}, nil)
	assert.True(t, IsNotFound(err))
}

func TestTopicSlugsAvoidRouteWords(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t, "topic-route-words.db")
	alice := createUserForTest(t, database, "alice", "member")
	forum := createForumForTest(t, database, alice, "Words")

	for _, title := range []string{"Recent", "Posts", "Sticky", "Lock!"} {
		topic := createTopicForTest(t, database, alice, forum.ID, title)
		base := strings.ToLower(strings.TrimSuffix(title, "!"))
		assert.True(t, strings.HasPrefix(topic.Slug, base+"-"), "slug %q", topic.Slug)
		got, err := GetTopicBySlug(ctx, database, topic.Slug)
		require.NoError(t, err)
		assert.Equal(t, topic.ID, got.ID)
	}

	plain := createTopicForTest(t, database, alice, forum.ID, "Recent posts")
	assert.Equal(t, "recent-posts", plain.Slug)

	renamed, err := UpdateTopic(ctx, database, alice, plain.ID, UpdateTopicParams{
		Title:   "Tags!",
		Content: "opening post for Recent posts",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(renamed.Slug, "tags-"), "slug %q", renamed.Slug)
}
