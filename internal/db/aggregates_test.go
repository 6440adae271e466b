package db

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForumLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	database := openTestDB(t, "scenario.db", WithClock(clock.Now))
	alice := createUserForTest(t, database, "alice", "member")
	bob := createUserForTest(t, database, "bob", "member")

	forum := createForumForTest(t, database, alice, "Scenario Forum")
	assert.Equal(t, 0, forum.TopicCount)
	assert.Equal(t, 0, forum.PostCount)
	assert.Nil(t, forum.LastPostAt)

	_, err := CreateTopic(ctx, database, alice, CreateTopicParams{ForumID: forum.ID, Title: "Topic A", Content: "hi"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "content", FieldErrors(err)[0].Field)

	topic, err := CreateTopic(ctx, database, alice, CreateTopicParams{ForumID: forum.ID, Title: "Topic A", Content: "hi, this is topic A"})
	require.NoError(t, err)
	assert.Equal(t, 0, topic.ReplyCount)
	f := mustForum(t, database, forum.ID)
	assert.Equal(t, 1, f.TopicCount)
	assert.Equal(t, 1, f.PostCount)

	older, err := CreateReply(ctx, database, bob, topic.ID, "first reply to topic A")
	require.NoError(t, err)
	newer, err := CreateReply(ctx, database, alice, topic.ID, "second reply to topic A")
	require.NoError(t, err)
	assert.Equal(t, 2, mustTopic(t, database, topic.ID).ReplyCount)
	assert.Equal(t, 3, mustForum(t, database, forum.ID).PostCount)

	require.NoError(t, DeleteReply(ctx, database, alice, newer.ID))
	a := mustTopic(t, database, topic.ID)
	assert.Equal(t, 1, a.ReplyCount)
	assert.True(t, a.LastPostAt.Equal(older.Created), "last_post_at %v want %v", a.LastPostAt, older.Created)
	assert.Equal(t, bob.UserID, a.LastPostUserID)
	f = mustForum(t, database, forum.ID)
	assert.Equal(t, 2, f.PostCount)
	require.NotNil(t, f.LastPostAt)
	assert.True(t, f.LastPostAt.Equal(older.Created))

	require.NoError(t, DeleteTopic(ctx, database, alice, topic.ID))
	f = mustForum(t, database, forum.ID)
	assert.Equal(t, 0, f.TopicCount)
	assert.Equal(t, 0, f.PostCount)
	assert.Nil(t, f.LastPostAt)
	requireConsistent(t, database)
}

func TestLastPostRecomputedFromRemainingPosts(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	database := openTestDB(t, "last-post.db", WithClock(clock.Now))
	alice := createUserForTest(t, database, "alice", "member")
	bob := createUserForTest(t, database, "bob", "member")
	carol := createUserForTest(t, database, "carol", "member")
	forum := createForumForTest(t, database, alice, "Last Post")

	topic := createTopicForTest(t, database, alice, forum.ID, "Timeline topic")
	t2, err := CreateReply(ctx, database, bob, topic.ID, "reply at t2 from bob")
	require.NoError(t, err)
	t3, err := CreateReply(ctx, database, carol, topic.ID, "reply at t3 from carol")
	require.NoError(t, err)
	require.True(t, t2.Created.Before(t3.Created))

	got := mustTopic(t, database, topic.ID)
	assert.True(t, got.LastPostAt.Equal(t3.Created))
	assert.Equal(t, carol.UserID, got.LastPostUserID)

	require.NoError(t, DeleteReply(ctx, database, carol, t3.ID))
	got = mustTopic(t, database, topic.ID)
	assert.True(t, got.LastPostAt.Equal(t2.Created))
	assert.Equal(t, bob.UserID, got.LastPostUserID)

	require.NoError(t, DeleteReply(ctx, database, bob, t2.ID))
	got = mustTopic(t, database, topic.ID)
	assert.True(t, got.LastPostAt.Equal(got.Created))
	assert.Equal(t, alice.UserID, got.LastPostUserID)
	assert.Equal(t, 0, got.ReplyCount)
	requireConsistent(t, database)
}

func TestForumLastPostFollowsNewestTopicAfterTopicDelete(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	database := openTestDB(t, "forum-last-post.db", WithClock(clock.Now))
	alice := createUserForTest(t, database, "alice", "member")
	forum := createForumForTest(t, database, alice, "Forum Last Post")

	first := createTopicForTest(t, database, alice, forum.ID, "Older topic")
	second := createTopicForTest(t, database, alice, forum.ID, "Newer topic")
	f := mustForum(t, database, forum.ID)
	require.NotNil(t, f.LastPostAt)
	assert.True(t, f.LastPostAt.Equal(second.LastPostAt))

	require.NoError(t, DeleteTopic(ctx, database, alice, second.ID))
	f = mustForum(t, database, forum.ID)
	require.NotNil(t, f.LastPostAt)
	assert.True(t, f.LastPostAt.Equal(first.LastPostAt))
	assert.Equal(t, 1, f.TopicCount)
	assert.Equal(t, 1, f.PostCount)
}

func TestDeleteTopicCascadesPostsTagsAndHistory(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t, "cascade.db")
	alice := createUserForTest(t, database, "alice", "member")
	forum := createForumForTest(t, database, alice, "Cascade")

	topic, err := CreateTopic(ctx, database, alice, CreateTopicParams{
		ForumID: forum.ID,
		Title:   "Cascade topic",
		Content: "content that will be removed",
		Tags:    []string{"Go", "sql"},
	})
	require.NoError(t, err)
	reply, err := CreateReply(ctx, database, alice, topic.ID, "a reply that goes away too")
	require.NoError(t, err)
	_, err = UpdatePostContent(ctx, database, alice, reply.ID, "an edited reply that goes away")
	require.NoError(t, err)

	require.NoError(t, DeleteTopic(ctx, database, alice, topic.ID))

	for table, query := range map[string]string{
		"posts":        `SELECT COUNT(1) FROM posts WHERE topic_id = ?`,
		"topic_tags":   `SELECT COUNT(1) FROM topic_tags WHERE topic_id = ?`,
		"topics":       `SELECT COUNT(1) FROM topics WHERE id = ?`,
		"post_history": `SELECT COUNT(1) FROM post_history WHERE post_id IN (SELECT id FROM posts WHERE topic_id = ?)`,
	} {
		var n int
		require.NoError(t, database.QueryRowContext(ctx, query, topic.ID).Scan(&n))
		assert.Zero(t, n, table)
	}
	var history int
	require.NoError(t, database.QueryRowContext(ctx, `SELECT COUNT(1) FROM post_history`).Scan(&history))
	assert.Zero(t, history)

	err = DeleteTopic(ctx, database, alice, topic.ID)
	assert.True(t, IsNotFound(err))
	requireConsistent(t, database)
}

func TestRandomizedMutationsKeepAggregatesExact(t *testing.T) {
	ctx := context.Background()
	clock := newStepClock()
	database := openTestDB(t, "randomized.db", WithClock(clock.Now))
	alice := createUserForTest(t, database, "alice", "member")
	bob := createUserForTest(t, database, "bob", "moderator")
	forums := []int64{
		createForumForTest(t, database, alice, "Random One").ID,
		createForumForTest(t, database, alice, "Random Two").ID,
	}

	rng := rand.New(rand.NewSource(42))
	var topics []int64
	replies := map[int64][]int64{}

	for i := 0; i < 80; i++ {
		actor := alice
		if rng.Intn(2) == 0 {
			actor = bob
		}
		switch op := rng.Intn(5); {
		case op == 0 || len(topics) == 0:
			topic := createTopicForTest(t, database, actor, forums[rng.Intn(len(forums))], "Random topic title")
			topics = append(topics, topic.ID)
		case op <= 2:
			topicID := topics[rng.Intn(len(topics))]
			post, err := CreateReply(ctx, database, actor, topicID, "random reply content")
			require.NoError(t, err)
			replies[topicID] = append(replies[topicID], post.ID)
		case op == 3:
			topicID := topics[rng.Intn(len(topics))]
			ids := replies[topicID]
			if len(ids) == 0 {
				continue
			}
			j := rng.Intn(len(ids))
			require.NoError(t, DeleteReply(ctx, database, actor, ids[j]))
			replies[topicID] = append(ids[:j], ids[j+1:]...)
		default:
			j := rng.Intn(len(topics))
			require.NoError(t, DeleteTopic(ctx, database, actor, topics[j]))
			delete(replies, topics[j])
			topics = append(topics[:j], topics[j+1:]...)
		}
		requireConsistent(t, database)
	}

	for _, topicID := range topics {
		assert.Equal(t, len(replies[topicID]), mustTopic(t, database, topicID).ReplyCount)
	}
}

func TestConcurrentRepliesAndTopicsKeepCountsExact(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t, "concurrent.db")
	alice := createUserForTest(t, database, "alice", "member")
	forum := createForumForTest(t, database, alice, "Busy Forum")
	topic := createTopicForTest(t, database, alice, forum.ID, "Busy topic")

	const workers = 8
	const perWorker = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker*2)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := CreateReply(ctx, database, alice, topic.ID, "concurrent reply body"); err != nil {
					errs <- err
				}
				if _, err := CreateTopic(ctx, database, alice, CreateTopicParams{
					ForumID: forum.ID,
					Title:   "Concurrent topic",
					Content: "concurrent topic body",
				}); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := mustTopic(t, database, topic.ID)
	assert.Equal(t, workers*perWorker, got.ReplyCount)
	f := mustForum(t, database, forum.ID)
	assert.Equal(t, 1+workers*perWorker, f.TopicCount)
	assert.Equal(t, 1+workers*perWorker+workers*perWorker, f.PostCount)
	requireConsistent(t, database)
}

func TestReconcileRepairsDrift(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t, "reconcile.db")
	alice := createUserForTest(t, database, "alice", "member")
	forum := createForumForTest(t, database, alice, "Drifting")
	topic := createTopicForTest(t, database, alice, forum.ID, "Drifting topic")
	_, err := CreateReply(ctx, database, alice, topic.ID, "reply to drift")
	require.NoError(t, err)

	_, err = database.ExecContext(ctx, `UPDATE topics SET reply_count = 7 WHERE id = ?`, topic.ID)
	require.NoError(t, err)
	_, err = database.ExecContext(ctx, `UPDATE forums SET post_count = 0, topic_count = 5 WHERE id = ?`, forum.ID)
	require.NoError(t, err)

	drifts, err := VerifyAggregates(ctx, database)
	require.NoError(t, err)
	fields := map[string]bool{}
	for _, d := range drifts {
		fields[d.Entity+"."+d.Field] = true
	}
	assert.True(t, fields["topic.reply_count"])
	assert.True(t, fields["forum.post_count"])
	assert.True(t, fields["forum.topic_count"])

	fixed, err := ReconcileAggregates(ctx, database)
	require.NoError(t, err)
	assert.Len(t, fixed, len(drifts))
	requireConsistent(t, database)
	assert.Equal(t, 1, mustTopic(t, database, topic.ID).ReplyCount)
	f := mustForum(t, database, forum.ID)
	assert.Equal(t, 1, f.TopicCount)
	assert.Equal(t, 2, f.PostCount)
}
