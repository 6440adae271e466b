package db

// {{pk}} expands to the dialect's auto-increment primary key.
const initialSchemaV1 = `
CREATE TABLE IF NOT EXISTS users (
    id          {{pk}},
    username    TEXT NOT NULL UNIQUE,
    api_key     TEXT NOT NULL UNIQUE,
    role        TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'moderator', 'admin')),
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS categories (
    id            {{pk}},
    name          TEXT NOT NULL,
    slug          TEXT NOT NULL UNIQUE,
    description   TEXT NOT NULL DEFAULT '',
    display_order INTEGER NOT NULL DEFAULT 0,
    version       BIGINT NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS forums (
    id            {{pk}},
    category_id   BIGINT NOT NULL REFERENCES categories(id),
    name          TEXT NOT NULL,
    slug          TEXT NOT NULL UNIQUE,
    description   TEXT NOT NULL DEFAULT '',
    display_order INTEGER NOT NULL DEFAULT 0,
    topic_count   INTEGER NOT NULL DEFAULT 0,
    post_count    INTEGER NOT NULL DEFAULT 0,
    last_post_at  TEXT,
    version       BIGINT NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_forums_category ON forums(category_id, display_order);

CREATE TABLE IF NOT EXISTS topics (
    id                {{pk}},
    forum_id          BIGINT NOT NULL REFERENCES forums(id),
    user_id           BIGINT NOT NULL REFERENCES users(id),
    title             TEXT NOT NULL,
    slug              TEXT NOT NULL UNIQUE,
    content           TEXT NOT NULL,
    is_sticky         BOOLEAN NOT NULL DEFAULT FALSE,
    is_locked         BOOLEAN NOT NULL DEFAULT FALSE,
    view_count        INTEGER NOT NULL DEFAULT 0,
    reply_count       INTEGER NOT NULL DEFAULT 0,
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    last_post_at      TEXT NOT NULL,
    last_post_user_id BIGINT NOT NULL REFERENCES users(id),
    version           BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_topics_forum_activity ON topics(forum_id, last_post_at);
CREATE INDEX IF NOT EXISTS idx_topics_user ON topics(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_topics_activity ON topics(last_post_at);

CREATE TABLE IF NOT EXISTS posts (
    id           {{pk}},
    topic_id     BIGINT NOT NULL REFERENCES topics(id),
    user_id      BIGINT NOT NULL REFERENCES users(id),
    content      TEXT NOT NULL,
    is_solution  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_topic ON posts(topic_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);

CREATE TABLE IF NOT EXISTS topic_tags (
    topic_id  BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    tag       TEXT NOT NULL,
    PRIMARY KEY (topic_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_topic_tags_tag ON topic_tags(tag);
`
