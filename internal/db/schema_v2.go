package db

const postHistorySchemaV2 = `
CREATE TABLE IF NOT EXISTS post_history (
    post_id    BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
    version    INTEGER NOT NULL,
    content    TEXT NOT NULL,
    edited_by  BIGINT NOT NULL REFERENCES users(id),
    edited_at  TEXT NOT NULL,
    PRIMARY KEY (post_id, version)
);
`
