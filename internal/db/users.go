package db

import (
	"context"
	"fmt"
	"os"
	"strings"

	"tavern/internal/auth"
	"tavern/internal/models"
)

func CreateUser(ctx context.Context, database *DB, username, role, apiKeyHash string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if role == "" {
		role = models.RoleMember
	}
	v := &validator{}
	v.length("username", username, 2, 64)
	if !auth.ValidRole(role) {
		v.add("role", "must be member, moderator or admin")
	}
	if apiKeyHash == "" {
		v.add("api_key", "is required")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	created := database.now()
	u := &models.User{Username: username, Role: role, Created: created.UTC()}
	err := database.QueryRowContext(ctx, `
INSERT INTO users (username, api_key, role, created_at)
VALUES (?, ?, ?, ?)
RETURNING id`, username, apiKeyHash, role, formatTime(created)).Scan(&u.ID)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, conflict("user", fmt.Sprintf("username %q is taken", username), err)
		}
		return nil, classify(ctx, database, "create user", err)
	}
	return u, nil
}

func ListUsers(ctx context.Context, database *DB) ([]models.User, error) {
	rows, err := database.QueryContext(ctx, `
SELECT id, username, role, created_at
FROM users
ORDER BY id ASC`)
	if err != nil {
		return nil, classify(ctx, database, "list users", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, timeCol{&u.Created}); err != nil {
			return nil, classify(ctx, database, "list users", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, database, "list users", err)
	}
	return users, nil
}

func GetUser(ctx context.Context, database *DB, id int64) (*models.User, error) {
	return getUserWhere(ctx, database, "id = ?", id)
}

func GetUserByUsername(ctx context.Context, database *DB, username string) (*models.User, error) {
	return getUserWhere(ctx, database, "username = ?", strings.TrimSpace(username))
}

func GetUserByAPIKeyHash(ctx context.Context, database *DB, apiKeyHash string) (*models.User, error) {
	return getUserWhere(ctx, database, "api_key = ?", apiKeyHash)
}

// GetUserStats counts the topics and posts a user has authored.
func GetUserStats(ctx context.Context, database *DB, id int64) (*models.UserStats, error) {
	if _, err := GetUser(ctx, database, id); err != nil {
		return nil, err
	}
	var stats models.UserStats
	err := database.QueryRowContext(ctx, `
SELECT (SELECT COUNT(1) FROM topics WHERE user_id = ?),
       (SELECT COUNT(1) FROM posts WHERE user_id = ?)`, id, id).Scan(&stats.TopicCount, &stats.PostCount)
	if err != nil {
		return nil, classify(ctx, database, "user stats", err)
	}
	return &stats, nil
}

func getUserWhere(ctx context.Context, database *DB, where string, arg any) (*models.User, error) {
	var u models.User
	err := database.QueryRowContext(ctx, `
SELECT id, username, role, created_at
FROM users
WHERE `+where, arg).Scan(&u.ID, &u.Username, &u.Role, timeCol{&u.Created})
	if noRows(err) {
		return nil, &Error{Kind: KindNotFound, Entity: "user", Message: "user not found"}
	}
	if err != nil {
		return nil, classify(ctx, database, "get user", err)
	}
	return &u, nil
}

func DeleteUser(ctx context.Context, database *DB, id int64) error {
	res, err := database.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return conflict("user", fmt.Sprintf("user %d still owns topics or posts", id), err)
		}
		return classify(ctx, database, "delete user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(ctx, database, "delete user", err)
	}
	if n == 0 {
		return notFound("user", id)
	}
	return nil
}

func CountAdmins(ctx context.Context, database *DB) (int, error) {
	var count int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE role = ?`, models.RoleAdmin).Scan(&count); err != nil {
		return 0, classify(ctx, database, "count admins", err)
	}
	return count, nil
}

// EnsureBootstrapAdmin creates an "admin" user when no admin exists and
// writes its API key to keyOutPath. It returns the created username, or ""
// when an admin was already present.
func EnsureBootstrapAdmin(ctx context.Context, database *DB, keyOutPath string) (string, error) {
	count, err := CountAdmins(ctx, database)
	if err != nil {
		return "", err
	}
	if count > 0 {
		return "", nil
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return "", err
	}
	user, err := CreateUser(ctx, database, "admin", models.RoleAdmin, auth.HashAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("create bootstrap admin: %w", err)
	}

	if err := os.WriteFile(keyOutPath, []byte(apiKey+"\n"), 0o600); err != nil {
		if delErr := DeleteUser(ctx, database, user.ID); delErr != nil && !IsNotFound(delErr) {
			return "", fmt.Errorf("write key failed (%v), rollback failed (%v)", err, delErr)
		}
		return "", fmt.Errorf("write admin key file: %w", err)
	}

	return user.Username, nil
}
