package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"tavern/internal/api"
	"tavern/internal/auth"
	"tavern/internal/db"
)

func TestCommandsRequireConnection(t *testing.T) {
	setCLIEnv(t)

	_, err := runCLI(t, "whoami")
	if err == nil {
		t.Fatalf("expected error when not connected")
	}
	if !strings.Contains(err.Error(), "not connected") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConnectCreateReplyAndRead(t *testing.T) {
	home := setCLIEnv(t)
	srvURL, adminKey := startBoardServer(t)

	out, err := runCLI(t, "connect", srvURL, "--api-key", adminKey)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !strings.Contains(out, "as admin (admin)") {
		t.Fatalf("unexpected connect output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(home, ".tavern", "config.json")); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if _, err := runCLI(t, "categories", "create", "--name", "General"); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := runCLI(t, "forums", "create", "--category", "general", "--name", "Lobby"); err != nil {
		t.Fatalf("create forum: %v", err)
	}

	out, err = runCLI(t, "--format", "json", "topics", "create", "--forum", "lobby",
		"--title", "Hello from the CLI", "--content", "first words typed in a terminal", "--tag", "cli")
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	var topic struct {
		ID   int64  `json:"id"`
		Slug string `json:"slug"`
	}
	if err := json.Unmarshal([]byte(out), &topic); err != nil {
		t.Fatalf("decode topic: %v (%q)", err, out)
	}
	if topic.Slug != "hello-from-the-cli" {
		t.Fatalf("slug = %q", topic.Slug)
	}

	if _, err := runCLI(t, "topics", "reply", topic.Slug, "--content", "and a reply right after"); err != nil {
		t.Fatalf("reply: %v", err)
	}

	_, err = runCLI(t, "topics", "reply", topic.Slug, "--content", "hi")
	if err == nil || !strings.Contains(err.Error(), "http 422") {
		t.Fatalf("expected validation error, got %v", err)
	}

	out, err = runCLI(t, "--quiet", "topics", "--forum", "lobby", "--tag", "cli")
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if strings.TrimSpace(out) != strconv.FormatInt(topic.ID, 10) {
		t.Fatalf("unexpected quiet listing: %q", out)
	}

	out, err = runCLI(t, "topics", "read", topic.Slug)
	if err != nil {
		t.Fatalf("read topic: %v", err)
	}
	for _, want := range []string{"# Hello from the CLI", "first words typed in a terminal", "and a reply right after"} {
		if !strings.Contains(out, want) {
			t.Fatalf("topic markdown missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "admin", "verify")
	if err != nil {
		t.Fatalf("admin verify: %v", err)
	}
	if out != "consistent\n" {
		t.Fatalf("unexpected verify output: %q", out)
	}

	if _, err := runCLI(t, "disconnect"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := runCLI(t, "whoami"); err == nil {
		t.Fatalf("expected whoami to fail after disconnect")
	}
}

func TestReadContentSources(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetIn(strings.NewReader("from stdin"))

	got, err := readContent(cmd, "", "-")
	if err != nil || got != "from stdin" {
		t.Fatalf("stdin content = %q, %v", got, err)
	}
	if _, err := readContent(cmd, "a", "b"); err == nil {
		t.Fatalf("expected error for both --content and --content-file")
	}
	if _, err := readContent(cmd, "", ""); err == nil {
		t.Fatalf("expected error for missing content")
	}
}

func startBoardServer(t *testing.T) (string, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	database, err := db.Open(filepath.Join(t.TempDir(), "cli.db"), db.WithLogger(logger))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if err := db.ApplyMigrations(context.Background(), database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := db.CreateUser(context.Background(), database, "admin", "admin", auth.HashAPIKey(apiKey)); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	srv := httptest.NewServer(api.NewRouter(database, "test", logger))
	t.Cleanup(srv.Close)
	return srv.URL, apiKey
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func setCLIEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	cwd := t.TempDir()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(cwd); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(prev)
	})
	return home
}
