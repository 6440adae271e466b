package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tavern/internal/slug"
)

// Kind classifies engine failures so callers can map them without
// inspecting messages.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindFirstPostProtected Kind = "first_post_protected"
	KindNonEmptyContainer  Kind = "non_empty_container"
	KindTopicLocked        Kind = "topic_locked"
	KindStorageFailure     Kind = "storage_failure"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    Kind
	Entity  string
	ID      int64
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "; %s %s", f.Field, f.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of an engine error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool         { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool           { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool           { return KindOf(err) == KindConflict }
func IsFirstPostProtected(err error) bool { return KindOf(err) == KindFirstPostProtected }
func IsNonEmptyContainer(err error) bool  { return KindOf(err) == KindNonEmptyContainer }
func IsTopicLocked(err error) bool        { return KindOf(err) == KindTopicLocked }
func IsStorageFailure(err error) bool     { return KindOf(err) == KindStorageFailure }

// FieldErrors returns the field-level details of a validation error.
func FieldErrors(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

func notFound(entity string, id int64) *Error {
	return &Error{
		Kind:    KindNotFound,
		Entity:  entity,
		ID:      id,
		Message: fmt.Sprintf("%s %d not found", entity, id),
	}
}

func notFoundSlug(entity, s string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Entity:  entity,
		Message: fmt.Sprintf("%s %q not found", entity, s),
	}
}

func conflict(entity, message string, cause error) *Error {
	return &Error{Kind: KindConflict, Entity: entity, Message: message, Err: cause}
}

func firstPostProtected(postID int64) *Error {
	return &Error{
		Kind:    KindFirstPostProtected,
		Entity:  "post",
		ID:      postID,
		Message: "the first post of a topic can only change through its topic",
	}
}

func nonEmptyContainer(entity string, id int64, children int, child string) *Error {
	return &Error{
		Kind:    KindNonEmptyContainer,
		Entity:  entity,
		ID:      id,
		Message: fmt.Sprintf("%s %d still has %d %s", entity, id, children, child),
	}
}

func topicLocked(topicID int64) *Error {
	return &Error{
		Kind:    KindTopicLocked,
		Entity:  "topic",
		ID:      topicID,
		Message: fmt.Sprintf("topic %d is locked", topicID),
	}
}

// classify turns anything that is not already an engine error into a
// storage failure and logs it with the operation name.
func classify(ctx context.Context, database *DB, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if isUniqueConstraint(err) {
		return conflict("", "unique constraint violated", err)
	}
	if errors.Is(err, slug.ErrExhausted) {
		return conflict("", "no free slug", err)
	}
	database.logger.ErrorContext(ctx, "storage failure", "op", op, "dialect", database.dialect.String(), "err", err)
	return &Error{Kind: KindStorageFailure, Message: op + " failed", Err: err}
}

func isUniqueConstraint(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "foreign key")
}

func isSlugCollision(err error) bool {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindConflict && e.Err != nil {
		return strings.Contains(strings.ToLower(e.Err.Error()), "slug")
	}
	return false
}
