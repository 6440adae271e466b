// Package slug turns titles and names into URL-safe identifiers and
// disambiguates them against an entity table.
package slug

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fallback is used when nothing of the input survives normalization.
const Fallback = "n-a"

const (
	maxBaseLen  = 200
	maxAttempts = 100
)

// ErrExhausted is returned when no free slug was found within the attempt bound.
var ErrExhausted = errors.New("slug: candidates exhausted")

// ExistsFunc reports whether a slug is already taken in the entity table
// being checked. Implementations exclude the row being renamed, if any.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Letters that do not decompose under NFKD.
var transliterations = strings.NewReplacer(
	"ß", "ss", "ẞ", "ss",
	"æ", "ae", "Æ", "ae",
	"ø", "o", "Ø", "o",
	"œ", "oe", "Œ", "oe",
	"đ", "d", "Đ", "d",
	"ł", "l", "Ł", "l",
	"þ", "th", "Þ", "th",
	"ð", "d", "Ð", "d",
	"ı", "i",
)

// Make returns the normalized base slug for text. It never returns an
// empty string.
func Make(text string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		transliterations.Replace(text),
	)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	dash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxBaseLen {
		out = strings.TrimRight(out[:maxBaseLen], "-")
	}
	if out == "" {
		return Fallback
	}
	return out
}

// Resolve returns a slug for text that exists does not report as taken.
// The base slug is tried first, then base-<unix seconds of now>, then
// base-<unix>-2, base-<unix>-3 and so on.
func Resolve(ctx context.Context, text string, exists ExistsFunc, now time.Time) (string, error) {
	base := Make(text)
	for i := 0; i < maxAttempts; i++ {
		candidate := Candidate(base, now, i)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}

// Candidate returns the attempt-th candidate for base.
func Candidate(base string, now time.Time, attempt int) string {
	switch {
	case attempt <= 0:
		return base
	case attempt == 1:
		return fmt.Sprintf("%s-%d", base, now.Unix())
	default:
		return fmt.Sprintf("%s-%d-%d", base, now.Unix(), attempt)
	}
}
