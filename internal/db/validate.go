package db

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"tavern/internal/models"
)

// Limits bounds user-supplied text. Lengths are counted in characters
// after trimming surrounding whitespace.
type Limits struct {
	TitleMin       int `yaml:"title_min"`
	TitleMax       int `yaml:"title_max"`
	ContentMin     int `yaml:"content_min"`
	ContentMax     int `yaml:"content_max"`
	NameMin        int `yaml:"name_min"`
	NameMax        int `yaml:"name_max"`
	DescriptionMax int `yaml:"description_max"`
	MaxTags        int `yaml:"max_tags"`
	TagMax         int `yaml:"tag_max"`
}

func DefaultLimits() Limits {
	return Limits{
		TitleMin:       5,
		TitleMax:       255,
		ContentMin:     10,
		ContentMax:     50000,
		NameMin:        3,
		NameMax:        100,
		DescriptionMax: 1000,
		MaxTags:        10,
		TagMax:         32,
	}
}

type validator struct {
	fields []FieldError
}

func (v *validator) add(field, format string, args ...any) {
	v.fields = append(v.fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) actor(a models.Actor) {
	if a.UserID <= 0 {
		v.add("author_id", "must identify a user")
	}
}

func (v *validator) id(field string, id int64) {
	if id <= 0 {
		v.add(field, "must be a positive id")
	}
}

// length checks min and max; max <= 0 means unbounded.
func (v *validator) length(field, value string, min, max int) {
	n := utf8.RuneCountInString(value)
	switch {
	case n == 0 && min > 0:
		v.add(field, "is required")
	case n < min:
		v.add(field, "must be at least %d characters", min)
	case max > 0 && n > max:
		v.add(field, "must be at most %d characters", max)
	}
}

func (v *validator) tags(tags []string, limits Limits) {
	if limits.MaxTags > 0 && len(tags) > limits.MaxTags {
		v.add("tags", "must have at most %d entries", limits.MaxTags)
	}
	for _, t := range tags {
		if limits.TagMax > 0 && utf8.RuneCountInString(t) > limits.TagMax {
			v.add("tags", "tag %q is longer than %d characters", t, limits.TagMax)
		}
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(v.fields))
	for _, f := range v.fields {
		names = append(names, f.Field)
	}
	return &Error{
		Kind:    KindValidation,
		Message: "invalid " + strings.Join(names, ", "),
		Fields:  v.fields,
	}
}

// normalizeTags lowercases, trims and dedupes tags, keeping first-seen order.
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
