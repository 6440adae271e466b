package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
)

type listing struct {
	key     string
	headers []string
	fields  []string
}

// listings maps a response key to the columns shown for it. The first
// field is what quiet mode prints.
var listings = []listing{
	{"users", []string{"ID", "USERNAME", "ROLE", "CREATED"}, []string{"id", "username", "role", "created"}},
	{"categories", []string{"ID", "SLUG", "NAME", "FORUMS"}, []string{"id", "slug", "name", "forum_count"}},
	{"forums", []string{"ID", "SLUG", "NAME", "TOPICS", "POSTS", "LAST_POST"}, []string{"id", "slug", "name", "topic_count", "post_count", "last_post_at"}},
	{"topics", []string{"ID", "SLUG", "AUTHOR", "REPLIES", "VIEWS", "LAST_POST"}, []string{"id", "slug", "author", "reply_count", "view_count", "last_post_at"}},
	{"posts", []string{"ID", "AUTHOR", "SOLUTION", "CREATED", "CONTENT"}, []string{"id", "author", "is_solution", "created", "content"}},
	{"drifts", []string{"ENTITY", "ID", "FIELD", "STORED", "COMPUTED"}, []string{"entity", "id", "field", "stored", "computed"}},
	{"fixed", []string{"ENTITY", "ID", "FIELD", "STORED", "COMPUTED"}, []string{"entity", "id", "field", "stored", "computed"}},
}

func DefaultFormat() string {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return "table"
	}
	return "json"
}

func Print(w io.Writer, payload map[string]any, format string, quiet bool) error {
	if quiet {
		format = "quiet"
	}
	format = strings.TrimSpace(strings.ToLower(format))
	if format == "" {
		format = DefaultFormat()
	}

	switch format {
	case "json":
		return printJSON(w, payload)
	case "table":
		return printTable(w, payload)
	case "plain":
		return printPlain(w, payload)
	case "quiet":
		return printQuiet(w, payload)
	default:
		return errors.New("invalid --format value")
	}
}

func findListing(payload map[string]any) (listing, []map[string]any, bool) {
	for _, l := range listings {
		if v, ok := payload[l.key]; ok {
			return l, toObjectSlice(v), true
		}
	}
	return listing{}, nil, false
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printTable(w io.Writer, payload map[string]any) error {
	l, rows, ok := findListing(payload)
	if !ok {
		return printJSON(w, payload)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(l.headers, "\t"))
	for _, row := range rows {
		cells := make([]string, len(l.fields))
		for i, f := range l.fields {
			cells[i] = oneLine(str(row[f]), 60)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func printPlain(w io.Writer, payload map[string]any) error {
	l, rows, ok := findListing(payload)
	if !ok {
		if hasKey(payload, "username") && hasKey(payload, "role") {
			_, err := fmt.Fprintf(w, "%s %s\n", str(payload["username"]), str(payload["role"]))
			return err
		}
		return printJSON(w, payload)
	}
	for _, row := range rows {
		cells := make([]string, 0, 3)
		for _, f := range l.fields[:min(3, len(l.fields))] {
			cells = append(cells, oneLine(str(row[f]), 80))
		}
		fmt.Fprintln(w, strings.Join(cells, " "))
	}
	return nil
}

func printQuiet(w io.Writer, payload map[string]any) error {
	l, rows, ok := findListing(payload)
	if !ok {
		if id, ok := payload["id"]; ok {
			_, err := fmt.Fprintln(w, str(id))
			return err
		}
		return printJSON(w, payload)
	}
	for _, row := range rows {
		fmt.Fprintln(w, str(row[l.fields[0]]))
	}
	return nil
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func toObjectSlice(v any) []map[string]any {
	in, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(in))
	for _, item := range in {
		if row, ok := item.(map[string]any); ok {
			out = append(out, row)
		}
	}
	return out
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-3]) + "..."
	}
	return s
}
