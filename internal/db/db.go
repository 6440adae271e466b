package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Pragmas go into the DSN so every pooled connection gets them.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"cache_size(-64000)",
}

// DB is a database handle that speaks one SQL text to both SQLite and
// PostgreSQL. Queries are written with ? placeholders.
type DB struct {
	*sql.DB
	dialect Dialect
	now     func() time.Time
	logger  *slog.Logger
	limits  Limits
}

type Option func(*DB)

// WithClock replaces the wall clock used for created/updated stamps.
func WithClock(now func() time.Time) Option {
	return func(d *DB) { d.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) { d.logger = logger }
}

func WithLimits(limits Limits) Option {
	return func(d *DB) { d.limits = limits }
}

// Open connects to a PostgreSQL server when dsn is a postgres:// URL and
// otherwise treats dsn as a SQLite file path.
func Open(dsn string, opts ...Option) (*DB, error) {
	d := &DB{
		now:    time.Now,
		logger: slog.Default(),
		limits: DefaultLimits(),
	}
	for _, opt := range opts {
		opt(d)
	}

	driver, source := "sqlite", sqliteDSN(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, source = "pgx", dsn
		d.dialect = Postgres
	}

	database, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}

	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(0)
	database.SetConnMaxIdleTime(30 * time.Minute)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	d.DB = database
	return d, nil
}

func sqliteDSN(path string) string {
	params := make([]string, 0, len(sqlitePragmas)+1)
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	// Writers take the lock at BEGIN instead of upgrading mid-transaction.
	params = append(params, "_txlock=immediate")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) Limits() Limits { return d.limits }

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, rebind(d.dialect, query), args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, rebind(d.dialect, query), args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.DB.QueryRowContext(ctx, rebind(d.dialect, query), args...)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := d.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, dialect: d.dialect}, nil
}

type Tx struct {
	*sql.Tx
	dialect Dialect
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.Tx.ExecContext(ctx, rebind(t.dialect, query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.Tx.QueryContext(ctx, rebind(t.dialect, query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.Tx.QueryRowContext(ctx, rebind(t.dialect, query), args...)
}

// querier is satisfied by both *DB and *Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL. Question
// marks inside single-quoted literals are left alone.
func rebind(d Dialect, query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// formatTime renders a fixed-width UTC stamp so text order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

// timeCol scans a stored stamp into a time.Time.
type timeCol struct{ dst *time.Time }

func (c timeCol) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*c.dst = v.UTC()
		return nil
	case string:
		t, err := parseTime(v)
		if err != nil {
			return err
		}
		*c.dst = t
		return nil
	case []byte:
		t, err := parseTime(string(v))
		if err != nil {
			return err
		}
		*c.dst = t
		return nil
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

// nullTimeCol scans a nullable stamp.
type nullTimeCol struct{ dst **time.Time }

func (c nullTimeCol) Scan(src any) error {
	if src == nil {
		*c.dst = nil
		return nil
	}
	var t time.Time
	if err := (timeCol{&t}).Scan(src); err != nil {
		return err
	}
	*c.dst = &t
	return nil
}
