package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// SQL is the database/sql-backed store. One documents table, two dialects:
// postgres (lib/pq) and sqlite (modernc.org/sqlite). Queries are written
// with ? placeholders and rebound to $n for postgres.
type SQL struct {
	db       *sql.DB
	postgres bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	owner      TEXT NOT NULL,
	ts         INTEGER,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (kind, id)
);
CREATE INDEX IF NOT EXISTS documents_kind_owner ON documents (kind, owner);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        BIGSERIAL PRIMARY KEY,
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	owner      TEXT NOT NULL,
	ts         BIGINT,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (kind, id)
);
CREATE INDEX IF NOT EXISTS documents_kind_owner ON documents (kind, owner);
`

// OpenSQL opens and migrates the store. driver is "postgres" (dsn is a
// lib/pq conninfo string) or "sqlite" (dsn is a file path).
func OpenSQL(driver, dsn string) (*SQL, error) {
	s := &SQL{postgres: driver == "postgres"}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s store: %w", driver, err)
	}
	s.db = db

	schema := sqliteSchema
	if s.postgres {
		schema = postgresSchema
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	glog.Infof("[store] %s store ready", driver)
	return s, nil
}

// q rewrites ? placeholders to $n for postgres.
func (s *SQL) q(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func tsArg(ts *time.Time) any {
	if ts == nil {
		return nil
	}
	return ts.UnixNano()
}

func scanDoc(scan func(...any) error) (*Document, error) {
	var (
		doc                  Document
		ts                   sql.NullInt64
		createdAt, updatedAt string
	)
	if err := scan(&doc.Kind, &doc.ID, &doc.Owner, &ts, &doc.Data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if ts.Valid {
		t := time.Unix(0, ts.Int64).UTC()
		doc.TS = &t
	}
	var err error
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &doc, nil
}

const docColumns = "kind, id, owner, ts, data, created_at, updated_at"

func (s *SQL) Get(ctx context.Context, kind, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		s.q("SELECT "+docColumns+" FROM documents WHERE kind = ? AND id = ?"), kind, id)
	doc, err := scanDoc(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *SQL) List(ctx context.Context, kind, owner string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT "+docColumns+" FROM documents WHERE kind = ? AND owner = ? ORDER BY seq"), kind, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows)
}

func (s *SQL) ListRange(ctx context.Context, kind, owner string, start, end time.Time) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT "+docColumns+" FROM documents WHERE kind = ? AND owner = ? AND ts IS NOT NULL AND ts >= ? AND ts <= ? ORDER BY ts"),
		kind, owner, start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows)
}

func collectDocs(rows *sql.Rows) ([]*Document, error) {
	var out []*Document
	for rows.Next() {
		doc, err := scanDoc(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQL) Insert(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		s.q("INSERT INTO documents ("+docColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)"),
		doc.Kind, doc.ID, doc.Owner, tsArg(doc.TS), doc.Data,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		// The unique (kind, id) constraint is the arbiter under concurrent
		// inserts. Both dialects word the violation differently, so confirm
		// by looking for the winning row instead of parsing driver errors.
		var exists int
		row := s.db.QueryRowContext(ctx,
			s.q("SELECT COUNT(1) FROM documents WHERE kind = ? AND id = ?"), doc.Kind, doc.ID)
		if scanErr := row.Scan(&exists); scanErr == nil && exists > 0 {
			return ErrExists
		}
		return fmt.Errorf("insert %s/%s: %w", doc.Kind, doc.ID, err)
	}
	return nil
}

func (s *SQL) Update(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE documents SET ts = ?, data = ?, updated_at = ? WHERE kind = ? AND id = ?"),
		tsArg(doc.TS), doc.Data, now.Format(time.RFC3339Nano), doc.Kind, doc.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	doc.UpdatedAt = now
	return nil
}

func (s *SQL) Delete(ctx context.Context, kind, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.q("DELETE FROM documents WHERE kind = ? AND id = ?"), kind, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) Close() error { return s.db.Close() }
