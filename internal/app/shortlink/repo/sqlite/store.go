// Package sqlite stores links and visits in SQLite, either a local file
// (modernc.org/sqlite, no cgo) or a remote libSQL/Turso database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cutl.local/internal/app/shortlink"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	_ "modernc.org/sqlite"                               // Local SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS links (
	code         TEXT PRIMARY KEY,
	original_url TEXT    NOT NULL,
	created_at   INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_links_expires_at ON links(expires_at);

CREATE TABLE IF NOT EXISTS visits (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	code       TEXT    NOT NULL,
	visited_at INTEGER NOT NULL,
	ip         TEXT,
	country    TEXT,
	city       TEXT,
	user_agent TEXT,
	referer    TEXT
);
CREATE INDEX IF NOT EXISTS idx_visits_code_visited_at ON visits(code, visited_at DESC);
`

type Store struct {
	db *sql.DB
}

var _ shortlink.Store = (*Store)(nil)

// Open accepts "sqlite:<path>", "file:<path>", ":memory:" or "libsql://..." and
// creates the schema if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driverName, source := "sqlite", dsn
	switch {
	case strings.HasPrefix(dsn, "libsql://"), strings.HasPrefix(dsn, "wss://"):
		driverName = "libsql"
	case strings.HasPrefix(dsn, "sqlite://"):
		source = strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "sqlite:"):
		source = strings.TrimPrefix(dsn, "sqlite:")
	}

	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite" {
		// 本地 SQLite 只允许一个写者；:memory: 每个连接还是独立的库
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Exists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE code = ?)`, code).Scan(&exists)
	return exists, err
}

func (s *Store) Insert(ctx context.Context, link shortlink.Link) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO links (code, original_url, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		link.Code, link.OriginalURL, link.CreatedAt, link.ExpiresAt)
	if err != nil {
		// 两个驱动都没有导出可判断的错误码，只能看错误文本
		if strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "PRIMARY KEY") {
			return fmt.Errorf("%w: %s", shortlink.ErrDuplicateCode, link.Code)
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, code string) (shortlink.Link, error) {
	l := shortlink.Link{Code: code}
	err := s.db.QueryRowContext(ctx, `SELECT original_url, created_at, expires_at FROM links WHERE code = ?`, code).
		Scan(&l.OriginalURL, &l.CreatedAt, &l.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return shortlink.Link{}, shortlink.ErrLinkNotFound
	}
	if err != nil {
		return shortlink.Link{}, err
	}
	return l, nil
}

func (s *Store) Delete(ctx context.Context, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE code = ?`, code)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertVisitSQL = `INSERT INTO visits (code, visited_at, ip, country, city, user_agent, referer) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (s *Store) InsertVisit(ctx context.Context, v shortlink.Visit) error {
	_, err := s.db.ExecContext(ctx, insertVisitSQL, v.Code, v.VisitedAt, v.IP, v.Country, v.City, v.UserAgent, v.Referer)
	return err
}

// InsertVisits writes a batch in one transaction.
func (s *Store) InsertVisits(ctx context.Context, visits []shortlink.Visit) error {
	if len(visits) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertVisitSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, v := range visits {
		if _, err := stmt.ExecContext(ctx, v.Code, v.VisitedAt, v.IP, v.Country, v.City, v.UserAgent, v.Referer); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) CountVisits(ctx context.Context, code string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visits WHERE code = ?`, code).Scan(&n)
	return n, err
}

func (s *Store) VisitsByCountry(ctx context.Context, code string) ([]shortlink.CountStat, error) {
	return s.countBy(ctx, `SELECT country, COUNT(*) AS c FROM visits WHERE code = ? GROUP BY country ORDER BY c DESC, country`, code)
}

func (s *Store) VisitsByReferer(ctx context.Context, code string) ([]shortlink.CountStat, error) {
	return s.countBy(ctx, `SELECT referer, COUNT(*) AS c FROM visits WHERE code = ? GROUP BY referer ORDER BY c DESC, referer`, code)
}

func (s *Store) countBy(ctx context.Context, query, code string) ([]shortlink.CountStat, error) {
	rows, err := s.db.QueryContext(ctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shortlink.CountStat
	for rows.Next() {
		var value sql.NullString
		var item shortlink.CountStat
		if err := rows.Scan(&value, &item.Count); err != nil {
			return nil, err
		}
		item.Value = nullable(value)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) VisitsDaily(ctx context.Context, code string, since int64) ([]shortlink.DailyStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', visited_at, 'unixepoch') AS day, COUNT(*)
		FROM visits
		WHERE code = ? AND visited_at >= ?
		GROUP BY day
		ORDER BY day DESC`, code, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shortlink.DailyStat
	for rows.Next() {
		var item shortlink.DailyStat
		if err := rows.Scan(&item.Date, &item.Count); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) RecentVisits(ctx context.Context, code string, limit int) ([]shortlink.VisitRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT visited_at, ip, country, city, user_agent, referer
		FROM visits
		WHERE code = ?
		ORDER BY visited_at DESC, id DESC
		LIMIT ?`, code, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shortlink.VisitRow
	for rows.Next() {
		var v shortlink.VisitRow
		var ip, country, city, ua, ref sql.NullString
		if err := rows.Scan(&v.VisitedAt, &ip, &country, &city, &ua, &ref); err != nil {
			return nil, err
		}
		v.IP, v.Country, v.City, v.UserAgent, v.Referer = nullable(ip), nullable(country), nullable(city), nullable(ua), nullable(ref)
		out = append(out, v)
	}
	return out, rows.Err()
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
