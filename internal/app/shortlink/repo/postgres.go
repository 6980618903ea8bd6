package repo

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"cutl.local/internal/app/shortlink"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrations 由 platform/migrate 在启动时执行。
//
//go:embed migrations/*.sql
var Migrations embed.FS

const (
	readTimeout  = time.Second
	writeTimeout = 3 * time.Second
	// 统计查询可能扫较多行
	statsTimeout = 3 * time.Second
)

// PostgresStore implements shortlink.Store on top of a pgx pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ shortlink.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Exists(ctx context.Context, code string) (bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var exists bool
	if err := s.db.QueryRow(dbctx, `SELECT EXISTS(SELECT 1 FROM links WHERE code=$1)`, code).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Insert 依赖主键约束判定冲突，不做 upsert。
func (s *PostgresStore) Insert(ctx context.Context, link shortlink.Link) error {
	dbctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := s.db.Exec(dbctx,
		`INSERT INTO links (code, original_url, created_at, expires_at) VALUES ($1,$2,$3,$4)`,
		link.Code, link.OriginalURL, link.CreatedAt, link.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", shortlink.ErrDuplicateCode, link.Code)
		}
		return err
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, code string) (shortlink.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	l := shortlink.Link{Code: code}
	err := s.db.QueryRow(dbctx, `SELECT original_url, created_at, expires_at FROM links WHERE code=$1`, code).
		Scan(&l.OriginalURL, &l.CreatedAt, &l.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortlink.Link{}, shortlink.ErrLinkNotFound
		}
		return shortlink.Link{}, err
	}
	return l, nil
}

func (s *PostgresStore) Delete(ctx context.Context, code string) (bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tag, err := s.db.Exec(dbctx, `DELETE FROM links WHERE code=$1`, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM links WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) InsertVisit(ctx context.Context, v shortlink.Visit) error {
	dbctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := s.db.Exec(dbctx, insertVisitSQL, v.Code, v.VisitedAt, v.IP, v.Country, v.City, v.UserAgent, v.Referer)
	return err
}

const insertVisitSQL = `INSERT INTO visits (code, visited_at, ip, country, city, user_agent, referer) VALUES ($1,$2,$3,$4,$5,$6,$7)`

// InsertVisits 批量写入，整批在一个事务里。
func (s *PostgresStore) InsertVisits(ctx context.Context, visits []shortlink.Visit) error {
	if len(visits) == 0 {
		return nil
	}
	dbctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.Begin(dbctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background()) //提交成功后 rollback 无效，可忽略

	batch := &pgx.Batch{}
	for _, v := range visits {
		batch.Queue(insertVisitSQL, v.Code, v.VisitedAt, v.IP, v.Country, v.City, v.UserAgent, v.Referer)
	}
	if err := tx.SendBatch(dbctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(dbctx)
}

func (s *PostgresStore) CountVisits(ctx context.Context, code string) (int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	var n int64
	err := s.db.QueryRow(dbctx, `SELECT COUNT(*) FROM visits WHERE code=$1`, code).Scan(&n)
	return n, err
}

func (s *PostgresStore) VisitsByCountry(ctx context.Context, code string) ([]shortlink.CountStat, error) {
	return s.countBy(ctx, `SELECT country, COUNT(*) AS c FROM visits WHERE code=$1 GROUP BY country ORDER BY c DESC, country`, code)
}

func (s *PostgresStore) VisitsByReferer(ctx context.Context, code string) ([]shortlink.CountStat, error) {
	return s.countBy(ctx, `SELECT referer, COUNT(*) AS c FROM visits WHERE code=$1 GROUP BY referer ORDER BY c DESC, referer`, code)
}

func (s *PostgresStore) countBy(ctx context.Context, query, code string) ([]shortlink.CountStat, error) {
	dbctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	rows, err := s.db.Query(dbctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shortlink.CountStat
	for rows.Next() {
		var item shortlink.CountStat
		if err := rows.Scan(&item.Value, &item.Count); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresStore) VisitsDaily(ctx context.Context, code string, since int64) ([]shortlink.DailyStat, error) {
	dbctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	rows, err := s.db.Query(dbctx, `
SELECT to_char(to_timestamp(visited_at) AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
FROM visits
WHERE code=$1 AND visited_at >= $2
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

func (s *PostgresStore) RecentVisits(ctx context.Context, code string, limit int) ([]shortlink.VisitRow, error) {
	dbctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	rows, err := s.db.Query(dbctx, `
SELECT visited_at, ip, country, city, user_agent, referer
FROM visits
WHERE code=$1
ORDER BY visited_at DESC, id DESC
LIMIT $2`, code, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []shortlink.VisitRow
	for rows.Next() {
		var v shortlink.VisitRow
		if err := rows.Scan(&v.VisitedAt, &v.IP, &v.Country, &v.City, &v.UserAgent, &v.Referer); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
