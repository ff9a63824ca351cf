package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode"

	"novelhub/internal/domain"
	"novelhub/internal/repository"
)

const createNovelsTable = `
CREATE TABLE IF NOT EXISTS novels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	body TEXT NOT NULL,
	genre TEXT NOT NULL DEFAULT '',
	cover_ref TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_novels_author ON novels(author);
CREATE INDEX IF NOT EXISTS idx_novels_genre ON novels(genre);
CREATE VIRTUAL TABLE IF NOT EXISTS novels_fts USING fts5(
	title,
	body,
	content='novels',
	content_rowid='id'
);
CREATE TRIGGER IF NOT EXISTS novels_fts_insert AFTER INSERT ON novels BEGIN
	INSERT INTO novels_fts(rowid, title, body) VALUES (new.id, new.title, new.body);
END;
CREATE TRIGGER IF NOT EXISTS novels_fts_delete AFTER DELETE ON novels BEGIN
	INSERT INTO novels_fts(novels_fts, rowid, title, body) VALUES ('delete', old.id, old.title, old.body);
END;
`

const novelColumns = `n.id, n.title, n.author, n.body, n.genre, n.cover_ref, n.created_at`

type NovelRepository struct {
	db *sql.DB
}

func NewNovelRepository(db *sql.DB) repository.NovelRepository {
	return &NovelRepository{db: db}
}

func (r *NovelRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createNovelsTable); err != nil {
		return fmt.Errorf("create novels table: %w", err)
	}
	return nil
}

func (r *NovelRepository) Create(ctx context.Context, novel *domain.Novel) (int64, error) {
	novel.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
INSERT INTO novels (title, author, body, genre, cover_ref, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		novel.Title,
		novel.Author,
		novel.Body,
		string(novel.Genre),
		novel.CoverRef,
		novel.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert novel: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("novel last insert id: %w", err)
	}
	novel.ID = id
	return id, nil
}

func (r *NovelRepository) Get(ctx context.Context, id int64) (*domain.Novel, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+novelColumns+`
FROM novels n
WHERE n.id = ?`,
		id,
	)
	return scanNovel(row)
}

// List enumerates novels matching filter. The sequence holds the database
// connection while it is ranged over, so callers must not issue other queries
// from inside the loop.
func (r *NovelRepository) List(ctx context.Context, filter repository.NovelFilter) iter.Seq2[domain.Novel, error] {
	var (
		where []string
		args  []any
	)
	if filter.Author != "" {
		where = append(where, "n.author = ?")
		args = append(args, filter.Author)
	}
	if filter.Genre != domain.GenreUnset {
		where = append(where, "n.genre = ?")
		args = append(args, string(filter.Genre))
	}

	query := `SELECT ` + novelColumns + ` FROM novels n`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + orderClause(filter.Order)
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return r.query(ctx, "list novels", query, args...)
}

// Search runs a full-text match over title and body. Any term matches; an
// empty query yields nothing without touching the database.
func (r *NovelRepository) Search(ctx context.Context, text string) iter.Seq2[domain.Novel, error] {
	match := ftsQuery(text)
	if match == "" {
		return func(func(domain.Novel, error) bool) {}
	}

	return r.query(ctx, "search novels", `
SELECT `+novelColumns+`
FROM novels_fts f
JOIN novels n ON n.id = f.rowid
WHERE novels_fts MATCH ?
ORDER BY f.rank`, match)
}

func (r *NovelRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM novels WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete novel: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("novel delete rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("novel %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *NovelRepository) query(ctx context.Context, op, query string, args ...any) iter.Seq2[domain.Novel, error] {
	return func(yield func(domain.Novel, error) bool) {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(domain.Novel{}, fmt.Errorf("%s: %w", op, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			novel, err := scanNovel(rows)
			if err != nil {
				yield(domain.Novel{}, err)
				return
			}
			if !yield(*novel, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.Novel{}, fmt.Errorf("%s: %w", op, err))
		}
	}
}

func orderClause(order repository.NovelOrder) string {
	switch order {
	case repository.OrderNewest:
		return "n.id DESC"
	case repository.OrderTitleDesc:
		return "n.title DESC, n.id ASC"
	case repository.OrderAuthorDesc:
		return "n.author DESC, n.id ASC"
	default:
		return "n.id ASC"
	}
}

// ftsQuery quotes every whitespace separated term so user input can never be
// parsed as FTS5 syntax, then ORs the terms together.
func ftsQuery(text string) string {
	fields := strings.Fields(text)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if !strings.ContainsFunc(f, isWordRune) {
			continue
		}
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func scanNovel(row rowScanner) (*domain.Novel, error) {
	var (
		novel     domain.Novel
		genre     string
		createdAt time.Time
	)
	if err := row.Scan(
		&novel.ID,
		&novel.Title,
		&novel.Author,
		&novel.Body,
		&genre,
		&novel.CoverRef,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("novel: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan novel: %w", err)
	}
	novel.Genre = domain.Genre(genre)
	novel.CreatedAt = createdAt.Local()
	return &novel, nil
}
