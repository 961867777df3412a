package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"newsharvest/internal/article"
)

// Article is a persisted, deduplicated record. Unlike a draft it carries
// database identity and timestamps.
type Article struct {
	ID             int64
	SourceURL      string
	Title          string
	Content        string
	MediaURL       *string
	Category       string
	Keywords       []string
	RelevanceScore float64
	CreatedAt      *string
	UpdatedAt      *string
}

// Upsert persists a draft keyed by its source URL. When a record with that
// URL already exists the call is a no-op returning created=false; callers
// treat this as "already ingested", not an error.
func (db *DB) Upsert(d *article.Draft) (int64, bool, error) {
	var keywords *string
	if len(d.Keywords) > 0 {
		data, err := json.Marshal(d.Keywords)
		if err != nil {
			return 0, false, fmt.Errorf("encoding keywords: %w", err)
		}
		s := string(data)
		keywords = &s
	}

	var mediaURL *string
	if d.MediaURL != "" {
		mediaURL = &d.MediaURL
	}

	result, err := db.conn.Exec(
		`INSERT INTO articles (source_url, title, content, media_url, category, keywords, relevance_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_url) DO NOTHING`,
		d.SourceURL, d.Title, d.Content, mediaURL, d.Category, keywords, d.RelevanceScore,
	)
	if err != nil {
		return 0, false, fmt.Errorf("inserting article: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		var id int64
		err := db.conn.QueryRow("SELECT id FROM articles WHERE source_url = ?", d.SourceURL).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("looking up existing article: %w", err)
		}
		return id, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Exists reports whether a record with the given source URL is already
// ingested.
func (db *DB) Exists(sourceURL string) (bool, error) {
	var one int
	err := db.conn.QueryRow("SELECT 1 FROM articles WHERE source_url = ?", sourceURL).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountByCategory returns the number of persisted articles per category.
// Budgets are recomputed from these counts at the start of every run.
func (db *DB) CountByCategory() (map[string]int, error) {
	rows, err := db.conn.Query("SELECT category, COUNT(*) FROM articles GROUP BY category")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

// GetByCategory returns up to limit articles for a category, newest first.
func (db *DB) GetByCategory(category string, limit int) ([]Article, error) {
	rows, err := db.conn.Query(
		`SELECT id, source_url, title, content, media_url, category, keywords, relevance_score, created_at, updated_at
		FROM articles WHERE category = ? ORDER BY created_at DESC LIMIT ?`,
		category, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// Stats contains aggregate store statistics.
type Stats struct {
	TotalArticles int
	PerCategory   map[string]int
}

// GetStats returns aggregate counts for the status command.
func (db *DB) GetStats() (*Stats, error) {
	perCategory, err := db.CountByCategory()
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range perCategory {
		total += n
	}
	return &Stats{TotalArticles: total, PerCategory: perCategory}, nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		var a Article
		var keywords *string
		if err := rows.Scan(&a.ID, &a.SourceURL, &a.Title, &a.Content, &a.MediaURL,
			&a.Category, &keywords, &a.RelevanceScore, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if keywords != nil && *keywords != "" {
			if err := json.Unmarshal([]byte(*keywords), &a.Keywords); err != nil {
				a.Keywords = nil
			}
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
