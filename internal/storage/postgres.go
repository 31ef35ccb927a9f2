package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps a PostgreSQL connection pool for the learning store.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// LogExecution inserts a learning record.
func (db *DB) LogExecution(ctx context.Context, rec *ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Language == "" {
		rec.Language = "python"
	}

	query := `
		INSERT INTO executions (id, code_hash, language, success, execution_time,
			error_category, code_snippet, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.pool.Exec(ctx, query,
		rec.ID, rec.CodeHash, rec.Language, rec.Success, rec.ExecutionTime,
		rec.ErrorCategory, truncateForDB(rec.CodeSnippet, 500), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting execution record: %w", err)
	}
	return nil
}

// LanguageStats aggregates outcomes grouped by language.
func (db *DB) LanguageStats(ctx context.Context) ([]LanguageStats, error) {
	query := `
		SELECT language,
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(AVG(execution_time), 0)
		FROM executions
		GROUP BY language
		ORDER BY language`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying language stats: %w", err)
	}
	defer rows.Close()

	var results []LanguageStats
	for rows.Next() {
		var s LanguageStats
		if err := rows.Scan(&s.Language, &s.Total, &s.Successes, &s.Failures, &s.AvgTime); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		if s.Total > 0 {
			s.SuccessRate = float64(s.Successes) / float64(s.Total)
		}
		results = append(results, s)
	}

	return results, rows.Err()
}

// FailureCategories tallies failed executions by error category.
func (db *DB) FailureCategories(ctx context.Context) ([]CategoryCount, error) {
	query := `
		SELECT error_category, COUNT(*)
		FROM executions
		WHERE NOT success AND error_category <> ''
		GROUP BY error_category
		ORDER BY COUNT(*) DESC`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying failure categories: %w", err)
	}
	defer rows.Close()

	var results []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning category row: %w", err)
		}
		results = append(results, c)
	}

	return results, rows.Err()
}

func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
