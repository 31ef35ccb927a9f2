package storage

import "time"

// ExecutionRecord is a stored learning record for a completed execution.
// Only the hash and a bounded snippet of the code are kept.
type ExecutionRecord struct {
	ID            string    `json:"id" db:"id"`
	CodeHash      string    `json:"code_hash" db:"code_hash"`
	Language      string    `json:"language" db:"language"`
	Success       bool      `json:"success" db:"success"`
	ExecutionTime float64   `json:"execution_time" db:"execution_time"`
	ErrorCategory string    `json:"error_category,omitempty" db:"error_category"`
	CodeSnippet   string    `json:"code_snippet" db:"code_snippet"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// LanguageStats aggregates outcomes per language for the learning endpoint.
type LanguageStats struct {
	Language    string  `json:"language"`
	Total       int64   `json:"total"`
	Successes   int64   `json:"successes"`
	Failures    int64   `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
	AvgTime     float64 `json:"avg_execution_time"`
}

// CategoryCount is a failure tally for one error category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}
