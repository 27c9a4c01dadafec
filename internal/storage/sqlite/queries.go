package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/pkg/logger"
)

const queryColumns = `id, user_id, query_text, normalized_query, language, response, source,
	confidence, needs_review, latency_ms, created_at`

func (c *Client) InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error {
	query := `INSERT INTO query_history (` + queryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.ExecContext(ctx,
		query,
		record.ID,
		record.UserID,
		record.QueryText,
		record.NormalizedQuery,
		record.Language,
		record.Response,
		string(record.Source),
		record.Confidence,
		boolToInt(record.NeedsReview),
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	logger.Debug("Query recorded",
		zap.String("query_id", record.ID),
		zap.String("source", string(record.Source)),
		zap.Float64("confidence", record.Confidence),
	)

	return nil
}

func (c *Client) GetQueryRecord(ctx context.Context, id string) (*models.QueryRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+queryColumns+` FROM query_history WHERE id = ?`, id)

	record, err := scanQueryRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get query record: %w", err)
	}
	return record, nil
}

// FlagQueryForReview marks a prior query as needing human inspection.
func (c *Client) FlagQueryForReview(ctx context.Context, queryID string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE query_history SET needs_review = 1 WHERE id = ?`, queryID)
	if err != nil {
		return fmt.Errorf("failed to flag query for review: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to flag query for review: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	logger.Info("Query flagged for review", zap.String("query_id", queryID))
	return nil
}

func (c *Client) GetQueryLogs(ctx context.Context, from, to time.Time) ([]models.QueryRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+queryColumns+` FROM query_history WHERE created_at BETWEEN ? AND ? ORDER BY created_at DESC`,
		from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get query logs: %w", err)
	}
	defer rows.Close()

	return scanQueryRecords(rows)
}

func (c *Client) GetQueriesNeedingReview(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+queryColumns+` FROM query_history WHERE needs_review = 1 ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get flagged queries: %w", err)
	}
	defer rows.Close()

	return scanQueryRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueryRecord(row rowScanner) (*models.QueryRecord, error) {
	var r models.QueryRecord
	var userID, response sql.NullString
	var source string
	var needsReview int
	var createdAt int64

	err := row.Scan(
		&r.ID,
		&userID,
		&r.QueryText,
		&r.NormalizedQuery,
		&r.Language,
		&response,
		&source,
		&r.Confidence,
		&needsReview,
		&r.LatencyMS,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	r.UserID = userID.String
	r.Response = response.String
	r.Source = models.ResponseSource(source)
	r.NeedsReview = needsReview == 1
	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

func scanQueryRecords(rows *sql.Rows) ([]models.QueryRecord, error) {
	var records []models.QueryRecord
	for rows.Next() {
		r, err := scanQueryRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return records, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
