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

const feedbackColumns = `id, query_id, rating, comment, created_at, updated_at`

func (c *Client) StoreFeedback(ctx context.Context, feedback *models.Feedback) error {
	now := time.Now()
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = now
	}
	feedback.UpdatedAt = feedback.CreatedAt

	res, err := c.db.ExecContext(ctx,
		`INSERT INTO feedback (query_id, rating, comment, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		feedback.QueryID,
		feedback.Rating,
		nullString(feedback.Comment),
		feedback.CreatedAt.Unix(),
		feedback.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read feedback id: %w", err)
	}
	feedback.ID = id

	logger.Info("Feedback stored",
		zap.Int64("feedback_id", id),
		zap.String("query_id", feedback.QueryID),
		zap.Int("rating", feedback.Rating),
	)

	return nil
}

func (c *Client) GetFeedback(ctx context.Context, id int64) (*models.Feedback, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`, id)

	f, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return f, nil
}

func (c *Client) GetRecentFeedback(ctx context.Context, limit int) ([]models.Feedback, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+feedbackColumns+` FROM feedback ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent feedback: %w", err)
	}
	defer rows.Close()

	var items []models.Feedback
	for rows.Next() {
		f, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		items = append(items, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return items, nil
}

func (c *Client) UpdateFeedback(ctx context.Context, id int64, rating int, comment string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE feedback SET rating = ?, comment = ?, updated_at = ? WHERE id = ?`,
		rating, nullString(comment), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	return expectAffected(res)
}

func (c *Client) DeleteFeedback(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	return expectAffected(res)
}

func (c *Client) GetFeedbackStats(ctx context.Context) (*models.FeedbackStats, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(AVG(rating), 0),
			COUNT(*),
			COUNT(CASE WHEN rating >= 4 THEN 1 END),
			COUNT(CASE WHEN rating < 3 THEN 1 END)
		FROM feedback
	`)

	var stats models.FeedbackStats
	err := row.Scan(&stats.AverageRating, &stats.TotalFeedback, &stats.PositiveFeedback, &stats.NegativeFeedback)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback stats: %w", err)
	}
	return &stats, nil
}

func scanFeedback(row rowScanner) (*models.Feedback, error) {
	var f models.Feedback
	var comment sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(&f.ID, &f.QueryID, &f.Rating, &comment, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	f.Comment = comment.String
	f.CreatedAt = time.Unix(createdAt, 0)
	f.UpdatedAt = time.Unix(updatedAt, 0)
	return &f, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
