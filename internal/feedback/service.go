package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/internal/storage/sqlite"
	"github.com/kbassist/backend/pkg/logger"
)

const (
	MinRating = 1
	MaxRating = 5

	// Ratings below this flag the originating query for human review.
	ReviewThreshold = 3

	DefaultRecentLimit = 10
)

var (
	ErrNotFound      = errors.New("feedback not found")
	ErrInvalidRating = fmt.Errorf("rating must be between %d and %d", MinRating, MaxRating)
)

type Store interface {
	StoreFeedback(ctx context.Context, feedback *models.Feedback) error
	GetFeedback(ctx context.Context, id int64) (*models.Feedback, error)
	GetRecentFeedback(ctx context.Context, limit int) ([]models.Feedback, error)
	UpdateFeedback(ctx context.Context, id int64, rating int, comment string) error
	DeleteFeedback(ctx context.Context, id int64) error
	GetFeedbackStats(ctx context.Context) (*models.FeedbackStats, error)
	FlagQueryForReview(ctx context.Context, queryID string) error
}

type Tracker interface {
	TrackFeedback(queryID string, rating int)
}

type Service struct {
	store   Store
	tracker Tracker
}

func NewService(store Store, tracker Tracker) *Service {
	return &Service{store: store, tracker: tracker}
}

// Submit persists a rating for a prior query. Ratings below ReviewThreshold
// also flag the query for review; a failed flag is logged and does not undo
// the stored feedback.
func (s *Service) Submit(ctx context.Context, queryID string, rating int, comment string) (*models.Feedback, error) {
	if !validRating(rating) {
		return nil, ErrInvalidRating
	}

	record := &models.Feedback{
		QueryID:   queryID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now(),
	}
	if err := s.store.StoreFeedback(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to submit feedback: %w", err)
	}

	s.tracker.TrackFeedback(queryID, rating)

	if rating < ReviewThreshold {
		s.flagForReview(ctx, queryID)
	}

	return record, nil
}

func (s *Service) flagForReview(ctx context.Context, queryID string) {
	if err := s.store.FlagQueryForReview(ctx, queryID); err != nil {
		logger.Error("Failed to flag query for review",
			zap.String("query_id", queryID),
			zap.Error(err),
		)
		return
	}
	metrics.ReviewFlags.Inc()
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Feedback, error) {
	f, err := s.store.GetFeedback(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]models.Feedback, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	items, err := s.store.GetRecentFeedback(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	return items, nil
}

// Update changes an existing record. It never flags the query.
func (s *Service) Update(ctx context.Context, id int64, rating int, comment string) error {
	if !validRating(rating) {
		return ErrInvalidRating
	}
	return mapErr(s.store.UpdateFeedback(ctx, id, rating, comment))
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return mapErr(s.store.DeleteFeedback(ctx, id))
}

// Stats returns the mean rating, the total, and the positive (>=4) and
// negative (<3) counts.
func (s *Service) Stats(ctx context.Context) (*models.FeedbackStats, error) {
	stats, err := s.store.GetFeedbackStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback stats: %w", err)
	}
	return stats, nil
}

func validRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sqlite.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
