package models

import "time"

// ResponseSource tags where a delivered answer came from.
type ResponseSource string

const (
	SourceCache         ResponseSource = "cache"
	SourceAI            ResponseSource = "ai"
	SourceLowConfidence ResponseSource = "low-confidence"
)

type QueryRecord struct {
	ID              string
	UserID          string
	QueryText       string
	NormalizedQuery string
	Language        string
	Response        string
	Source          ResponseSource
	Confidence      float64
	NeedsReview     bool
	LatencyMS       int
	CreatedAt       time.Time
}

type Feedback struct {
	ID        int64
	QueryID   string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type FeedbackStats struct {
	AverageRating    float64 `json:"averageRating"`
	TotalFeedback    int     `json:"totalFeedback"`
	PositiveFeedback int     `json:"positiveFeedback"`
	NegativeFeedback int     `json:"negativeFeedback"`
}

type KnowledgeDocument struct {
	ID          string
	Title       string
	Content     string
	ContentHash string
	Language    string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DocumentChunk struct {
	ID         string
	DocID      string
	ChunkIndex int
	Text       string
	CreatedAt  time.Time
}
