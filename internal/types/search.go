package types

// Confidence is the retrieval-quality tier that gates answer generation.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

// SearchResult is one retrieval hit after in-memory scoring.
type SearchResult struct {
	ChatID     int64          `json:"chat_id"`
	MessageID  int64          `json:"message_id"`
	ChunkIndex int32          `json:"chunk_index"`
	ChunkText  string         `json:"chunk_text"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Distance is the raw cosine distance from the index scan;
	// Similarity is 1-distance, later replaced by reranker scores.
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`

	IsNewsDump          bool `json:"is_news_dump"`
	IsQuestionEmbedding bool `json:"is_question_embedding"`
	IsContextWindow     bool `json:"is_context_window"`
}

// SearchResponse carries results plus the signals the confidence gate needs.
type SearchResponse struct {
	Results          []SearchResult `json:"results"`
	Confidence       Confidence     `json:"confidence"`
	ConfidenceReason string         `json:"confidence_reason"`
	BestScore        float64        `json:"best_score"`
	ScoreGap         float64        `json:"score_gap"`
	HasFullTextMatch bool           `json:"has_full_text_match"`
}
