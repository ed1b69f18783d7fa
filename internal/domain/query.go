package domain

import (
	"crypto/sha1"
	"encoding/hex"
)

// PassageID fingerprints passage content as 8 hex characters.
func PassageID(content string) string {
	h := sha1.Sum([]byte(content))
	return hex.EncodeToString(h[:4])
}

// RetrievedDocument is one ranked passage returned to the caller.
type RetrievedDocument struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	ID      string  `json:"passage_id"`
}

// QueryResult is the outcome of a single question. Failures are reported in
// the result itself, Err keeps the error kind for errors.Is checks.
type QueryResult struct {
	Success      bool                `json:"success"`
	Question     string              `json:"question"`
	Answer       *string             `json:"answer"`
	Thought      *string             `json:"thought"`
	Documents    []RetrievedDocument `json:"retrieved_documents"`
	RetrievalMS  float64             `json:"retrieval_time_ms"`
	GenerationMS *float64            `json:"llm_time_ms"`
	TotalMS      float64             `json:"total_time_ms"`
	Degraded     bool                `json:"degraded,omitempty"`
	Error        string              `json:"error,omitempty"`
	Err          error               `json:"-"`
}

// BatchResult holds one QueryResult per question in input order.
type BatchResult struct {
	Success        bool          `json:"success"`
	Results        []QueryResult `json:"results"`
	TotalMS        float64       `json:"total_time_ms"`
	ElapsedMS      float64       `json:"elapsed_time_ms"`
	QuestionsCount int           `json:"questions_count"`
}
