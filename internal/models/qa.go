package models

import "time"

// QuestionRequest is the body of POST /api/question.
type QuestionRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
}

// Answer is the response to a question.
type Answer struct {
	Content    string    `json:"content"`
	DocumentID string    `json:"document_id"`
	Timestamp  time.Time `json:"timestamp"`
}
