package models

import "time"

// Mark stores a student's score for one subject in one term. There is at most
// one row per (student, subject, term); re-entry overwrites the score.
type Mark struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Subject   string    `db:"subject" json:"subject"`
	Term      string    `db:"term" json:"term"`
	Score     float64   `db:"score" json:"score"`
	MaxScore  float64   `db:"max_score" json:"max_score"`
	EnteredBy string    `db:"entered_by" json:"entered_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MarkFilter constrains mark queries.
type MarkFilter struct {
	StudentID string
	Subject   string
	Term      string
}
