package models

import "time"

// MaxSnippetTitleLen is the longest title the ledger will store.
const MaxSnippetTitleLen = 120

// Snippet is a saved piece of code. The ID is immutable after creation;
// every update is a full-record replace that refreshes UpdatedAt.
type Snippet struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
