// Package search provides workflow full-text search backed by Meilisearch
// with a PostgreSQL fallback.
package search

import "context"

// Record is the data indexed per workflow.
type Record struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CompanyID   string `json:"companyID"`
	MilestoneID string `json:"milestoneID"`
	Archived    bool   `json:"archived"`
}

// Query describes a search request. CompanyIDs nil means the caller's
// visibility is unrestricted; otherwise only workflows owned by one of the
// listed companies may be returned.
type Query struct {
	Text       string
	CompanyIDs []string
	Limit      int
	Offset     int
}

// Result is a single search hit.
type Result struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Snippet     string `json:"snippet"`
	CompanyID   string `json:"companyID"`
	MilestoneID string `json:"milestoneID"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a workflow search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push workflow records into a search index.
type Indexer interface {
	IndexWorkflow(record Record) error
	IndexWorkflows(records []Record) error
	DeleteWorkflow(id string) error
}
