package search

import (
	"context"
	"log"
)

// Service tries Meilisearch first and falls back to the Postgres searcher.
type Service struct {
	meili *Meili
	pg    *PgSearch
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, pg *PgSearch) *Service {
	return &Service{meili: meili, pg: pg}
}

// Search runs the query against whichever backend is available. The company
// scope in the query is enforced by both backends.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.pg.Search(ctx, q)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexWorkflow pushes one workflow into the index, fire-and-forget.
func (s *Service) IndexWorkflow(record Record) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexWorkflow(record); err != nil {
			log.Printf("search: index workflow %s: %v", record.ID, err)
		}
	}()
}

// DeleteWorkflow removes a workflow from the index, fire-and-forget.
func (s *Service) DeleteWorkflow(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteWorkflow(id); err != nil {
			log.Printf("search: delete workflow %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG loads every workflow from Postgres and bulk-indexes it,
// called once at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pg == nil {
		return
	}
	records, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexWorkflows(records); err != nil {
		log.Printf("search: reindex workflows: %v", err)
	}
}

func nonNil(results []Result) []Result {
	if results == nil {
		return []Result{}
	}
	return results
}
