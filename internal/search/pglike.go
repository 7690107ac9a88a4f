package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgSearch implements Searcher against PostgreSQL as a fallback, matching
// workflow name and description with ILIKE.
type PgSearch struct {
	db *sql.DB
}

func NewPgSearch(db *sql.DB) *PgSearch {
	return &PgSearch{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgSearch) Healthy() bool {
	return true
}

func (p *PgSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.CompanyIDs != nil && len(q.CompanyIDs) == 0 {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "(name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')"
	args := []any{q.Text}
	if q.CompanyIDs != nil {
		placeholders := make([]string, len(q.CompanyIDs))
		for i, companyID := range q.CompanyIDs {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, companyID)
		}
		where += fmt.Sprintf(" AND company_id IN (%s)", strings.Join(placeholders, ", "))
	}

	var total int
	countSQL := "SELECT count(*) FROM workflows WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count workflow search: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, name, description, company_id, milestone_id
		FROM workflows
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, where, limit, offset)
	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("workflow search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var result Result
		if err := rows.Scan(&result.ID, &result.Name, &result.Snippet, &result.CompanyID, &result.MilestoneID); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every workflow for reindexing into Meilisearch.
func (p *PgSearch) LoadAllRecords(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, description, company_id, milestone_id, archived FROM workflows
	`)
	if err != nil {
		return nil, fmt.Errorf("load workflow records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.Name, &record.Description, &record.CompanyID, &record.MilestoneID, &record.Archived); err != nil {
			return nil, fmt.Errorf("scan workflow record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow records: %w", err)
	}
	return records, nil
}
