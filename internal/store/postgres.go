package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Persons

func (s *PostgresStore) GetPersonByID(ctx context.Context, personID string) (Person, error) {
	var person Person
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, first_name, last_name, email, title, access_level, created_at, updated_at
		FROM persons
		WHERE id=$1
	`, personID).Scan(
		&person.ID,
		&person.Username,
		&person.PasswordHash,
		&person.FirstName,
		&person.LastName,
		&person.Email,
		&person.Title,
		&person.AccessLevel,
		&person.CreatedAt,
		&person.UpdatedAt,
	)
	if err != nil {
		return Person{}, err
	}
	companyIDs, err := s.listMemberships(ctx, person.ID)
	if err != nil {
		return Person{}, err
	}
	person.CompanyIDs = companyIDs
	return person, nil
}

func (s *PostgresStore) GetPersonByUsername(ctx context.Context, username string) (Person, error) {
	var personID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM persons WHERE username=$1`, username).Scan(&personID)
	if err != nil {
		return Person{}, err
	}
	return s.GetPersonByID(ctx, personID)
}

func (s *PostgresStore) ListPersons(ctx context.Context) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, first_name, last_name, email, title, access_level, created_at, updated_at
		FROM persons
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	items := make([]Person, 0)
	for rows.Next() {
		var person Person
		if err := rows.Scan(
			&person.ID,
			&person.Username,
			&person.FirstName,
			&person.LastName,
			&person.Email,
			&person.Title,
			&person.AccessLevel,
			&person.CreatedAt,
			&person.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		items = append(items, person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	for i := range items {
		companyIDs, err := s.listMemberships(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].CompanyIDs = companyIDs
	}
	return items, nil
}

func (s *PostgresStore) listMemberships(ctx context.Context, personID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT company_id FROM person_companies WHERE person_id=$1 ORDER BY company_id ASC
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) InsertPerson(ctx context.Context, person Person) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert person: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO persons (id, username, password_hash, first_name, last_name, email, title, access_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, person.ID, person.Username, person.PasswordHash, person.FirstName, person.LastName, person.Email, person.Title, person.AccessLevel)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	for _, companyID := range person.CompanyIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO person_companies (person_id, company_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, person.ID, companyID); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert person: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePerson(ctx context.Context, person Person) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update person: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE persons
		SET username=$2, first_name=$3, last_name=$4, email=$5, title=$6, access_level=$7, updated_at=NOW()
		WHERE id=$1
	`, person.ID, person.Username, person.FirstName, person.LastName, person.Email, person.Title, person.AccessLevel)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM person_companies WHERE person_id=$1`, person.ID); err != nil {
		return fmt.Errorf("clear memberships: %w", err)
	}
	for _, companyID := range person.CompanyIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO person_companies (person_id, company_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, person.ID, companyID); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update person: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePersonPassword(ctx context.Context, personID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE persons SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, personID, passwordHash)
	if err != nil {
		return fmt.Errorf("update person password: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeletePerson(ctx context.Context, personID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM persons WHERE id=$1`, personID)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Companies

func (s *PostgresStore) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at FROM companies ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	items := make([]Company, 0)
	for rows.Next() {
		var item Company
		if err := rows.Scan(&item.ID, &item.Name, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (Company, error) {
	var item Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at FROM companies WHERE id=$1
	`, companyID).Scan(&item.ID, &item.Name, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Company{}, err
	}
	return item, nil
}

func (s *PostgresStore) CompanyNameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM companies WHERE name=$1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check company name: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertCompany(ctx context.Context, item Company) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name) VALUES ($1, $2)
	`, item.ID, item.Name)
	if err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, companyID, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE companies SET name=$2, updated_at=NOW() WHERE id=$1
	`, companyID, name)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteCompany(ctx context.Context, companyID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM companies WHERE id=$1`, companyID)
	if err != nil {
		return fmt.Errorf("delete company: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Access levels and verbs

func (s *PostgresStore) ListAccessLevels(ctx context.Context) ([]AccessLevel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM access_levels ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list access levels: %w", err)
	}
	defer rows.Close()

	items := make([]AccessLevel, 0)
	for rows.Next() {
		var item AccessLevel
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan access level: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access levels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListVerbs(ctx context.Context) ([]Verb, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM verbs ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list verbs: %w", err)
	}
	defer rows.Close()

	items := make([]Verb, 0)
	for rows.Next() {
		var item Verb
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan verb: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verbs: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) VerbExists(ctx context.Context, verbID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM verbs WHERE id=$1)`, verbID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check verb: %w", err)
	}
	return exists, nil
}

// Milestones

func (s *PostgresStore) ListMilestones(ctx context.Context) ([]Milestone, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, company_id, start_date, delivery_date, completed_date, archived, created_at, updated_at
		FROM milestones
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	items := make([]Milestone, 0)
	for rows.Next() {
		var item Milestone
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Description,
			&item.CompanyID,
			&item.StartDate,
			&item.DeliveryDate,
			&item.CompletedDate,
			&item.Archived,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetMilestone(ctx context.Context, milestoneID string) (Milestone, error) {
	var item Milestone
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, company_id, start_date, delivery_date, completed_date, archived, created_at, updated_at
		FROM milestones
		WHERE id=$1
	`, milestoneID).Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.CompanyID,
		&item.StartDate,
		&item.DeliveryDate,
		&item.CompletedDate,
		&item.Archived,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Milestone{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertMilestone(ctx context.Context, item Milestone) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO milestones (id, name, description, company_id, start_date, delivery_date, archived)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`, item.ID, item.Name, item.Description, item.CompanyID, item.StartDate, item.DeliveryDate)
	if err != nil {
		return fmt.Errorf("insert milestone: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateMilestone(ctx context.Context, item Milestone) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE milestones
		SET name=$2, description=$3, start_date=$4, delivery_date=$5, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Description, item.StartDate, item.DeliveryDate)
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetMilestoneArchived(ctx context.Context, milestoneID string, archived bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE milestones SET archived=$2, updated_at=NOW() WHERE id=$1
	`, milestoneID, archived)
	if err != nil {
		return fmt.Errorf("archive milestone: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteMilestone(ctx context.Context, milestoneID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM milestones WHERE id=$1`, milestoneID)
	if err != nil {
		return fmt.Errorf("delete milestone: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Workflows

const workflowColumns = `id, name, description, company_id, milestone_id, start_date, delivery_date, completed_date, archived, created_at, updated_at`

func scanWorkflow(scan func(...any) error) (Workflow, error) {
	var item Workflow
	err := scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.CompanyID,
		&item.MilestoneID,
		&item.StartDate,
		&item.DeliveryDate,
		&item.CompletedDate,
		&item.Archived,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workflowColumns+` FROM workflows ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	items := make([]Workflow, 0)
	for rows.Next() {
		item, err := scanWorkflow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, workflowID string) (Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+workflowColumns+` FROM workflows WHERE id=$1
	`, workflowID)
	item, err := scanWorkflow(row.Scan)
	if err != nil {
		return Workflow{}, err
	}
	return item, nil
}

// CreateWorkflow inserts the workflow row and its initial step forest in one
// transaction.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, item Workflow, steps []StepRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create workflow: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, company_id, milestone_id, start_date, delivery_date, archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
	`, item.ID, item.Name, item.Description, item.CompanyID, item.MilestoneID, item.StartDate, item.DeliveryDate)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	if err := insertSteps(ctx, tx, steps); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create workflow: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateWorkflow(ctx context.Context, item Workflow) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workflows
		SET name=$2, description=$3, start_date=$4, delivery_date=$5, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Description, item.StartDate, item.DeliveryDate)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetWorkflowArchived(ctx context.Context, workflowID string, archived bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET archived=$2, updated_at=NOW() WHERE id=$1
	`, workflowID, archived)
	if err != nil {
		return fmt.Errorf("archive workflow: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetWorkflowCompleted(ctx context.Context, workflowID string, completedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET completed_date=$2, updated_at=NOW() WHERE id=$1 AND completed_date IS NULL
	`, workflowID, completedAt)
	if err != nil {
		return fmt.Errorf("complete workflow: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteWorkflow(ctx context.Context, workflowID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id=$1`, workflowID)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SearchWorkflows(ctx context.Context, query string, limit int) ([]Workflow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workflowColumns+`
		FROM workflows
		WHERE name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search workflows: %w", err)
	}
	defer rows.Close()

	items := make([]Workflow, 0)
	for rows.Next() {
		item, err := scanWorkflow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return items, nil
}

// Steps

const stepColumns = `id, workflow_id, parent_id, order_number, description, verb_id, file_id, completed, asynchronous`

func (s *PostgresStore) listSteps(ctx context.Context, query string, args ...any) ([]StepRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	items := make([]StepRow, 0)
	for rows.Next() {
		var item StepRow
		if err := rows.Scan(
			&item.ID,
			&item.WorkflowID,
			&item.ParentID,
			&item.OrderNumber,
			&item.Description,
			&item.VerbID,
			&item.FileID,
			&item.Completed,
			&item.Asynchronous,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return items, nil
}

// TopLevelSteps returns a workflow's root steps in sibling order.
func (s *PostgresStore) TopLevelSteps(ctx context.Context, workflowID string) ([]StepRow, error) {
	return s.listSteps(ctx, `
		SELECT `+stepColumns+`
		FROM steps
		WHERE workflow_id=$1 AND parent_id IS NULL
		ORDER BY order_number ASC
	`, workflowID)
}

// ChildSteps returns the direct children of a step in sibling order.
func (s *PostgresStore) ChildSteps(ctx context.Context, stepID string) ([]StepRow, error) {
	return s.listSteps(ctx, `
		SELECT `+stepColumns+`
		FROM steps
		WHERE parent_id=$1
		ORDER BY order_number ASC
	`, stepID)
}

// ReplaceSteps swaps a workflow's entire step forest in one transaction so a
// concurrent reader sees either the old forest or the new one, never a
// half-replaced state.
func (s *PostgresStore) ReplaceSteps(ctx context.Context, workflowID string, steps []StepRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace steps: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE workflow_id=$1`, workflowID); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	if err := insertSteps(ctx, tx, steps); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace steps: %w", err)
	}
	return nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, steps []StepRow) error {
	for _, step := range steps {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO steps (id, workflow_id, parent_id, order_number, description, verb_id, file_id, completed, asynchronous)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, step.ID, step.WorkflowID, step.ParentID, step.OrderNumber, step.Description, step.VerbID, step.FileID, step.Completed, step.Asynchronous)
		if err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
	}
	return nil
}

// Refresh sessions (Postgres fallback when Redis is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, personID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, person_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET person_id=EXCLUDED.person_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, personID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var personID string
	err := s.db.QueryRowContext(ctx, `
		SELECT person_id
		FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&personID)
	if err != nil {
		return "", err
	}
	return personID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// Revoked access tokens (logout before expiry)

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// CompanyMemberEmails returns the distinct email addresses of a company's
// members, used for completion notifications.
func (s *PostgresStore) CompanyMemberEmails(ctx context.Context, companyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.email
		FROM persons p
		JOIN person_companies pc ON pc.person_id = p.id
		WHERE pc.company_id=$1 AND p.email <> ''
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list member emails: %w", err)
	}
	defer rows.Close()

	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emails: %w", err)
	}
	return emails, nil
}

// UsernameExists reports whether a username is already taken.
func (s *PostgresStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM persons WHERE username=$1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return exists, nil
}
