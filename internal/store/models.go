package store

import "time"

type Person struct {
	ID           string
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	Email        string
	Title        string
	AccessLevel  string
	CompanyIDs   []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Company struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AccessLevel struct {
	ID   string
	Name string
}

type Verb struct {
	ID   string
	Name string
}

type Milestone struct {
	ID            string
	Name          string
	Description   string
	CompanyID     string
	StartDate     *time.Time
	DeliveryDate  *time.Time
	CompletedDate *time.Time
	Archived      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Workflow struct {
	ID            string
	Name          string
	Description   string
	CompanyID     string
	MilestoneID   string
	StartDate     *time.Time
	DeliveryDate  *time.Time
	CompletedDate *time.Time
	Archived      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StepRow is the flat adjacency-list storage form of a step. ParentID is nil
// for top-level steps; sibling order rides OrderNumber.
type StepRow struct {
	ID           string
	WorkflowID   string
	ParentID     *string
	OrderNumber  int
	Description  string
	VerbID       string
	FileID       *string
	Completed    bool
	Asynchronous bool
}
