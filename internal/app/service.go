package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"time"

	"github.com/BubbatheVTOG/b404.be-sub000/internal/accounts"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/auth"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/config"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/email"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/export"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/filestore"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/rbac"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/search"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/snapshots"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/steptree"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/store"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/util"
)

// Session is the per-request caller identity derived from an access token.
type Session struct {
	Token        string
	RefreshToken string
	PersonID     string
	Username     string
	FirstName    string
	LastName     string
	AccessLevel  rbac.Level
	CompanyIDs   []string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetPersonByID(context.Context, string) (store.Person, error)
	ListPersons(context.Context) ([]store.Person, error)
	DeletePerson(context.Context, string) error

	ListCompanies(context.Context) ([]store.Company, error)
	GetCompany(context.Context, string) (store.Company, error)
	CompanyNameExists(context.Context, string) (bool, error)
	InsertCompany(context.Context, store.Company) error
	UpdateCompany(context.Context, string, string) error
	DeleteCompany(context.Context, string) error

	ListAccessLevels(context.Context) ([]store.AccessLevel, error)
	ListVerbs(context.Context) ([]store.Verb, error)

	ListMilestones(context.Context) ([]store.Milestone, error)
	GetMilestone(context.Context, string) (store.Milestone, error)
	InsertMilestone(context.Context, store.Milestone) error
	UpdateMilestone(context.Context, store.Milestone) error
	SetMilestoneArchived(context.Context, string, bool) error
	DeleteMilestone(context.Context, string) error

	ListWorkflows(context.Context) ([]store.Workflow, error)
	GetWorkflow(context.Context, string) (store.Workflow, error)
	CreateWorkflow(context.Context, store.Workflow, []store.StepRow) error
	UpdateWorkflow(context.Context, store.Workflow) error
	SetWorkflowArchived(context.Context, string, bool) error
	SetWorkflowCompleted(context.Context, string, time.Time) error
	DeleteWorkflow(context.Context, string) error
	SearchWorkflows(context.Context, string, int) ([]store.Workflow, error)

	TopLevelSteps(ctx context.Context, workflowID string) ([]store.StepRow, error)
	ChildSteps(ctx context.Context, stepID string) ([]store.StepRow, error)
	ReplaceSteps(context.Context, string, []store.StepRow) error

	CompanyMemberEmails(context.Context, string) ([]string, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions and the access-token revocation list.
// Backed by Redis when configured, Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	accounts *accounts.Service
	search   *search.Service
	snaps    *snapshots.Service
	exporter *export.Service
	emailer  *email.Service
	files    *filestore.MinioStore
}

// Options carries the optional collaborators; any of them may be nil.
type Options struct {
	Search   *search.Service
	Snaps    *snapshots.Service
	Exporter *export.Service
	Emailer  *email.Service
	Files    *filestore.MinioStore
}

func New(cfg config.Config, dataStore dataStore, sessions sessionStore, accountSvc *accounts.Service, opts Options) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		accounts: accountSvc,
		search:   opts.Search,
		snaps:    opts.Snaps,
		exporter: opts.Exporter,
		emailer:  opts.Emailer,
		files:    opts.Files,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the default administrator account on first run so a fresh
// deployment is reachable. The password must be rotated immediately.
func (s *Service) Bootstrap(ctx context.Context) error {
	_, err := s.accounts.Register(ctx, accounts.RegisterRequest{
		Username:    "admin",
		Password:    "changeme-admin",
		FirstName:   "Default",
		LastName:    "Admin",
		AccessLevel: s.cfg.AdminLevel,
	})
	if errors.Is(err, accounts.ErrUsernameTaken) {
		return nil
	}
	if err == nil {
		log.Printf("seeded default admin account; change its password now")
	}
	return err
}

// Sessions

// SignIn authenticates a username/password pair and issues a token pair.
func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	person, err := s.accounts.VerifyCredentials(ctx, username, password)
	if err != nil {
		return Session{}, errUnauthenticated()
	}
	return s.issueSession(ctx, person)
}

// Refresh rotates a refresh token into a fresh token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	personID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, errUnauthenticated()
	}
	person, err := s.store.GetPersonByID(ctx, personID)
	if errors.Is(err, sql.ErrNoRows) {
		// Subject deleted since the refresh token was issued.
		return Session{}, errUnauthenticated()
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, person)
}

func (s *Service) issueSession(ctx context.Context, person store.Person) (Session, error) {
	jti := util.NewID("jti")
	token, expiresAt, err := auth.Issue([]byte(s.cfg.TokenSecret), person.ID, s.cfg.TokenIssuer, jti, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), person.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		PersonID:     person.ID,
		Username:     person.Username,
		FirstName:    person.FirstName,
		LastName:     person.LastName,
		AccessLevel:  rbac.Level(person.AccessLevel),
		CompanyIDs:   person.CompanyIDs,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token and resolves its subject. A
// subject that no longer exists fails authentication rather than leaking a
// lookup error.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	if claims.JTI != "" {
		revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
		if err != nil {
			return Session{}, err
		}
		if revoked {
			return Session{}, auth.ErrInvalidToken
		}
	}

	person, err := s.store.GetPersonByID(ctx, claims.Sub)
	if errors.Is(err, sql.ErrNoRows) {
		// Subject deleted after issuance. Fails authentication rather than
		// leaking the lookup miss.
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		PersonID:    person.ID,
		Username:    person.Username,
		FirstName:   person.FirstName,
		LastName:    person.LastName,
		AccessLevel: rbac.Level(person.AccessLevel),
		CompanyIDs:  person.CompanyIDs,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the access token and, when provided, the refresh token.
func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Authorization scoping

func (s *Service) isAdmin(session Session) bool {
	return session.AccessLevel == rbac.Level(s.cfg.AdminLevel)
}

// RequireAdmin fails unless the caller holds the designated administrator
// level.
func (s *Service) RequireAdmin(session Session) error {
	if !s.isAdmin(session) {
		return errForbidden()
	}
	return nil
}

// RequireAdminOrSelf fails unless the caller is an administrator or is
// acting on their own identity.
func (s *Service) RequireAdminOrSelf(session Session, targetID string) error {
	if s.isAdmin(session) || session.PersonID == targetID {
		return nil
	}
	return errForbidden()
}

// ScopeForRead returns the caller's visibility scope: unrestricted for
// internal levels, the caller's company set otherwise.
func (s *Service) ScopeForRead(session Session) rbac.Scope {
	return rbac.ScopeFor(session.AccessLevel, session.CompanyIDs)
}

// Persons

func personView(person store.Person) map[string]any {
	return map[string]any{
		"id":          person.ID,
		"username":    person.Username,
		"firstName":   person.FirstName,
		"lastName":    person.LastName,
		"email":       person.Email,
		"title":       person.Title,
		"accessLevel": person.AccessLevel,
		"companyIDs":  person.CompanyIDs,
		"createdAt":   person.CreatedAt,
		"updatedAt":   person.UpdatedAt,
	}
}

func (s *Service) ListPersons(ctx context.Context, session Session) ([]map[string]any, error) {
	if err := s.RequireAdmin(session); err != nil {
		return nil, err
	}
	persons, err := s.store.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(persons))
	for _, person := range persons {
		items = append(items, personView(person))
	}
	return items, nil
}

func (s *Service) GetPerson(ctx context.Context, session Session, personID string) (map[string]any, error) {
	if err := s.RequireAdminOrSelf(session, personID); err != nil {
		return nil, err
	}
	person, err := s.store.GetPersonByID(ctx, personID)
	if err != nil {
		return nil, err
	}
	return personView(person), nil
}

func (s *Service) CreatePerson(ctx context.Context, session Session, req accounts.RegisterRequest) (map[string]any, error) {
	if err := s.RequireAdmin(session); err != nil {
		return nil, err
	}
	person, err := s.accounts.Register(ctx, req)
	if err != nil {
		return nil, mapAccountError(err)
	}
	return personView(person), nil
}

// mapAccountError turns rejected input into a validation error and lets
// storage faults surface as such.
func mapAccountError(err error) error {
	if errors.Is(err, accounts.ErrInvalidInput) || errors.Is(err, accounts.ErrUsernameTaken) {
		return errValidation(err.Error(), nil)
	}
	return err
}

func (s *Service) UpdatePerson(ctx context.Context, session Session, person store.Person) (map[string]any, error) {
	if err := s.RequireAdminOrSelf(session, person.ID); err != nil {
		return nil, err
	}
	if !s.isAdmin(session) {
		// Non-admins cannot change their own level or memberships.
		current, err := s.store.GetPersonByID(ctx, person.ID)
		if err != nil {
			return nil, err
		}
		person.AccessLevel = current.AccessLevel
		person.CompanyIDs = current.CompanyIDs
	}
	if err := s.accounts.UpdateProfile(ctx, person); err != nil {
		return nil, mapAccountError(err)
	}
	updated, err := s.store.GetPersonByID(ctx, person.ID)
	if err != nil {
		return nil, err
	}
	return personView(updated), nil
}

func (s *Service) DeletePerson(ctx context.Context, session Session, personID string) error {
	if err := s.RequireAdmin(session); err != nil {
		return err
	}
	return s.store.DeletePerson(ctx, personID)
}

// ChangePassword rotates a password. Administrators may reset anyone's
// password without the current one; everyone else must prove theirs.
func (s *Service) ChangePassword(ctx context.Context, session Session, personID, currentPassword, newPassword string) error {
	if err := s.RequireAdminOrSelf(session, personID); err != nil {
		return err
	}
	if s.isAdmin(session) && session.PersonID != personID {
		if err := s.accounts.SetPassword(ctx, personID, newPassword); err != nil {
			return mapAccountError(err)
		}
		return nil
	}
	if err := s.accounts.ChangePassword(ctx, personID, currentPassword, newPassword); err != nil {
		if errors.Is(err, accounts.ErrBadCredentials) {
			return errForbidden()
		}
		return mapAccountError(err)
	}
	return nil
}

// Companies

func companyView(company store.Company) map[string]any {
	return map[string]any{
		"id":        company.ID,
		"name":      company.Name,
		"createdAt": company.CreatedAt,
		"updatedAt": company.UpdatedAt,
	}
}

func (s *Service) ListCompanies(ctx context.Context, session Session) ([]map[string]any, error) {
	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	scope := s.ScopeForRead(session)
	items := make([]map[string]any, 0, len(companies))
	for _, company := range companies {
		if !scope.AllowsCompany(company.ID) {
			continue
		}
		items = append(items, companyView(company))
	}
	return items, nil
}

func (s *Service) GetCompany(ctx context.Context, session Session, companyID string) (map[string]any, error) {
	if !s.ScopeForRead(session).AllowsCompany(companyID) {
		return nil, errForbidden()
	}
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return companyView(company), nil
}

func (s *Service) CreateCompany(ctx context.Context, session Session, name string) (map[string]any, error) {
	if err := s.RequireAdmin(session); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errValidation("name is required", nil)
	}
	exists, err := s.store.CompanyNameExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errValidation("company name already exists", nil)
	}
	company := store.Company{ID: util.NewID("cmp"), Name: name}
	if err := s.store.InsertCompany(ctx, company); err != nil {
		return nil, err
	}
	return companyView(company), nil
}

func (s *Service) UpdateCompany(ctx context.Context, session Session, companyID, name string) (map[string]any, error) {
	if err := s.RequireAdmin(session); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errValidation("name is required", nil)
	}
	if err := s.store.UpdateCompany(ctx, companyID, name); err != nil {
		return nil, err
	}
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return companyView(company), nil
}

func (s *Service) DeleteCompany(ctx context.Context, session Session, companyID string) error {
	if err := s.RequireAdmin(session); err != nil {
		return err
	}
	return s.store.DeleteCompany(ctx, companyID)
}

// Flat enumerations

func (s *Service) ListAccessLevels(ctx context.Context, _ Session) ([]store.AccessLevel, error) {
	return s.store.ListAccessLevels(ctx)
}

func (s *Service) ListVerbs(ctx context.Context, _ Session) ([]store.Verb, error) {
	return s.store.ListVerbs(ctx)
}

// Milestones

func milestoneView(milestone store.Milestone) map[string]any {
	return map[string]any{
		"id":            milestone.ID,
		"name":          milestone.Name,
		"description":   milestone.Description,
		"companyID":     milestone.CompanyID,
		"startDate":     milestone.StartDate,
		"deliveryDate":  milestone.DeliveryDate,
		"completedDate": milestone.CompletedDate,
		"archived":      milestone.Archived,
		"createdAt":     milestone.CreatedAt,
		"updatedAt":     milestone.UpdatedAt,
	}
}

func (s *Service) ListMilestones(ctx context.Context, session Session) ([]map[string]any, error) {
	milestones, err := s.store.ListMilestones(ctx)
	if err != nil {
		return nil, err
	}
	scope := s.ScopeForRead(session)
	items := make([]map[string]any, 0, len(milestones))
	for _, milestone := range milestones {
		if !scope.AllowsCompany(milestone.CompanyID) {
			continue
		}
		items = append(items, milestoneView(milestone))
	}
	return items, nil
}

func (s *Service) GetMilestone(ctx context.Context, session Session, milestoneID string) (map[string]any, error) {
	milestone, err := s.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if !s.ScopeForRead(session).AllowsCompany(milestone.CompanyID) {
		return nil, errForbidden()
	}
	return milestoneView(milestone), nil
}

// MilestoneInput carries the mutable milestone fields; dates are ISO
// yyyy-mm-dd strings.
type MilestoneInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	CompanyID    string `json:"companyID"`
	StartDate    string `json:"startDate"`
	DeliveryDate string `json:"deliveryDate"`
}

func (s *Service) CreateMilestone(ctx context.Context, session Session, input MilestoneInput) (map[string]any, error) {
	if err := s.RequireAdmin(session); err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, errValidation("name is required", nil)
	}
	if input.CompanyID == "" {
		return nil, errValidation("companyID is required", nil)
	}
	if _, err := s.store.GetCompany(ctx, input.CompanyID); err != nil {
		return nil, errNotFound("company not found")
	}
	start, err := parseDate(input.StartDate)
	if err != nil {
		return nil, err
	}
	delivery, err := parseDate(input.DeliveryDate)
	if err != nil {
		return nil, err
	}
	milestone := store.Milestone{
		ID:           util.NewID("mls"),
		Name:         input.Name,
		Description:  input.Description,
		CompanyID:    input.CompanyID,
		StartDate:    start,
		DeliveryDate: delivery,
	}
	if err := s.store.InsertMilestone(ctx, milestone); err != nil {
		return nil, err
	}
	return milestoneView(milestone), nil
}

func (s *Service) UpdateMilestone(ctx context.Context, session Session, milestoneID string, input MilestoneInput) (map[string]any, error) {
	if err := s.RequireAdmin(session); err != nil {
		return nil, err
	}
	milestone, err := s.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if input.Name != "" {
		milestone.Name = input.Name
	}
	milestone.Description = input.Description
	if input.StartDate != "" {
		start, err := parseDate(input.StartDate)
		if err != nil {
			return nil, err
		}
		milestone.StartDate = start
	}
	if input.DeliveryDate != "" {
		delivery, err := parseDate(input.DeliveryDate)
		if err != nil {
			return nil, err
		}
		milestone.DeliveryDate = delivery
	}
	if err := s.store.UpdateMilestone(ctx, milestone); err != nil {
		return nil, err
	}
	return milestoneView(milestone), nil
}

func (s *Service) SetMilestoneArchived(ctx context.Context, session Session, milestoneID string, archived bool) error {
	if err := s.RequireAdmin(session); err != nil {
		return err
	}
	return s.store.SetMilestoneArchived(ctx, milestoneID, archived)
}

func (s *Service) DeleteMilestone(ctx context.Context, session Session, milestoneID string) error {
	if err := s.RequireAdmin(session); err != nil {
		return err
	}
	return s.store.DeleteMilestone(ctx, milestoneID)
}

// Workflows

// workflowView reconstructs the step forest and derives percentComplete and
// the completion timestamp for the response. Reads never write the derived
// values back.
func (s *Service) workflowView(ctx context.Context, workflow store.Workflow) (map[string]any, error) {
	forest, err := steptree.Reconstruct(ctx, workflow.ID, s.store)
	if err != nil {
		return nil, mapTreeError(err)
	}
	return workflowViewFromForest(workflow, forest), nil
}

func workflowViewFromForest(workflow store.Workflow, forest []*steptree.Step) map[string]any {
	total, completed := steptree.Progress(forest)
	percent := 1.0
	if total > 0 {
		percent = float64(completed) / float64(total)
	}
	completedDate := workflow.CompletedDate
	if percent >= 1.0 && completedDate == nil {
		now := time.Now()
		completedDate = &now
	}
	return map[string]any{
		"workflowID":      workflow.ID,
		"name":            workflow.Name,
		"description":     workflow.Description,
		"companyID":       workflow.CompanyID,
		"milestoneID":     workflow.MilestoneID,
		"createdAt":       workflow.CreatedAt,
		"updatedAt":       workflow.UpdatedAt,
		"startDate":       workflow.StartDate,
		"deliveryDate":    workflow.DeliveryDate,
		"completedDate":   completedDate,
		"archived":        workflow.Archived,
		"percentComplete": percent,
		"totalSteps":      total,
		"completedSteps":  completed,
		"steps":           steptree.EncodeForest(forest),
	}
}

func (s *Service) ListWorkflows(ctx context.Context, session Session) ([]map[string]any, error) {
	workflows, err := s.store.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	scope := s.ScopeForRead(session)
	items := make([]map[string]any, 0, len(workflows))
	for _, workflow := range workflows {
		if !scope.AllowsCompany(workflow.CompanyID) {
			continue
		}
		view, err := s.workflowView(ctx, workflow)
		if err != nil {
			// A corrupt step tree poisons only its own workflow, not the
			// whole listing.
			var domainErr *DomainError
			if errors.As(err, &domainErr) && domainErr.Code == "DATA_INTEGRITY" {
				log.Printf("workflows: skipping %s in listing: %s", workflow.ID, domainErr.Message)
				continue
			}
			return nil, err
		}
		items = append(items, view)
	}
	return items, nil
}

func (s *Service) GetWorkflow(ctx context.Context, session Session, workflowID string) (map[string]any, error) {
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !s.ScopeForRead(session).AllowsCompany(workflow.CompanyID) {
		return nil, errForbidden()
	}
	return s.workflowView(ctx, workflow)
}

// WorkflowInput carries workflow metadata plus the initial step forest in
// wire form.
type WorkflowInput struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	CompanyID    string              `json:"companyID"`
	MilestoneID  string              `json:"milestoneID"`
	StartDate    string              `json:"startDate"`
	DeliveryDate string              `json:"deliveryDate"`
	Steps        []steptree.WireStep `json:"steps"`
}

func (s *Service) CreateWorkflow(ctx context.Context, session Session, input WorkflowInput) (map[string]any, error) {
	if err := s.RequireAdmin(session); err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, errValidation("name is required", nil)
	}
	milestone, err := s.store.GetMilestone(ctx, input.MilestoneID)
	if err != nil {
		return nil, errNotFound("milestone not found")
	}
	companyID := input.CompanyID
	if companyID == "" {
		companyID = milestone.CompanyID
	}
	if companyID != milestone.CompanyID {
		return nil, errValidation("workflow company must match its milestone", nil)
	}
	start, err := parseDate(input.StartDate)
	if err != nil {
		return nil, err
	}
	delivery, err := parseDate(input.DeliveryDate)
	if err != nil {
		return nil, err
	}

	workflow := store.Workflow{
		ID:           util.NewID("wfl"),
		Name:         input.Name,
		Description:  input.Description,
		CompanyID:    companyID,
		MilestoneID:  input.MilestoneID,
		StartDate:    start,
		DeliveryDate: delivery,
	}

	forest, err := s.decodeForest(ctx, workflow.ID, input.Steps)
	if err != nil {
		return nil, err
	}
	rows, _, err := steptree.Flatten(forest, workflow.ID)
	if err != nil {
		return nil, mapTreeError(err)
	}
	if err := s.store.CreateWorkflow(ctx, workflow, rows); err != nil {
		return nil, err
	}

	s.recordSnapshot(workflow.ID, forest, session, "Create workflow")
	s.indexWorkflow(workflow)
	return workflowViewFromForest(workflow, forest), nil
}

func (s *Service) UpdateWorkflow(ctx context.Context, session Session, workflowID string, input WorkflowInput) (map[string]any, error) {
	if err := s.RequireAdmin(session); err != nil {
		return nil, err
	}
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if input.Name != "" {
		workflow.Name = input.Name
	}
	workflow.Description = input.Description
	if input.StartDate != "" {
		start, err := parseDate(input.StartDate)
		if err != nil {
			return nil, err
		}
		workflow.StartDate = start
	}
	if input.DeliveryDate != "" {
		delivery, err := parseDate(input.DeliveryDate)
		if err != nil {
			return nil, err
		}
		workflow.DeliveryDate = delivery
	}
	if err := s.store.UpdateWorkflow(ctx, workflow); err != nil {
		return nil, err
	}
	s.indexWorkflow(workflow)
	return s.workflowView(ctx, workflow)
}

// ReplaceWorkflowSteps swaps the entire step forest in one transaction and
// persists the completion timestamp when the replacement reaches 100%.
func (s *Service) ReplaceWorkflowSteps(ctx context.Context, session Session, workflowID string, wireSteps []steptree.WireStep) (map[string]any, error) {
	if err := s.RequireAdmin(session); err != nil {
		return nil, err
	}
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	forest, err := s.decodeForest(ctx, workflowID, wireSteps)
	if err != nil {
		return nil, err
	}
	rows, _, err := steptree.Flatten(forest, workflowID)
	if err != nil {
		return nil, mapTreeError(err)
	}
	if err := s.store.ReplaceSteps(ctx, workflowID, rows); err != nil {
		return nil, err
	}

	total, completed := steptree.Progress(forest)
	if total > 0 && completed == total && workflow.CompletedDate == nil {
		now := time.Now()
		if err := s.store.SetWorkflowCompleted(ctx, workflowID, now); err != nil {
			return nil, err
		}
		workflow.CompletedDate = &now
		s.notifyCompletion(ctx, workflow)
	}

	s.recordSnapshot(workflowID, forest, session, "Replace steps")
	s.indexWorkflow(workflow)
	return workflowViewFromForest(workflow, forest), nil
}

func (s *Service) SetWorkflowArchived(ctx context.Context, session Session, workflowID string, archived bool) error {
	if err := s.RequireAdmin(session); err != nil {
		return err
	}
	if err := s.store.SetWorkflowArchived(ctx, workflowID, archived); err != nil {
		return err
	}
	if workflow, err := s.store.GetWorkflow(ctx, workflowID); err == nil {
		s.indexWorkflow(workflow)
	}
	return nil
}

func (s *Service) DeleteWorkflow(ctx context.Context, session Session, workflowID string) error {
	if err := s.RequireAdmin(session); err != nil {
		return err
	}
	if err := s.store.DeleteWorkflow(ctx, workflowID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteWorkflow(workflowID)
	}
	return nil
}

// WorkflowHistory lists recorded step-forest snapshots for a workflow.
func (s *Service) WorkflowHistory(ctx context.Context, session Session, workflowID string, limit int) ([]snapshots.CommitInfo, error) {
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !s.ScopeForRead(session).AllowsCompany(workflow.CompanyID) {
		return nil, errForbidden()
	}
	if s.snaps == nil {
		return []snapshots.CommitInfo{}, nil
	}
	return s.snaps.History(workflowID, limit)
}

// WorkflowSnapshot reads the step forest recorded at a snapshot hash.
func (s *Service) WorkflowSnapshot(ctx context.Context, session Session, workflowID, hash string) (steptree.WireEnvelope, error) {
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return steptree.WireEnvelope{}, err
	}
	if !s.ScopeForRead(session).AllowsCompany(workflow.CompanyID) {
		return steptree.WireEnvelope{}, errForbidden()
	}
	if s.snaps == nil {
		return steptree.WireEnvelope{}, errNotFound("snapshot not found")
	}
	env, err := s.snaps.GetByHash(workflowID, hash)
	if err != nil {
		return steptree.WireEnvelope{}, errNotFound("snapshot not found")
	}
	return env, nil
}

// SearchWorkflows runs a scoped full-text search. Without a search backend
// the Postgres ILIKE fallback is used with the scope applied afterward.
func (s *Service) SearchWorkflows(ctx context.Context, session Session, query string, limit, offset int) (search.Response, error) {
	scope := s.ScopeForRead(session)
	var companyIDs []string
	if !scope.Unrestricted {
		companyIDs = make([]string, 0, len(scope.Companies))
		for companyID := range scope.Companies {
			companyIDs = append(companyIDs, companyID)
		}
	}

	if s.search != nil {
		return s.search.Search(ctx, search.Query{
			Text:       query,
			CompanyIDs: companyIDs,
			Limit:      limit,
			Offset:     offset,
		}), nil
	}

	workflows, err := s.store.SearchWorkflows(ctx, query, limit)
	if err != nil {
		return search.Response{}, err
	}
	results := make([]search.Result, 0, len(workflows))
	for _, workflow := range workflows {
		if !scope.AllowsCompany(workflow.CompanyID) {
			continue
		}
		results = append(results, search.Result{
			ID:          workflow.ID,
			Name:        workflow.Name,
			Snippet:     workflow.Description,
			CompanyID:   workflow.CompanyID,
			MilestoneID: workflow.MilestoneID,
		})
	}
	return search.Response{Results: results, Total: len(results), Query: query}, nil
}

// ExportWorkflow renders a status report for download.
func (s *Service) ExportWorkflow(ctx context.Context, session Session, workflowID string, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, errUnavailable()
	}
	workflow, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !s.ScopeForRead(session).AllowsCompany(workflow.CompanyID) {
		return nil, errForbidden()
	}
	forest, err := steptree.Reconstruct(ctx, workflow.ID, s.store)
	if err != nil {
		return nil, mapTreeError(err)
	}

	companyName := workflow.CompanyID
	if company, err := s.store.GetCompany(ctx, workflow.CompanyID); err == nil {
		companyName = company.Name
	}
	verbNames := map[string]string{}
	if verbs, err := s.store.ListVerbs(ctx); err == nil {
		for _, verb := range verbs {
			verbNames[verb.ID] = verb.Name
		}
	}

	return s.exporter.Export(export.Request{
		Workflow:    workflow,
		CompanyName: companyName,
		VerbNames:   verbNames,
		Forest:      forest,
		Format:      format,
	})
}

// Files

// UploadFile stores an attachment blob and returns its generated id.
func (s *Service) UploadFile(ctx context.Context, _ Session, contentType string, size int64, blob io.Reader) (string, error) {
	if s.files == nil {
		return "", errUnavailable()
	}
	fileID := util.NewID("fil")
	if err := s.files.Put(ctx, fileID, contentType, size, blob); err != nil {
		return "", err
	}
	return fileID, nil
}

// GetFile streams an attachment. The caller owns closing the reader.
func (s *Service) GetFile(ctx context.Context, _ Session, fileID string) (io.ReadCloser, string, error) {
	if s.files == nil {
		return nil, "", errUnavailable()
	}
	blob, contentType, err := s.files.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, "", errNotFound("file not found")
		}
		return nil, "", err
	}
	return blob, contentType, nil
}

func (s *Service) DeleteFile(ctx context.Context, session Session, fileID string) error {
	if err := s.RequireAdmin(session); err != nil {
		return err
	}
	if s.files == nil {
		return errUnavailable()
	}
	return s.files.Delete(ctx, fileID)
}

// Internal helpers

// decodeForest converts wire steps to a forest and checks every verb
// reference against the verb directory.
func (s *Service) decodeForest(ctx context.Context, workflowID string, wireSteps []steptree.WireStep) ([]*steptree.Step, error) {
	forest, err := steptree.DecodeForest(steptree.WireEnvelope{WorkflowID: workflowID, Steps: wireSteps})
	if err != nil {
		return nil, mapTreeError(err)
	}

	verbs, err := s.store.ListVerbs(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(verbs))
	for _, verb := range verbs {
		known[verb.ID] = struct{}{}
	}
	worklist := make([]*steptree.Step, len(forest))
	copy(worklist, forest)
	for len(worklist) > 0 {
		node := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if _, ok := known[node.VerbID]; !ok {
			return nil, errValidation("unknown verb: "+node.VerbID, nil)
		}
		worklist = append(worklist, node.Children...)
	}
	return forest, nil
}

func (s *Service) recordSnapshot(workflowID string, forest []*steptree.Step, session Session, message string) {
	if s.snaps == nil {
		return
	}
	env := steptree.WireEnvelope{WorkflowID: workflowID, Steps: steptree.EncodeForest(forest)}
	author := session.Username
	if author == "" {
		author = "system"
	}
	if _, err := s.snaps.Record(workflowID, env, author, message); err != nil {
		log.Printf("snapshots: record %s: %v", workflowID, err)
	}
}

func (s *Service) indexWorkflow(workflow store.Workflow) {
	if s.search == nil {
		return
	}
	s.search.IndexWorkflow(search.Record{
		ID:          workflow.ID,
		Name:        workflow.Name,
		Description: workflow.Description,
		CompanyID:   workflow.CompanyID,
		MilestoneID: workflow.MilestoneID,
		Archived:    workflow.Archived,
	})
}

func (s *Service) notifyCompletion(ctx context.Context, workflow store.Workflow) {
	if s.emailer == nil || !s.emailer.IsConfigured() {
		return
	}
	recipients, err := s.store.CompanyMemberEmails(ctx, workflow.CompanyID)
	if err != nil {
		log.Printf("email: resolve recipients for %s: %v", workflow.ID, err)
		return
	}
	companyName := workflow.CompanyID
	if company, err := s.store.GetCompany(ctx, workflow.CompanyID); err == nil {
		companyName = company.Name
	}
	data := email.CompletionData{
		WorkflowName: workflow.Name,
		CompanyName:  companyName,
		CompletedAt:  *workflow.CompletedDate,
	}
	go func() {
		if err := s.emailer.SendWorkflowCompleted(recipients, data); err != nil {
			log.Printf("email: workflow completed %s: %v", workflow.ID, err)
		}
	}()
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, errValidation("invalid date, expected yyyy-mm-dd: "+value, nil)
	}
	return &parsed, nil
}

func mapTreeError(err error) error {
	switch {
	case errors.Is(err, steptree.ErrIntegrity):
		return errIntegrity(err.Error())
	case errors.Is(err, steptree.ErrValidation):
		return errValidation(err.Error(), nil)
	default:
		return err
	}
}
