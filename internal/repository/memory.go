package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/bountyboard/bounty-server/internal/models"
)

// Memory is an in-process Store. A single mutex serialises writers, which
// makes every operation atomic with respect to every other.
type Memory struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]models.Account
	programs map[uuid.UUID]models.Program
	reports  map[uuid.UUID]models.Report
	events   map[uuid.UUID][]models.ReportEvent
}

// NewMemory creates an empty in-process store
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[uuid.UUID]models.Account),
		programs: make(map[uuid.UUID]models.Program),
		reports:  make(map[uuid.UUID]models.Report),
		events:   make(map[uuid.UUID][]models.ReportEvent),
	}
}

// Ping always succeeds
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op
func (m *Memory) Close() {}

// CreateAccount stores a new account
func (m *Memory) CreateAccount(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Username, a.Username) || strings.EqualFold(existing.Email, a.Email) {
			return fmt.Errorf("account %q: %w", a.Username, models.ErrConflict)
		}
	}
	if _, ok := m.accounts[a.ID]; ok {
		return fmt.Errorf("account %s: %w", a.ID, models.ErrConflict)
	}

	m.accounts[a.ID] = *a
	return nil
}

// GetAccount looks up an account by id
func (m *Memory) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	return &a, nil
}

// FindAccountByLogin looks up an account by username or email
func (m *Memory) FindAccountByLogin(_ context.Context, login string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if strings.EqualFold(a.Username, login) || strings.EqualFold(a.Email, login) {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("account %q: %w", login, models.ErrNotFound)
}

// ListAccounts returns accounts ordered by creation time
func (m *Memory) ListAccounts(_ context.Context, role models.Role) ([]models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.listAccounts(role), nil
}

func (m *Memory) listAccounts(role models.Role) []models.Account {
	out := make([]models.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		if role == "" || a.Role == role {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Username < out[j].Username
	})
	return out
}

// DeleteAccount removes an account nothing references
func (m *Memory) DeleteAccount(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	for _, p := range m.programs {
		if p.CompanyID == id {
			return fmt.Errorf("account %s owns program %s: %w", id, p.ID, models.ErrConflict)
		}
	}
	for _, r := range m.reports {
		if r.ResearcherID == id || r.CompanyID == id || (r.ReviewerID != nil && *r.ReviewerID == id) {
			return fmt.Errorf("account %s is referenced by report %s: %w", id, r.ID, models.ErrConflict)
		}
	}

	delete(m.accounts, id)
	return nil
}

// CreateProgram stores a program and counts it against its company
func (m *Memory) CreateProgram(_ context.Context, p *models.Program) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	company, ok := m.accounts[p.CompanyID]
	if !ok {
		return fmt.Errorf("company %s: %w", p.CompanyID, models.ErrNotFound)
	}

	company.ProgramsCreated++
	m.accounts[company.ID] = company
	m.programs[p.ID] = cloneProgram(*p)
	return nil
}

// GetProgram looks up a program by id
func (m *Memory) GetProgram(_ context.Context, id uuid.UUID) (*models.Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.programs[id]
	if !ok {
		return nil, fmt.Errorf("program %s: %w", id, models.ErrNotFound)
	}
	p = cloneProgram(p)
	return &p, nil
}

// ListPrograms returns matching programs, newest first
func (m *Memory) ListPrograms(_ context.Context, f models.ProgramFilter) ([]models.Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.listPrograms(f), nil
}

func (m *Memory) listPrograms(f models.ProgramFilter) []models.Program {
	out := make([]models.Program, 0)
	for _, p := range m.programs {
		if f.Active != nil && p.Active != *f.Active {
			continue
		}
		if f.Industry != "" && !strings.EqualFold(p.Industry, f.Industry) {
			continue
		}
		if f.CompanyID != nil && p.CompanyID != *f.CompanyID {
			continue
		}
		if f.MinBounty != nil && p.MinBounty < *f.MinBounty {
			continue
		}
		out = append(out, cloneProgram(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// UpdateProgram replaces a program's descriptive fields
func (m *Memory) UpdateProgram(_ context.Context, p *models.Program) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.programs[p.ID]
	if !ok {
		return fmt.Errorf("program %s: %w", p.ID, models.ErrNotFound)
	}

	stored.Name = p.Name
	stored.Industry = p.Industry
	stored.Description = p.Description
	stored.Scope = slices.Clone(p.Scope)
	stored.OutOfScope = slices.Clone(p.OutOfScope)
	stored.Rules = slices.Clone(p.Rules)
	stored.RewardStructure = maps.Clone(p.RewardStructure)
	stored.MinBounty = p.MinBounty
	stored.MaxBounty = p.MaxBounty
	stored.UnparsedSeverities = slices.Clone(p.UnparsedSeverities)
	stored.Active = p.Active
	stored.UpdatedAt = p.UpdatedAt
	m.programs[p.ID] = stored
	return nil
}

// DeleteProgram removes a program no report references
func (m *Memory) DeleteProgram(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.programs[id]; !ok {
		return fmt.Errorf("program %s: %w", id, models.ErrNotFound)
	}
	for _, r := range m.reports {
		if r.ProgramID == id {
			return fmt.Errorf("program %s has reports: %w", id, models.ErrConflict)
		}
	}

	delete(m.programs, id)
	return nil
}

// CreateReport stores a report and counts the submission
func (m *Memory) CreateReport(_ context.Context, r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	researcher, ok := m.accounts[r.ResearcherID]
	if !ok {
		return fmt.Errorf("researcher %s: %w", r.ResearcherID, models.ErrNotFound)
	}
	program, ok := m.programs[r.ProgramID]
	if !ok {
		return fmt.Errorf("program %s: %w", r.ProgramID, models.ErrNotFound)
	}

	researcher.ReportsSubmitted++
	program.TotalReports++
	m.accounts[researcher.ID] = researcher
	m.programs[program.ID] = program
	m.reports[r.ID] = cloneReport(*r)
	return nil
}

// GetReport looks up a report by id
func (m *Memory) GetReport(_ context.Context, id uuid.UUID) (*models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", id, models.ErrNotFound)
	}
	r = cloneReport(r)
	return &r, nil
}

// ListReports returns matching reports, newest submission first
func (m *Memory) ListReports(_ context.Context, f models.ReportFilter) ([]models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.listReports(f), nil
}

func (m *Memory) listReports(f models.ReportFilter) []models.Report {
	out := make([]models.Report, 0)
	for _, r := range m.reports {
		if f.ResearcherID != nil && r.ResearcherID != *f.ResearcherID {
			continue
		}
		if f.CompanyID != nil && r.CompanyID != *f.CompanyID {
			continue
		}
		if f.ProgramID != nil && r.ProgramID != *f.ProgramID {
			continue
		}
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.Severity != nil && r.Severity != *f.Severity {
			continue
		}
		out = append(out, cloneReport(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// UpdateReportContent rewrites the editable fields of a pending report
func (m *Memory) UpdateReportContent(_ context.Context, r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.reports[r.ID]
	if !ok {
		return fmt.Errorf("report %s: %w", r.ID, models.ErrNotFound)
	}
	if stored.Status != models.StatusPendingReview {
		return fmt.Errorf("report %s is %s: %w", r.ID, stored.Status, models.ErrConflict)
	}

	stored.Title = r.Title
	stored.Description = r.Description
	stored.StepsToReproduce = r.StepsToReproduce
	stored.Impact = r.Impact
	stored.Category = r.Category
	stored.Severity = r.Severity
	stored.UpdatedAt = r.UpdatedAt
	m.reports[r.ID] = stored
	return nil
}

// ApplyTransition moves a report from t.From to t.To with its bookkeeping
func (m *Memory) ApplyTransition(_ context.Context, t Transition) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[t.ReportID]
	if !ok {
		return nil, fmt.Errorf("report %s: %w", t.ReportID, models.ErrNotFound)
	}
	if r.Status != t.From {
		return nil, fmt.Errorf("report %s is %s, expected %s: %w", r.ID, r.Status, t.From, models.ErrConflict)
	}

	// resolve every referenced row before mutating anything
	if t.Payout != nil {
		if err := m.checkPayout(*t.Payout); err != nil {
			return nil, err
		}
	}
	if _, ok := m.accounts[t.Actor.ID]; !ok {
		return nil, fmt.Errorf("reviewer %s: %w", t.Actor.ID, models.ErrConflict)
	}

	reviewer := t.Actor.ID
	r.Status = t.To
	r.UpdatedAt = t.At
	r.ReviewerID = &reviewer
	if t.Reward != nil {
		amount := *t.Reward
		r.Reward = &amount
	}
	if t.Feedback != nil {
		feedback := *t.Feedback
		r.Feedback = &feedback
	}
	m.reports[r.ID] = r

	if t.Payout != nil {
		m.applyPayout(*t.Payout)
	}
	if t.CountReview {
		a := m.accounts[t.Actor.ID]
		a.ReportsReviewed++
		m.accounts[a.ID] = a
	}

	m.events[r.ID] = append(m.events[r.ID], models.ReportEvent{
		ID:         uuid.New(),
		ReportID:   r.ID,
		ActorID:    t.Actor.ID,
		ActorRole:  t.Actor.Role,
		FromStatus: t.From,
		ToStatus:   t.To,
		Reward:     r.Reward,
		Feedback:   t.Feedback,
		CreatedAt:  t.At,
	})

	out := cloneReport(r)
	return &out, nil
}

// DeleteReport removes a report and reverses its payout
func (m *Memory) DeleteReport(_ context.Context, rm Removal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[rm.ReportID]
	if !ok {
		return fmt.Errorf("report %s: %w", rm.ReportID, models.ErrNotFound)
	}
	if r.Status != rm.Expected {
		return fmt.Errorf("report %s is %s, expected %s: %w", r.ID, r.Status, rm.Expected, models.ErrConflict)
	}
	if rm.Refund != nil {
		if err := m.checkPayout(*rm.Refund); err != nil {
			return err
		}
		m.applyPayout(*rm.Refund)
	}

	delete(m.reports, r.ID)
	delete(m.events, r.ID)
	return nil
}

// Snapshot reads every account, program and report under one lock
func (m *Memory) Snapshot(context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &Snapshot{
		Accounts: m.listAccounts(""),
		Programs: m.listPrograms(models.ProgramFilter{}),
		Reports:  m.listReports(models.ReportFilter{}),
	}, nil
}

// ListReportEvents returns a report's history, oldest first
func (m *Memory) ListReportEvents(_ context.Context, reportID uuid.UUID) ([]models.ReportEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.events[reportID]), nil
}

func (m *Memory) checkPayout(p Payout) error {
	if _, ok := m.accounts[p.ResearcherID]; !ok {
		return fmt.Errorf("researcher %s: %w", p.ResearcherID, models.ErrConflict)
	}
	if _, ok := m.programs[p.ProgramID]; !ok {
		return fmt.Errorf("program %s: %w", p.ProgramID, models.ErrConflict)
	}
	if _, ok := m.accounts[p.CompanyID]; !ok {
		return fmt.Errorf("company %s: %w", p.CompanyID, models.ErrConflict)
	}
	return nil
}

// applyPayout must run after checkPayout under the write lock
func (m *Memory) applyPayout(p Payout) {
	amount, count := p.delta()

	researcher := m.accounts[p.ResearcherID]
	researcher.TotalEarnings += amount
	m.accounts[researcher.ID] = researcher

	program := m.programs[p.ProgramID]
	program.AcceptedReports += count
	program.TotalBountyPaid += amount
	m.programs[program.ID] = program

	company := m.accounts[p.CompanyID]
	company.TotalBountyPaid += amount
	m.accounts[company.ID] = company
}

func cloneProgram(p models.Program) models.Program {
	p.Scope = slices.Clone(p.Scope)
	p.OutOfScope = slices.Clone(p.OutOfScope)
	p.Rules = slices.Clone(p.Rules)
	p.RewardStructure = maps.Clone(p.RewardStructure)
	p.UnparsedSeverities = slices.Clone(p.UnparsedSeverities)
	return p
}

func cloneReport(r models.Report) models.Report {
	if r.Reward != nil {
		v := *r.Reward
		r.Reward = &v
	}
	if r.Feedback != nil {
		v := *r.Feedback
		r.Feedback = &v
	}
	if r.ReviewerID != nil {
		v := *r.ReviewerID
		r.ReviewerID = &v
	}
	return r
}
