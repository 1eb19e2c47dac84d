package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/metrics"
	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/repository"
	"github.com/bountyboard/bounty-server/internal/stats"
)

// LeaderboardCache stores computed leaderboards between requests.
// Invalidate advances the generation; Set stores a board only while the
// generation still equals the one read before computing it.
type LeaderboardCache interface {
	Get(ctx context.Context, tf stats.Timeframe) ([]models.LeaderboardEntry, bool, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, tf stats.Timeframe, generation int64, entries []models.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

// ReportService runs the report lifecycle: submission, review transitions
// and the earnings and bounty bookkeeping that goes with them.
type ReportService struct {
	store   repository.Store
	cache   LeaderboardCache
	metrics *metrics.Lifecycle
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewReportService creates a new report service. cache and m may be nil.
func NewReportService(store repository.Store, cache LeaderboardCache, m *metrics.Lifecycle, logger *zap.SugaredLogger) *ReportService {
	return &ReportService{store: store, cache: cache, metrics: m, logger: logger, now: time.Now}
}

// Submit files a new report against a program
func (s *ReportService) Submit(ctx context.Context, actor models.Actor, sub *models.ReportSubmission) (*models.Report, error) {
	r, err := s.submit(ctx, actor, sub)
	if err != nil {
		s.metrics.Failed("submit", failureReason(err))
		return nil, err
	}
	s.metrics.Submitted(r.Severity)
	s.logger.Infow("Report submitted",
		"report_id", r.ID,
		"program_id", r.ProgramID,
		"severity", r.Severity,
	)
	s.invalidateLeaderboard(ctx)
	return r, nil
}

func (s *ReportService) submit(ctx context.Context, actor models.Actor, sub *models.ReportSubmission) (*models.Report, error) {
	if actor.Role != models.RoleResearcher {
		return nil, fmt.Errorf("only researchers submit reports: %w", models.ErrForbidden)
	}
	trimSubmission(sub)
	if err := validateStruct(sub); err != nil {
		return nil, err
	}

	program, err := s.store.GetProgram(ctx, sub.ProgramID)
	if err != nil {
		return nil, err
	}
	if !program.Active {
		return nil, fmt.Errorf("program %s is not accepting reports: %w", program.ID, models.ErrValidation)
	}

	now := s.now().UTC()
	r := &models.Report{
		ID:               uuid.New(),
		ResearcherID:     actor.ID,
		ProgramID:        program.ID,
		CompanyID:        program.CompanyID,
		Title:            sub.Title,
		Description:      sub.Description,
		StepsToReproduce: sub.StepsToReproduce,
		Impact:           sub.Impact,
		Category:         sub.Category,
		Severity:         sub.Severity,
		Status:           models.StatusPendingReview,
		SubmittedAt:      now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateReport(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Transition moves a report to a new status. Acceptance pays the reward out
// to the researcher, program and company totals in the same write.
func (s *ReportService) Transition(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.TransitionRequest) (*models.Report, error) {
	r, t, err := s.transition(ctx, actor, id, req)
	if err != nil {
		s.metrics.Failed("transition", failureReason(err))
		return nil, err
	}

	var paid int64
	if t.Payout != nil {
		paid = t.Payout.Amount
	}
	s.metrics.Transitioned(t.From, t.To, paid)
	s.logger.Infow("Report transitioned",
		"report_id", id,
		"from", t.From,
		"to", t.To,
		"actor_id", actor.ID,
		"reward", paid,
	)

	s.invalidateLeaderboard(ctx)
	return r, nil
}

func (s *ReportService) transition(ctx context.Context, actor models.Actor, id uuid.UUID, req *models.TransitionRequest) (*models.Report, repository.Transition, error) {
	var t repository.Transition

	if !req.Status.Valid() {
		return nil, t, fmt.Errorf("unknown status %q: %w", req.Status, models.ErrValidation)
	}
	if actor.Role != models.RoleTriage && actor.Role != models.RoleCompany {
		return nil, t, fmt.Errorf("role %s cannot review reports: %w", actor.Role, models.ErrForbidden)
	}

	current, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, t, err
	}
	if actor.Role == models.RoleCompany && current.CompanyID != actor.ID {
		return nil, t, fmt.Errorf("report %s belongs to another company: %w", id, models.ErrForbidden)
	}

	if err := checkReward(req); err != nil {
		return nil, t, err
	}
	if !models.CanTransition(current.Status, req.Status) {
		return nil, t, fmt.Errorf("cannot move report from %s to %s: %w", current.Status, req.Status, models.ErrInvalidTransition)
	}

	t = repository.Transition{
		ReportID:    id,
		From:        current.Status,
		To:          req.Status,
		Actor:       actor,
		Reward:      req.Reward,
		Feedback:    req.Feedback,
		At:          s.now().UTC(),
		CountReview: actor.Role == models.RoleTriage && req.Status.Terminal(),
	}
	if req.Status == models.StatusAccepted {
		t.Payout = &repository.Payout{
			ResearcherID: current.ResearcherID,
			ProgramID:    current.ProgramID,
			CompanyID:    current.CompanyID,
			Amount:       *req.Reward,
		}
	}

	r, err := s.store.ApplyTransition(ctx, t)
	if err != nil {
		return nil, t, err
	}
	return r, t, nil
}

func checkReward(req *models.TransitionRequest) error {
	if req.Reward != nil && *req.Reward < 0 {
		return fmt.Errorf("reward must not be negative: %w", models.ErrValidation)
	}
	if req.Status == models.StatusAccepted && req.Reward == nil {
		return fmt.Errorf("accepting a report requires a reward: %w", models.ErrValidation)
	}
	if req.Status != models.StatusAccepted && req.Reward != nil {
		return fmt.Errorf("a reward is only allowed when accepting: %w", models.ErrValidation)
	}
	return nil
}

// List returns the reports visible to the actor, narrowed by filter.
// Researchers see their own, companies see their programs', triage sees all.
func (s *ReportService) List(ctx context.Context, actor models.Actor, f models.ReportFilter) ([]models.Report, error) {
	switch actor.Role {
	case models.RoleResearcher:
		f.ResearcherID = &actor.ID
	case models.RoleCompany:
		f.CompanyID = &actor.ID
	case models.RoleTriage:
	default:
		return nil, fmt.Errorf("unknown role %q: %w", actor.Role, models.ErrForbidden)
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", *f.Status, models.ErrValidation)
	}
	if f.Severity != nil && !f.Severity.Valid() {
		return nil, fmt.Errorf("unknown severity %q: %w", *f.Severity, models.ErrValidation)
	}
	return s.store.ListReports(ctx, f)
}

// Get returns one report if the actor may see it
func (s *ReportService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Report, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(actor, r) {
		return nil, fmt.Errorf("report %s: %w", id, models.ErrForbidden)
	}
	return r, nil
}

// UpdateContent lets the submitting researcher edit a report still pending review
func (s *ReportService) UpdateContent(ctx context.Context, actor models.Actor, id uuid.UUID, upd *models.ReportContentUpdate) (*models.Report, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleResearcher || r.ResearcherID != actor.ID {
		return nil, fmt.Errorf("only the submitter edits a report: %w", models.ErrForbidden)
	}
	if r.Status != models.StatusPendingReview {
		return nil, fmt.Errorf("report %s is %s and no longer editable: %w", id, r.Status, models.ErrConflict)
	}

	upd.Title = strings.TrimSpace(upd.Title)
	upd.Description = strings.TrimSpace(upd.Description)
	upd.StepsToReproduce = strings.TrimSpace(upd.StepsToReproduce)
	upd.Impact = strings.TrimSpace(upd.Impact)
	upd.Category = strings.TrimSpace(upd.Category)
	if err := validateStruct(upd); err != nil {
		return nil, err
	}

	r.Title = upd.Title
	r.Description = upd.Description
	r.StepsToReproduce = upd.StepsToReproduce
	r.Impact = upd.Impact
	r.Category = upd.Category
	r.Severity = upd.Severity
	r.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateReportContent(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes a report. Researchers may withdraw their own pending
// reports; triage may delete any report. Deleting an accepted report
// reverses its payout. Submission counters are kept.
func (s *ReportService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return err
	}

	switch actor.Role {
	case models.RoleResearcher:
		if r.ResearcherID != actor.ID {
			return fmt.Errorf("report %s belongs to another researcher: %w", id, models.ErrForbidden)
		}
		if r.Status != models.StatusPendingReview {
			return fmt.Errorf("report %s is %s and can no longer be withdrawn: %w", id, r.Status, models.ErrConflict)
		}
	case models.RoleTriage:
	default:
		return fmt.Errorf("role %s cannot delete reports: %w", actor.Role, models.ErrForbidden)
	}

	rm := repository.Removal{ReportID: id, Expected: r.Status}
	if r.Status == models.StatusAccepted && r.Reward != nil {
		rm.Refund = &repository.Payout{
			ResearcherID: r.ResearcherID,
			ProgramID:    r.ProgramID,
			CompanyID:    r.CompanyID,
			Amount:       *r.Reward,
			Sign:         -1,
		}
	}
	if err := s.store.DeleteReport(ctx, rm); err != nil {
		return err
	}

	s.logger.Infow("Report deleted", "report_id", id, "status", r.Status, "actor_id", actor.ID)
	s.invalidateLeaderboard(ctx)
	return nil
}

// Events returns a report's review history if the actor may see the report
func (s *ReportService) Events(ctx context.Context, actor models.Actor, id uuid.UUID) ([]models.ReportEvent, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.store.ListReportEvents(ctx, id)
}

func (s *ReportService) invalidateLeaderboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warnw("Failed to invalidate leaderboard cache", "error", err)
	}
}

func visible(actor models.Actor, r *models.Report) bool {
	switch actor.Role {
	case models.RoleTriage:
		return true
	case models.RoleCompany:
		return r.CompanyID == actor.ID
	case models.RoleResearcher:
		return r.ResearcherID == actor.ID
	}
	return false
}

func trimSubmission(sub *models.ReportSubmission) {
	sub.Title = strings.TrimSpace(sub.Title)
	sub.Description = strings.TrimSpace(sub.Description)
	sub.StepsToReproduce = strings.TrimSpace(sub.StepsToReproduce)
	sub.Impact = strings.TrimSpace(sub.Impact)
	sub.Category = strings.TrimSpace(sub.Category)
}
