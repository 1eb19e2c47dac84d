package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/repository"
	"github.com/bountyboard/bounty-server/internal/stats"
)

// StatsService serves read-only aggregate views over reports
type StatsService struct {
	store  repository.Store
	cache  LeaderboardCache
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewStatsService creates a new stats service. cache may be nil.
func NewStatsService(store repository.Store, cache LeaderboardCache, logger *zap.SugaredLogger) *StatsService {
	return &StatsService{store: store, cache: cache, logger: logger, now: time.Now}
}

// ResearcherStats summarises one researcher's reports
func (s *StatsService) ResearcherStats(ctx context.Context, researcherID uuid.UUID) (*models.ResearcherStats, error) {
	account, err := s.store.GetAccount(ctx, researcherID)
	if err != nil {
		return nil, err
	}
	if account.Role != models.RoleResearcher {
		return nil, fmt.Errorf("account %s is not a researcher: %w", researcherID, models.ErrNotFound)
	}

	reports, err := s.store.ListReports(ctx, models.ReportFilter{ResearcherID: &researcherID})
	if err != nil {
		return nil, err
	}
	summary := stats.ResearcherSummary(reports, researcherID)
	return &summary, nil
}

// CompanyStats summarises reports against a company's programs. Only the
// company itself and triage may read it.
func (s *StatsService) CompanyStats(ctx context.Context, actor models.Actor, companyID uuid.UUID) (*models.CompanyStats, error) {
	if actor.Role != models.RoleTriage && actor.ID != companyID {
		return nil, fmt.Errorf("company stats are private: %w", models.ErrForbidden)
	}

	account, err := s.store.GetAccount(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if account.Role != models.RoleCompany {
		return nil, fmt.Errorf("account %s is not a company: %w", companyID, models.ErrNotFound)
	}

	reports, err := s.store.ListReports(ctx, models.ReportFilter{CompanyID: &companyID})
	if err != nil {
		return nil, err
	}
	summary := stats.CompanySummary(reports, companyID)
	return &summary, nil
}

// Leaderboard ranks researchers by earnings within a timeframe.
// Cache failures are logged and the board is recomputed.
func (s *StatsService) Leaderboard(ctx context.Context, timeframe string) ([]models.LeaderboardEntry, error) {
	tf, err := stats.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		entries, found, err := s.cache.Get(ctx, tf)
		if err != nil {
			s.logger.Warnw("Leaderboard cache read failed", "timeframe", tf, "error", err)
		} else if found {
			return entries, nil
		}

		// read before the reports so a write landing mid-computation
		// keeps this board out of the cache
		generation, err = s.cache.Generation(ctx)
		if err != nil {
			s.logger.Warnw("Leaderboard cache generation read failed", "error", err)
		}
		cacheable = err == nil
	}

	reports, err := s.store.ListReports(ctx, models.ReportFilter{})
	if err != nil {
		return nil, err
	}
	researchers, err := s.store.ListAccounts(ctx, models.RoleResearcher)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(researchers))
	for _, a := range researchers {
		names[a.ID] = a.Username
	}

	entries := stats.Leaderboard(reports, names, tf, s.now())

	if cacheable {
		if err := s.cache.Set(ctx, tf, generation, entries); err != nil {
			s.logger.Warnw("Leaderboard cache write failed", "timeframe", tf, "error", err)
		}
	}
	return entries, nil
}

// Analytics returns report distributions. Companies see their own programs,
// triage sees everything.
func (s *StatsService) Analytics(ctx context.Context, actor models.Actor) (*models.Analytics, error) {
	var f models.ReportFilter
	switch actor.Role {
	case models.RoleTriage:
	case models.RoleCompany:
		f.CompanyID = &actor.ID
	default:
		return nil, fmt.Errorf("role %s cannot read analytics: %w", actor.Role, models.ErrForbidden)
	}

	reports, err := s.store.ListReports(ctx, f)
	if err != nil {
		return nil, err
	}
	a := stats.Analytics(reports)
	return &a, nil
}

// Consistency recomputes every stored counter from the reports and returns
// the ones that disagree. Counters and reports come from one snapshot.
func (s *StatsService) Consistency(ctx context.Context, actor models.Actor) ([]models.CounterDrift, error) {
	if actor.Role != models.RoleTriage {
		return nil, fmt.Errorf("consistency report is triage only: %w", models.ErrForbidden)
	}

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	drift := stats.Drift(snap.Accounts, snap.Programs, snap.Reports)
	if len(drift) > 0 {
		s.logger.Warnw("Counter drift detected", "mismatches", len(drift))
	}
	return drift, nil
}
