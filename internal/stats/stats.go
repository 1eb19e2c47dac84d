// Package stats computes read-only projections over a snapshot of reports.
// Nothing here mutates its inputs.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bountyboard/bounty-server/internal/models"
)

// Timeframe selects the leaderboard window
type Timeframe string

const (
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeYear  Timeframe = "year"
	TimeframeAll   Timeframe = "all"
)

// Timeframes lists every supported window
var Timeframes = []Timeframe{TimeframeWeek, TimeframeMonth, TimeframeYear, TimeframeAll}

// ParseTimeframe maps a query value to a Timeframe. Empty means all.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(s); tf {
	case TimeframeWeek, TimeframeMonth, TimeframeYear, TimeframeAll:
		return tf, nil
	case "":
		return TimeframeAll, nil
	default:
		return "", fmt.Errorf("unknown timeframe %q: %w", s, models.ErrValidation)
	}
}

// Cutoff returns the earliest time inside the window and false for "all"
func (tf Timeframe) Cutoff(now time.Time) (time.Time, bool) {
	switch tf {
	case TimeframeWeek:
		return now.AddDate(0, 0, -7), true
	case TimeframeMonth:
		return now.AddDate(0, 0, -30), true
	case TimeframeYear:
		return now.AddDate(0, 0, -365), true
	default:
		return time.Time{}, false
	}
}

// Count tallies reports by status
func Count(reports []models.Report) models.ReportCounts {
	var c models.ReportCounts
	for _, r := range reports {
		c.Total++
		switch r.Status {
		case models.StatusPendingReview:
			c.Pending++
		case models.StatusInReview:
			c.InReview++
		case models.StatusAccepted:
			c.Accepted++
		case models.StatusRejected:
			c.Rejected++
		case models.StatusDuplicate:
			c.Duplicate++
		case models.StatusInformative:
			c.Informative++
		case models.StatusNotApplicable:
			c.NotApplicable++
		}
	}
	return c
}

// AcceptedRewards sums the reward of every Accepted report
func AcceptedRewards(reports []models.Report) int64 {
	var sum int64
	for _, r := range reports {
		if r.Status == models.StatusAccepted && r.Reward != nil {
			sum += *r.Reward
		}
	}
	return sum
}

// ResearcherSummary restricts reports to one researcher and summarises them
func ResearcherSummary(reports []models.Report, researcherID uuid.UUID) models.ResearcherStats {
	own := filter(reports, func(r models.Report) bool { return r.ResearcherID == researcherID })
	return models.ResearcherStats{
		ResearcherID:  researcherID,
		ReportCounts:  Count(own),
		TotalEarnings: AcceptedRewards(own),
	}
}

// CompanySummary restricts reports to one company's programs and summarises them
func CompanySummary(reports []models.Report, companyID uuid.UUID) models.CompanyStats {
	own := filter(reports, func(r models.Report) bool { return r.CompanyID == companyID })
	return models.CompanyStats{
		CompanyID:       companyID,
		ReportCounts:    Count(own),
		TotalBountyPaid: AcceptedRewards(own),
	}
}

// Leaderboard ranks researchers by earnings over the reports updated inside
// the timeframe. Ties go to more reports, then to the lower identity.
// names maps researcher ids to the identity shown; unknown ids fall back to
// the id itself.
func Leaderboard(reports []models.Report, names map[uuid.UUID]string, tf Timeframe, now time.Time) []models.LeaderboardEntry {
	cutoff, bounded := tf.Cutoff(now)

	byResearcher := make(map[uuid.UUID]*models.LeaderboardEntry)
	for _, r := range reports {
		if bounded && r.UpdatedAt.Before(cutoff) {
			continue
		}

		e, ok := byResearcher[r.ResearcherID]
		if !ok {
			identity, known := names[r.ResearcherID]
			if !known {
				identity = r.ResearcherID.String()
			}
			e = &models.LeaderboardEntry{ResearcherID: r.ResearcherID, Identity: identity}
			byResearcher[r.ResearcherID] = e
		}

		e.TotalReports++
		if r.Status == models.StatusAccepted {
			e.Accepted++
			if r.Reward != nil {
				e.Earnings += *r.Reward
			}
		}
	}

	entries := make([]models.LeaderboardEntry, 0, len(byResearcher))
	for _, e := range byResearcher {
		entries = append(entries, *e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Earnings != b.Earnings {
			return a.Earnings > b.Earnings
		}
		if a.TotalReports != b.TotalReports {
			return a.TotalReports > b.TotalReports
		}
		return a.Identity < b.Identity
	})

	return entries
}

// Analytics returns report distributions by severity, category and status
func Analytics(reports []models.Report) models.Analytics {
	a := models.Analytics{
		BySeverity: make(map[models.Severity]int),
		ByCategory: make(map[string]int),
		ByStatus:   make(map[models.Status]int),
	}
	for _, r := range reports {
		a.BySeverity[r.Severity]++
		a.ByCategory[r.Category]++
		a.ByStatus[r.Status]++
	}
	return a
}

func filter(reports []models.Report, keep func(models.Report) bool) []models.Report {
	var out []models.Report
	for _, r := range reports {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
