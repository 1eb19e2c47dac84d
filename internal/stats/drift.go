package stats

import (
	"github.com/google/uuid"

	"github.com/bountyboard/bounty-server/internal/models"
)

// Drift recomputes the reward-derived counters from reports and returns every
// stored counter that disagrees. Submission counters are not checked because
// deleting a report does not decrement them.
func Drift(accounts []models.Account, programs []models.Program, reports []models.Report) []models.CounterDrift {
	earnings := make(map[uuid.UUID]int64)
	companyPaid := make(map[uuid.UUID]int64)
	programPaid := make(map[uuid.UUID]int64)
	programAccepted := make(map[uuid.UUID]int64)

	for _, r := range reports {
		if r.Status != models.StatusAccepted {
			continue
		}
		var amount int64
		if r.Reward != nil {
			amount = *r.Reward
		}
		earnings[r.ResearcherID] += amount
		companyPaid[r.CompanyID] += amount
		programPaid[r.ProgramID] += amount
		programAccepted[r.ProgramID]++
	}

	var drift []models.CounterDrift
	check := func(entity string, id uuid.UUID, counter string, stored, computed int64) {
		if stored != computed {
			drift = append(drift, models.CounterDrift{
				Entity:   entity,
				ID:       id,
				Counter:  counter,
				Stored:   stored,
				Computed: computed,
			})
		}
	}

	for _, a := range accounts {
		switch a.Role {
		case models.RoleResearcher:
			check("account", a.ID, "total_earnings", a.TotalEarnings, earnings[a.ID])
		case models.RoleCompany:
			check("account", a.ID, "total_bounty_paid", a.TotalBountyPaid, companyPaid[a.ID])
		}
	}

	for _, p := range programs {
		check("program", p.ID, "accepted_reports", p.AcceptedReports, programAccepted[p.ID])
		check("program", p.ID, "total_bounty_paid", p.TotalBountyPaid, programPaid[p.ID])
	}

	return drift
}
