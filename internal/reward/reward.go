// Package reward derives numeric bounty bounds from the free-text reward
// structure companies attach to their programs, e.g. "$500 - $2,000".
package reward

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bountyboard/bounty-server/internal/models"
)

var (
	lowerPattern = regexp.MustCompile(`\$\s*(\d[\d,]*)`)
	rangePattern = regexp.MustCompile(`\$\s*(\d[\d,]*)\s*[-–]\s*\$\s*(\d[\d,]*)`)
)

// Bounds is the outcome of ComputeBounty.
// MinBounty <= MaxBounty is not guaranteed when entries fail to parse.
type Bounds struct {
	MinBounty int64
	MaxBounty int64
	// Unparsed lists the severities whose entry did not contain a full
	// "$<lower> - $<upper>" range, most severe first.
	Unparsed []models.Severity
}

// Range converts b into its API representation
func (b Bounds) Range() models.BountyRange {
	return models.BountyRange{MinBounty: b.MinBounty, MaxBounty: b.MaxBounty, Unparsed: b.Unparsed}
}

// ComputeBounty returns the minimum lower bound and maximum upper bound over
// all entries of the structure. A bound that cannot be found contributes 0.
func ComputeBounty(structure map[models.Severity]string) Bounds {
	var b Bounds
	first := true

	for _, sev := range models.Severities {
		text, ok := structure[sev]
		if !ok {
			continue
		}

		lower, upper, complete := parseEntry(text)
		if !complete {
			b.Unparsed = append(b.Unparsed, sev)
		}

		if first || lower < b.MinBounty {
			b.MinBounty = lower
		}
		if first || upper > b.MaxBounty {
			b.MaxBounty = upper
		}
		first = false
	}

	return b
}

// parseEntry extracts the bounds of one entry. complete is false when the
// range pattern is absent or either number does not fit an int64.
func parseEntry(text string) (lower, upper int64, complete bool) {
	lowerOK := true
	if m := lowerPattern.FindStringSubmatch(text); m != nil {
		lower, lowerOK = parseAmount(m[1])
	}

	m := rangePattern.FindStringSubmatch(text)
	if m == nil {
		return lower, 0, false
	}

	upper, ok := parseAmount(m[2])
	if !ok {
		return lower, 0, false
	}
	return lower, upper, lowerOK
}

func parseAmount(digits string) (int64, bool) {
	n, err := strconv.ParseInt(strings.ReplaceAll(digits, ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
