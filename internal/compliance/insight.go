package compliance

import (
	"fmt"
	"strings"

	"github.com/coverdesk/coverdesk/internal/model"
)

// maxNamedGaps caps how many gaps an insight names before summarizing the
// rest as a count.
const maxNamedGaps = 3

// GenerateInsight renders a ComplianceResult as a short plain-English
// summary for display. It never fails: an unrecognized status falls back
// to a generic deficiency message.
func GenerateInsight(r model.ComplianceResult) string {
	switch r.OverallStatus {
	case model.StatusCompliant:
		return compliantInsight(r)
	case model.StatusExpired:
		return expiredInsight(r)
	case model.StatusNonCompliant:
		return nonCompliantInsight(r)
	default:
		return "Coverage could not be confirmed as compliant; review the certificate and requirements."
	}
}

func compliantInsight(r model.ComplianceResult) string {
	msg := "All required coverages are in place."
	if warn := expiringClause(r); warn != "" {
		msg += " " + warn
	}
	return msg
}

func expiredInsight(r model.ComplianceResult) string {
	var expired []string
	others := 0
	for _, g := range r.Gaps {
		if g.Advisory {
			continue
		}
		if g.Reason == model.GapExpired {
			expired = append(expired, g.Coverage.Display())
		} else {
			others++
		}
	}
	msg := fmt.Sprintf("Certificate expired: %s no longer in force.", joinNames(expired))
	if others > 0 {
		msg += fmt.Sprintf(" %s also found.", countNoun(others, "other coverage gap"))
	}
	return msg
}

func nonCompliantInsight(r model.ComplianceResult) string {
	var descriptions []string
	total := 0
	for _, g := range r.Gaps {
		if g.Advisory {
			continue
		}
		total++
		if len(descriptions) < maxNamedGaps {
			descriptions = append(descriptions, describeGap(g))
		}
	}
	if total == 0 {
		// Defensive: status says non-compliant but no mandatory gaps.
		return "Coverage could not be confirmed as compliant; review the certificate and requirements."
	}
	msg := countNoun(total, "coverage gap") + ": " + strings.Join(descriptions, "; ")
	if extra := total - len(descriptions); extra > 0 {
		msg += fmt.Sprintf("; and %d more", extra)
	}
	msg += "."
	if warn := expiringClause(r); warn != "" {
		msg += " " + warn
	}
	return msg
}

// describeGap renders one gap as a short clause.
func describeGap(g model.Gap) string {
	name := g.Coverage.Display()
	switch g.Reason {
	case model.GapMissing:
		return name + " not on certificate"
	case model.GapAmountBelowMinimum:
		return fmt.Sprintf("%s limit %s below required %s", name, g.Actual, g.Required)
	case model.GapAggregateBelowMinimum:
		return fmt.Sprintf("%s aggregate %s below required %s", name, g.Actual, g.Required)
	case model.GapEndorsementMissing:
		return fmt.Sprintf("%s missing %q endorsement", name, g.Required)
	case model.GapExpired:
		return name + " expired"
	default:
		return name + " deficient"
	}
}

// expiringClause renders the informational expiring-soon warning, or ""
// when nothing is inside the window.
func expiringClause(r model.ComplianceResult) string {
	if len(r.ExpiringSoon) == 0 {
		return ""
	}
	names := make([]string, len(r.ExpiringSoon))
	for i, c := range r.ExpiringSoon {
		names[i] = c.Display()
	}
	verb := "expires"
	if len(names) > 1 {
		verb = "expire"
	}
	return fmt.Sprintf("Note: %s %s within %d days.", joinNames(names), verb, r.WarnWindowDays)
}

// joinNames joins a name list as "a", "a and b", or "a, b and c".
func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return "coverage"
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// countNoun renders "1 coverage gap" / "3 coverage gaps".
func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
