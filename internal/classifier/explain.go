package classifier

import (
	"fmt"
	"math"
	"sort"

	"civic_followup_engine/internal/domain/decision"
)

// rankImportance orders features by absolute contribution, largest first.
// Ties keep decision.FeatureOrder.
func rankImportance(contrib [decision.NumFeatures]float64) []decision.FeatureImportance {
	out := make([]decision.FeatureImportance, decision.NumFeatures)
	for j, name := range decision.FeatureOrder {
		out[j] = decision.FeatureImportance{Feature: name, Importance: math.Abs(contrib[j])}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Importance > out[b].Importance
	})
	return out
}

func explanationText(action decision.Action, f decision.Features, top decision.Feature) string {
	if action == decision.ActionEscalate {
		switch top {
		case decision.FeatureTimeSinceSLABreach:
			if f.TimeSinceSLABreach > 0 {
				return fmt.Sprintf("Escalation recommended because the SLA has been breached by %.1f hours.", f.TimeSinceSLABreach)
			}
			return fmt.Sprintf("Escalation recommended although the SLA deadline is still %.1f hours away.", -f.TimeSinceSLABreach)
		case decision.FeatureCategoryPriority:
			return fmt.Sprintf("Escalation recommended due to high priority level (%d/10).", f.CategoryPriority)
		case decision.FeatureNumberOfFollowups:
			return fmt.Sprintf("Escalation recommended after %d follow-up attempts.", f.NumberOfFollowups)
		case decision.FeatureDaysSinceSubmission:
			return fmt.Sprintf("Escalation recommended because the complaint has been pending for %.1f days.", f.DaysSinceSubmission)
		default:
			return "Escalation recommended based on overall complaint metrics."
		}
	}

	switch top {
	case decision.FeatureTimeSinceSLABreach:
		if f.TimeSinceSLABreach <= 0 {
			return fmt.Sprintf("Follow-up email recommended. %.1f hours remain before the SLA deadline.", -f.TimeSinceSLABreach)
		}
		return fmt.Sprintf("Follow-up email recommended. The SLA was breached %.1f hours ago but escalation is not yet warranted.", f.TimeSinceSLABreach)
	case decision.FeatureDaysSinceSubmission:
		return fmt.Sprintf("Follow-up email recommended. The complaint was submitted %.1f days ago and escalation is not yet warranted.", f.DaysSinceSubmission)
	default:
		return "Follow-up email recommended. Issue is within SLA parameters and escalation not yet warranted."
	}
}
