// Package decision holds the value types shared by the feature extractor,
// the classifier and the workflow: feature vectors, actions and explanations.
package decision

// Action is what the engine decides to do with an open complaint.
type Action string

const (
	ActionFollowUp Action = "follow_up"
	ActionEscalate Action = "escalate"
)

// Feature names one input of the decision model.
type Feature string

const (
	FeatureTimeSinceSLABreach  Feature = "time_since_sla_breach"
	FeatureCategoryPriority    Feature = "category_priority"
	FeatureNumberOfFollowups   Feature = "number_of_followups"
	FeatureDaysSinceSubmission Feature = "days_since_submission"
	FeatureStatusScore         Feature = "status_score"
)

// NumFeatures is the size of the feature vector.
const NumFeatures = 5

// FeatureOrder is the column order of Vector.
var FeatureOrder = [NumFeatures]Feature{
	FeatureTimeSinceSLABreach,
	FeatureCategoryPriority,
	FeatureNumberOfFollowups,
	FeatureDaysSinceSubmission,
	FeatureStatusScore,
}

// Features is the per-evaluation input of the classifier. It is never persisted.
type Features struct {
	TimeSinceSLABreach  float64 `json:"time_since_sla_breach"` // hours, negative before the deadline
	CategoryPriority    int     `json:"category_priority"`
	NumberOfFollowups   int     `json:"number_of_followups"`
	DaysSinceSubmission float64 `json:"days_since_submission"`
	StatusScore         int     `json:"status_score"`
}

// Vector returns the features in FeatureOrder.
func (f Features) Vector() [NumFeatures]float64 {
	return [NumFeatures]float64{
		f.TimeSinceSLABreach,
		float64(f.CategoryPriority),
		float64(f.NumberOfFollowups),
		f.DaysSinceSubmission,
		float64(f.StatusScore),
	}
}

// EscalationRuleMet is the ground-truth policy the classifier is trained to approximate.
func (f Features) EscalationRuleMet() bool {
	return f.TimeSinceSLABreach > 24 ||
		(f.CategoryPriority >= 8 && f.NumberOfFollowups >= 2) ||
		f.DaysSinceSubmission > 14
}
