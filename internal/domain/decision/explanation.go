package decision

// FeatureImportance is the absolute attribution of one feature.
type FeatureImportance struct {
	Feature    Feature `json:"feature"`
	Importance float64 `json:"importance"`
}

// Explanation describes why the classifier chose an action.
// Attributions are signed: positive values push toward escalation.
// Importance is sorted by descending absolute attribution and its first
// entry is always TopFeature.
type Explanation struct {
	Action       Action              `json:"action"`
	Confidence   float64             `json:"confidence"`
	Attributions map[Feature]float64 `json:"attributions"`
	Importance   []FeatureImportance `json:"feature_importance"`
	TopFeature   Feature             `json:"top_feature"`
	Text         string              `json:"explanation_text"`
}
