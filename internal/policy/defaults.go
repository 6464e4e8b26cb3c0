package policy

import (
	"orderflow/internal"
	"orderflow/internal/snapshot"
)

const DefaultPolicyID = "abh-po-control-surface"

// DefaultConfig is the compiled-in policy used when no snapshot is stored.
func DefaultConfig() Config {
	return Config{
		Meta: Meta{
			PolicyID:  DefaultPolicyID,
			Version:   snapshot.BaselineVersion,
			Changelog: []string{"Initial policy created from Control Surface template"},
		},
		Defaults: Defaults{
			PhaseMinConfidenceAuto: map[internal.Phase]float64{
				internal.Phase1: 0.90,
				internal.Phase2: 0.95,
				internal.Phase3: 0.98,
			},
			DefaultLane: internal.LaneAssist,
			LaneForDocType: map[internal.DocType]internal.Lane{
				internal.DocCreditMemo: internal.LaneReview,
			},
			LaneForItemClass: map[internal.ItemClass]internal.Lane{
				internal.ClassCatalog:    internal.LaneAuto,
				internal.ClassConfigured: internal.LaneReview,
				internal.ClassCustom:     internal.LaneReview,
			},
		},
		EdgeCaseCodes: append([]internal.EdgeCase(nil), internal.EdgeCaseVocabulary...),
		Rules: []Rule{
			{
				RuleID:   "R-100",
				Enabled:  true,
				Priority: 100,
				Scope:    Scope{DocTypes: []internal.DocType{internal.DocCreditMemo}},
				When:     When{EdgeCaseIncludesAny: []internal.EdgeCase{internal.EdgeCreditMemo}},
				Then: Action{
					Lane:                  internal.LaneReview,
					Reason:                "Credit memo requires RGA/invoice linkage review",
					FieldsRequiringReview: []string{"doc_type", "customer_order_no", "line_items"},
				},
			},
			{
				RuleID:   "R-200",
				Enabled:  true,
				Priority: 90,
				When:     When{EdgeCaseIncludesAny: []internal.EdgeCase{internal.EdgeZeroDollar}},
				Then: Action{
					Lane:                  internal.LaneReview,
					Reason:                "Zero-dollar line requires warranty/replacement classification",
					FieldsRequiringReview: []string{"unit_price", "extended_price", "item_class"},
				},
			},
			{
				RuleID:   "R-300",
				Enabled:  true,
				Priority: 80,
				When:     When{EdgeCaseIncludesAny: []internal.EdgeCase{internal.EdgeSpecialLayout, internal.EdgeCustomLength}},
				Then: Action{
					Lane:                  internal.LaneReview,
					Reason:                "Special layout / custom dimension present",
					FieldsRequiringReview: []string{"customer_item_desc_raw"},
				},
			},
		},
	}
}
