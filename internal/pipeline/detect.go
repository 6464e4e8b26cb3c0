package pipeline

import (
	"regexp"
	"strings"

	"orderflow/internal"
)

// EdgeCaseInput is the subset of a line the detector looks at.
type EdgeCaseInput struct {
	DocID         string
	DocType       internal.DocType
	ItemNumber    string
	Description   string
	UnitPrice     *float64
	ExtendedPrice *float64
}

func EdgeCaseInputFrom(l internal.OrderLine) EdgeCaseInput {
	return EdgeCaseInput{
		DocID:         l.DocID,
		DocType:       l.DocType,
		ItemNumber:    l.ItemNumber,
		Description:   l.Description,
		UnitPrice:     l.UnitPrice,
		ExtendedPrice: l.ExtendedPrice,
	}
}

var (
	dimensionPattern = regexp.MustCompile(`(?i)\bCUT\s*TO\b|(\d+\s*-\s*\d+/\d+)|(\d+\s*/\s*\d+)\s*"`)
	wiringTerms      = []string{"ALLEGION", "WIRING", "VON DUPRIN"}
	pickupTerms      = []string{"P/U", "PICK UP", "CUSTOMER PICKUP"}
)

const creditMemoMarker = "-CM"

// DetectEdgeCases returns the flags for a line in fixed precedence order, each at most once.
func DetectEdgeCases(in EdgeCaseInput) []internal.EdgeCase {
	desc := strings.ToUpper(in.Description)
	flags := []internal.EdgeCase{}

	if in.DocType == internal.DocCreditMemo || strings.Contains(strings.ToUpper(in.DocID), creditMemoMarker) {
		flags = append(flags, internal.EdgeCreditMemo)
	}
	if strings.Contains(desc, "RGA") {
		flags = append(flags, internal.EdgeRGA)
	}
	if strings.Contains(desc, "SPECIAL LAYOUT") {
		flags = append(flags, internal.EdgeSpecialLayout)
	}
	if dimensionPattern.MatchString(in.Description) {
		flags = append(flags, internal.EdgeCustomLength)
	}
	if isZero(in.UnitPrice) || isZero(in.ExtendedPrice) {
		flags = append(flags, internal.EdgeZeroDollar)
	}
	if containsAny(desc, wiringTerms) {
		flags = append(flags, internal.EdgeWiringSpec)
	}
	if containsAny(desc, pickupTerms) {
		flags = append(flags, internal.EdgeCustomerPickup)
	}
	return flags
}

// DeriveItemClass: CUSTOM for layout, dimension or wiring flags, CATALOG when an item number exists.
func DeriveItemClass(flags []internal.EdgeCase, itemNumber string) internal.ItemClass {
	for _, f := range flags {
		switch f {
		case internal.EdgeSpecialLayout, internal.EdgeCustomLength, internal.EdgeWiringSpec:
			return internal.ClassCustom
		}
	}
	if strings.TrimSpace(itemNumber) != "" {
		return internal.ClassCatalog
	}
	return internal.ClassUnknown
}

// LegacyFlagSlots fills the three discrete edge-case columns of the control surface.
func LegacyFlagSlots(flags []internal.EdgeCase) [3]string {
	var out [3]string
	for i := 0; i < len(flags) && i < len(out); i++ {
		out[i] = string(flags[i])
	}
	return out
}

func isZero(v *float64) bool {
	return v != nil && *v == 0
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
