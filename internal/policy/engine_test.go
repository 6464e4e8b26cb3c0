package policy

import (
	"math"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"orderflow/internal"
	"orderflow/internal/util"
)

func mkLine(mut func(*internal.RoutedOrderLine)) internal.RoutedOrderLine {
	l := internal.RoutedOrderLine{}
	l.DocID = "SO-1001"
	l.DocType = internal.DocSalesOrder
	l.CustomerName = "ACME DOOR"
	l.LineNo = 1
	l.ItemNumber = "ND80PD"
	l.Description = "ND80PD RHO 626"
	l.Quantity = util.FloatPtr(2)
	l.UnitPrice = util.FloatPtr(120)
	l.ItemClass = internal.ClassCatalog
	l.ConfidenceScore = 0.95
	if mut != nil {
		mut(&l)
	}
	return l
}

var phase1 = Context{Phase: internal.Phase1}

func TestDefaultConfigCatalogLineGoesAuto(t *testing.T) {
	e := NewEngine(DefaultConfig())
	l := mkLine(nil)
	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneAuto, d.Lane)
	require.Equal(t, "Default lane for item_class=CATALOG", d.Reason)
	require.Equal(t, []string{MarkerItemClass}, d.AppliedRuleIDs)
	require.Equal(t, "0.1.0", d.PolicyVersion)
}

func TestConfidenceGate(t *testing.T) {
	e := NewEngine(DefaultConfig())
	l := mkLine(func(l *internal.RoutedOrderLine) { l.ConfidenceScore = 0.85 })

	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneReview, d.Lane)
	require.Equal(t, "confidence 0.85 below PHASE_1 minimum 0.90 for AUTO", d.Reason)

	l.ConfidenceScore = 0.96
	require.Equal(t, internal.LaneAuto, e.Decide(&l, Context{Phase: internal.Phase2}).Lane)
	require.Equal(t, internal.LaneReview, e.Decide(&l, Context{Phase: internal.Phase3}).Lane)
}

func TestConfidenceGateRejectsNaN(t *testing.T) {
	e := NewEngine(DefaultConfig())
	l := mkLine(func(l *internal.RoutedOrderLine) { l.ConfidenceScore = math.NaN() })

	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneReview, d.Lane)
	require.Contains(t, d.Reason, "below PHASE_1 minimum 0.90")
}

func TestZeroDollarRoutesToReview(t *testing.T) {
	e := NewEngine(DefaultConfig())
	l := mkLine(func(l *internal.RoutedOrderLine) {
		l.UnitPrice = util.FloatPtr(0)
		l.EdgeCaseFlags = []internal.EdgeCase{internal.EdgeZeroDollar}
	})
	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneReview, d.Lane)
	require.Equal(t, "Zero-dollar line requires warranty/replacement classification", d.Reason)
	require.Equal(t, []string{MarkerItemClass, "R-200"}, d.AppliedRuleIDs)
	require.Equal(t, []string{"unit_price", "extended_price", "item_class"}, d.FieldsRequiringReview)
}

func TestCreditMemoDocument(t *testing.T) {
	e := NewEngine(DefaultConfig())
	l := mkLine(func(l *internal.RoutedOrderLine) {
		l.DocType = internal.DocCreditMemo
		l.ItemClass = internal.ClassUnknown
		l.EdgeCaseFlags = []internal.EdgeCase{internal.EdgeCreditMemo}
	})
	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneReview, d.Lane)
	require.Equal(t, []string{MarkerDocType, "R-100"}, d.AppliedRuleIDs)
}

func TestItemClassDefaultOverridesDocTypeDefault(t *testing.T) {
	e := NewEngine(DefaultConfig())
	l := mkLine(func(l *internal.RoutedOrderLine) { l.DocType = internal.DocCreditMemo })
	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneAuto, d.Lane)
	require.Equal(t, []string{MarkerDocType, MarkerItemClass}, d.AppliedRuleIDs)
}

func TestNoDefaultsFallsBackToDefaultLane(t *testing.T) {
	e := NewEngine(DefaultConfig())
	l := mkLine(func(l *internal.RoutedOrderLine) { l.ItemClass = internal.ClassUnknown })
	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneAssist, d.Lane)
	require.Empty(t, d.AppliedRuleIDs)
}

func bareConfig(rules ...Rule) Config {
	c := DefaultConfig()
	c.Defaults.LaneForDocType = nil
	c.Defaults.LaneForItemClass = nil
	c.Rules = rules
	return c
}

func TestLowestPriorityMatchSurvives(t *testing.T) {
	e := NewEngine(bareConfig(
		Rule{RuleID: "R2", Enabled: true, Priority: 50, Then: Action{Lane: internal.LaneAuto, Reason: "low"}},
		Rule{RuleID: "R1", Enabled: true, Priority: 90, Then: Action{Lane: internal.LaneReview, Reason: "high"}},
	))
	l := mkLine(nil)
	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneAuto, d.Lane)
	require.Equal(t, "low", d.Reason)
	require.Equal(t, []string{"R1", "R2"}, d.AppliedRuleIDs)
}

func TestEqualPriorityKeepsDeclarationOrder(t *testing.T) {
	e := NewEngine(bareConfig(
		Rule{RuleID: "A", Enabled: true, Priority: 10, Then: Action{Lane: internal.LaneBlock}},
		Rule{RuleID: "B", Enabled: true, Priority: 10, Then: Action{Lane: internal.LaneReview}},
		Rule{RuleID: "OFF", Enabled: false, Priority: 1, Then: Action{Lane: internal.LaneAuto}},
	))
	l := mkLine(nil)
	d := e.Decide(&l, phase1)
	require.Equal(t, []string{"A", "B"}, d.AppliedRuleIDs)
	require.Equal(t, internal.LaneReview, d.Lane)
}

func TestRegexConditions(t *testing.T) {
	e := NewEngine(bareConfig(
		Rule{RuleID: "BAD", Enabled: true, Priority: 20, When: When{DescRegex: "(["}, Then: Action{Lane: internal.LaneBlock}},
		Rule{RuleID: "CUT", Enabled: true, Priority: 10, When: When{DescRegex: `cut\s+to`}, Then: Action{Lane: internal.LaneReview}},
		Rule{RuleID: "MARK", Enabled: true, Priority: 5, When: When{MarkRegex: "rush"}, Then: Action{Lane: internal.LaneBlock}},
	))

	l := mkLine(func(l *internal.RoutedOrderLine) { l.Description = "CLOSER ARM CUT TO 30 IN" })
	d := e.Decide(&l, phase1)
	require.Equal(t, []string{"CUT"}, d.AppliedRuleIDs)
	require.Equal(t, internal.LaneReview, d.Lane)

	// twice, so the cached non-match is exercised
	d = e.Decide(&l, phase1)
	require.Equal(t, []string{"CUT"}, d.AppliedRuleIDs)
}

func TestRequiredFieldsForAuto(t *testing.T) {
	e := NewEngine(bareConfig(
		Rule{RuleID: "R-AUTO", Enabled: true, Priority: 1, Then: Action{
			Lane:                  internal.LaneAuto,
			RequiredFieldsForAuto: []string{"finish_us_code", "qty", "no_such_field"},
		}},
	))
	l := mkLine(nil)
	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneReview, d.Lane)
	require.Equal(t, "missing required fields: finish_us_code, no_such_field", d.Reason)
}

func TestRuleMinConfidenceOverridesPhase(t *testing.T) {
	half := 0.5
	e := NewEngine(bareConfig(
		Rule{RuleID: "R", Enabled: true, Priority: 1, Then: Action{Lane: internal.LaneAuto, MinConfidence: &half}},
	))
	l := mkLine(func(l *internal.RoutedOrderLine) { l.ConfidenceScore = 0.6 })
	require.Equal(t, internal.LaneAuto, e.Decide(&l, phase1).Lane)

	l.ConfidenceScore = 0.4
	d := e.Decide(&l, phase1)
	require.Equal(t, internal.LaneReview, d.Lane)
	require.Equal(t, "confidence 0.40 below PHASE_1 minimum 0.50 for AUTO", d.Reason)
}

func TestCustomerScope(t *testing.T) {
	e := NewEngine(bareConfig(
		Rule{RuleID: "ACME", Enabled: true, Priority: 1, Scope: Scope{CustomerNames: []string{"ACME DOOR"}}, Then: Action{Lane: internal.LaneBlock}},
	))
	cases := []struct {
		lineCustomer string
		ctxCustomer  string
		applied      bool
	}{
		{"ACME DOOR", "", true},
		{"OTHER", "ACME DOOR", false},
		{"", "ACME DOOR", true},
		{"", "OTHER", false},
		{"", "", true},
	}
	for _, tc := range cases {
		l := mkLine(func(l *internal.RoutedOrderLine) { l.CustomerName = tc.lineCustomer })
		d := e.Decide(&l, Context{Phase: internal.Phase1, CustomerName: tc.ctxCustomer})
		require.Equal(t, tc.applied, d.Lane == internal.LaneBlock, "line=%q ctx=%q", tc.lineCustomer, tc.ctxCustomer)
	}
}

func TestEqualityConditionsNeedPresentField(t *testing.T) {
	zero := 0.0
	e := NewEngine(bareConfig(
		Rule{RuleID: "Q0", Enabled: true, Priority: 1, When: When{QtyEquals: &zero}, Then: Action{Lane: internal.LaneBlock}},
	))
	l := mkLine(func(l *internal.RoutedOrderLine) { l.Quantity = nil })
	require.Empty(t, e.Decide(&l, phase1).AppliedRuleIDs)

	l.Quantity = util.FloatPtr(0)
	require.Equal(t, []string{"Q0"}, e.Decide(&l, phase1).AppliedRuleIDs)
}

func TestRouteStampsLine(t *testing.T) {
	c := DefaultConfig()
	c.Meta.Hash = "abc"
	e := NewEngine(c)
	out := e.Route(mkLine(nil), Context{Phase: internal.Phase2})
	require.Equal(t, internal.LaneAuto, out.Lane)
	require.Equal(t, 2, out.PhaseTarget)
	require.Equal(t, "abc", out.PolicyHash)
	require.Equal(t, "0.1.0", out.PolicyVersion)
}

func TestDecideConcurrent(t *testing.T) {
	e := NewEngine(bareConfig(
		Rule{RuleID: "R", Enabled: true, Priority: 1, When: When{DescRegex: "626"}, Then: Action{Lane: internal.LaneReview}},
	))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := mkLine(nil)
			if got := e.Decide(&l, phase1).Lane; got != internal.LaneReview {
				t.Errorf("lane = %s", got)
			}
		}()
	}
	wg.Wait()
}

func TestDecideProperties(t *testing.T) {
	e := NewEngine(DefaultConfig())
	properties := gopter.NewProperties(nil)

	flag := gen.OneConstOf(internal.EdgeCreditMemo, internal.EdgeZeroDollar, internal.EdgeCustomLength, internal.EdgeWiringSpec)
	class := gen.OneConstOf(internal.ClassCatalog, internal.ClassConfigured, internal.ClassCustom, internal.ClassUnknown)

	properties.Property("lane is always valid and decisions are repeatable", prop.ForAll(
		func(score float64, flags []internal.EdgeCase, ic internal.ItemClass) bool {
			l := mkLine(func(l *internal.RoutedOrderLine) {
				l.ConfidenceScore = score
				l.EdgeCaseFlags = flags
				l.ItemClass = ic
			})
			a := e.Decide(&l, phase1)
			b := e.Decide(&l, phase1)
			return a.Lane.Valid() && a.Lane == b.Lane && a.Reason == b.Reason
		},
		gen.Float64Range(0, 1),
		gen.SliceOf(flag),
		class,
	))

	properties.Property("AUTO never survives below the phase minimum", prop.ForAll(
		func(score float64) bool {
			l := mkLine(func(l *internal.RoutedOrderLine) { l.ConfidenceScore = score })
			return e.Decide(&l, phase1).Lane != internal.LaneAuto
		},
		gen.Float64Range(0, 0.899),
	))

	properties.TestingRun(t)
}
