package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"orderflow/internal"
)

const (
	MarkerDocType   = "DEFAULT:DOC_TYPE"
	MarkerItemClass = "DEFAULT:ITEM_CLASS"
)

// Decision is the routing outcome for one line.
type Decision struct {
	Lane                  internal.Lane
	Reason                string
	FieldsRequiringReview []string
	AppliedRuleIDs        []string
	PolicyVersion         string
	PolicyHash            string
}

// Engine evaluates one policy snapshot. It is safe for concurrent use.
type Engine struct {
	cfg   Config
	rules []Rule

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func NewEngine(cfg Config) *Engine {
	cfg = cfg.Clone()
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if r.Enabled && r.Then.Lane.Valid() {
			rules = append(rules, r)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	return &Engine{cfg: cfg, rules: rules, patterns: map[string]*regexp.Regexp{}}
}

func (e *Engine) Config() Config { return e.cfg.Clone() }

func (e *Engine) Version() string { return e.cfg.Meta.Version }

// Decide never fails: unmatchable rules are skipped.
func (e *Engine) Decide(line *internal.RoutedOrderLine, ctx Context) Decision {
	d := Decision{
		Lane:          internal.LaneAssist,
		Reason:        "Default lane",
		PolicyVersion: e.cfg.Meta.Version,
		PolicyHash:    e.cfg.Meta.Hash,
	}
	if l := e.cfg.Defaults.DefaultLane; l.Valid() {
		d.Lane = l
	}
	if l, ok := e.cfg.Defaults.LaneForDocType[line.DocType]; ok && l.Valid() {
		d.Lane = l
		d.Reason = fmt.Sprintf("Default lane for doc_type=%s", line.DocType)
		d.AppliedRuleIDs = append(d.AppliedRuleIDs, MarkerDocType)
	}
	if l, ok := e.cfg.Defaults.LaneForItemClass[line.ItemClass]; ok && l.Valid() {
		d.Lane = l
		d.Reason = fmt.Sprintf("Default lane for item_class=%s", line.ItemClass)
		d.AppliedRuleIDs = append(d.AppliedRuleIDs, MarkerItemClass)
	}

	var applied []*Rule
	for i := range e.rules {
		r := &e.rules[i]
		if !e.matches(r, line, ctx) {
			continue
		}
		// Every match overwrites; the last rule in descending-priority order wins.
		d.Lane = r.Then.Lane
		d.Reason = r.Then.Reason
		d.FieldsRequiringReview = append([]string(nil), r.Then.FieldsRequiringReview...)
		d.AppliedRuleIDs = append(d.AppliedRuleIDs, r.RuleID)
		applied = append(applied, r)
	}

	if d.Lane == internal.LaneAuto {
		e.gate(&d, line, ctx, applied)
	}
	return d
}

// Route applies the decision to a copy of line.
func (e *Engine) Route(line internal.RoutedOrderLine, ctx Context) internal.RoutedOrderLine {
	d := e.Decide(&line, ctx)
	line.Lane = d.Lane
	line.RoutingReason = d.Reason
	line.FieldsRequiringReview = d.FieldsRequiringReview
	line.AppliedRuleIDs = d.AppliedRuleIDs
	line.PolicyVersion = d.PolicyVersion
	line.PolicyHash = d.PolicyHash
	line.PhaseTarget = phaseOf(ctx).Target()
	return line
}

func (e *Engine) gate(d *Decision, line *internal.RoutedOrderLine, ctx Context, applied []*Rule) {
	var missing []string
	seen := map[string]bool{}
	for _, r := range applied {
		for _, f := range r.Then.RequiredFieldsForAuto {
			if seen[f] {
				continue
			}
			seen[f] = true
			if !fieldPresent(line, f) {
				missing = append(missing, f)
			}
		}
	}
	if len(missing) > 0 {
		d.Lane = internal.LaneReview
		d.Reason = "missing required fields: " + strings.Join(missing, ", ")
		return
	}

	phase := phaseOf(ctx)
	threshold, ok := e.cfg.Defaults.PhaseMinConfidenceAuto[phase]
	if n := len(applied); n > 0 && applied[n-1].Then.MinConfidence != nil {
		threshold, ok = *applied[n-1].Then.MinConfidence, true
	}
	// NaN never clears the gate
	if ok && !(line.ConfidenceScore >= threshold) {
		d.Lane = internal.LaneReview
		d.Reason = fmt.Sprintf("confidence %.2f below %s minimum %.2f for AUTO", line.ConfidenceScore, phase, threshold)
	}
}

func (e *Engine) matches(r *Rule, line *internal.RoutedOrderLine, ctx Context) bool {
	s := r.Scope
	if len(s.DocTypes) > 0 && !contains(s.DocTypes, line.DocType) {
		return false
	}
	customer := line.CustomerName
	if customer == "" {
		customer = ctx.CustomerName
	}
	if len(s.CustomerNames) > 0 && customer != "" && !contains(s.CustomerNames, customer) {
		return false
	}
	if len(s.ItemClasses) > 0 && !contains(s.ItemClasses, line.ItemClass) {
		return false
	}

	w := r.When
	if len(w.EdgeCaseIncludesAny) > 0 {
		hit := false
		for _, code := range w.EdgeCaseIncludesAny {
			if line.HasFlag(code) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if w.DescRegex != "" && !e.test(w.DescRegex, line.Description) {
		return false
	}
	if w.ItemNoRegex != "" && !e.test(w.ItemNoRegex, line.ItemNumber) {
		return false
	}
	if w.MarkRegex != "" && !e.test(w.MarkRegex, line.MarkInstructions) {
		return false
	}
	if !equals(w.QtyEquals, line.Quantity) {
		return false
	}
	if !equals(w.UnitPriceEquals, line.UnitPrice) {
		return false
	}
	if !equals(w.ExtendedPriceEquals, line.ExtendedPrice) {
		return false
	}
	return true
}

// test matches value case-insensitively. Invalid patterns and empty values never match.
func (e *Engine) test(pattern, value string) bool {
	if value == "" {
		return false
	}
	re := e.compile(pattern)
	return re != nil && re.MatchString(value)
}

func (e *Engine) compile(pattern string) *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()
	if re, ok := e.patterns[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = nil
	}
	e.patterns[pattern] = re
	return re
}

func equals(want, got *float64) bool {
	if want == nil {
		return true
	}
	return got != nil && *got == *want
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func phaseOf(ctx Context) internal.Phase {
	if ctx.Phase == "" {
		return internal.Phase1
	}
	return ctx.Phase
}
