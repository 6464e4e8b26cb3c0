package policy

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"

	"orderflow/internal"
)

// Finding is one semantic problem in a policy. RuleID is empty for policy-level findings.
type Finding struct {
	RuleID  string `json:"rule_id,omitempty"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	if f.RuleID == "" {
		return f.Message
	}
	return f.RuleID + ": " + f.Message
}

// Lint reports problems the schema cannot express. The engine tolerates all of
// them, so Lint is an authoring aid and never runs on the routing path.
func Lint(c Config) []Finding {
	var out []Finding
	add := func(ruleID, format string, args ...any) {
		out = append(out, Finding{RuleID: ruleID, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := semver.StrictNewVersion(c.Meta.Version); err != nil {
		add("", "version %q is not X.Y.Z", c.Meta.Version)
	}
	for _, p := range []internal.Phase{internal.Phase1, internal.Phase2, internal.Phase3} {
		v, ok := c.Defaults.PhaseMinConfidenceAuto[p]
		if !ok {
			add("", "no AUTO confidence minimum for %s", p)
			continue
		}
		if v < 0 || v > 1 {
			add("", "AUTO confidence minimum for %s is %.2f, outside [0,1]", p, v)
		}
	}
	if c.Defaults.DefaultLane != "" && !c.Defaults.DefaultLane.Valid() {
		add("", "default lane %q is not a lane", c.Defaults.DefaultLane)
	}

	known := map[internal.EdgeCase]bool{}
	for _, code := range c.EdgeCaseCodes {
		known[code] = true
	}

	seen := map[string]bool{}
	for i, r := range c.Rules {
		id := r.RuleID
		if id == "" {
			id = fmt.Sprintf("#%d", i+1)
			add(id, "rule has no rule_id")
		} else if seen[id] {
			add(id, "duplicate rule_id")
		}
		seen[id] = true

		if !r.Then.Lane.Valid() {
			add(id, "lane %q is not a lane", r.Then.Lane)
		}
		for _, code := range r.When.EdgeCaseIncludesAny {
			if !known[code] {
				add(id, "edge case %q is not in edge_case_codes", code)
			}
		}
		patterns := [][2]string{
			{"customer_item_desc_regex", r.When.DescRegex},
			{"customer_item_no_regex", r.When.ItemNoRegex},
			{"mark_instructions_regex", r.When.MarkRegex},
		}
		for _, p := range patterns {
			if p[1] == "" {
				continue
			}
			if _, err := regexp.Compile("(?i)" + p[1]); err != nil {
				add(id, "%s does not compile and will never match: %v", p[0], err)
			}
		}
		if mc := r.Then.MinConfidence; mc != nil && (*mc < 0 || *mc > 1) {
			add(id, "min_confidence %.2f outside [0,1]", *mc)
		}
		for _, f := range r.Then.RequiredFieldsForAuto {
			if !KnownField(f) {
				add(id, "required field %q does not exist and will always be missing", f)
			}
		}
	}
	return out
}
