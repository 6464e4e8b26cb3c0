package policy

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"orderflow/internal"
	"orderflow/internal/snapshot"
	"orderflow/internal/util"
)

const RulesSheet = "Policy_Rules"

var ruleHeaders = []string{
	"rule_id", "enabled", "priority",
	"scope_doc_type", "scope_customer_name", "scope_item_class",
	"when_edge_case_any", "when_desc_regex", "when_itemno_regex", "when_mark_regex",
	"when_qty_equals", "when_unit_price_equals", "when_extended_price_equals",
	"then_lane", "then_min_confidence", "then_required_fields", "then_fields_review", "then_reason",
}

var ruleAliases = map[string][]string{
	"rule_id":                    {"rule_id", "rule"},
	"enabled":                    {"enabled", "active"},
	"priority":                   {"priority", "prio"},
	"scope_doc_type":             {"scope_doc_type", "doc_type", "doc_types"},
	"scope_customer_name":        {"scope_customer_name", "customer_name", "customer"},
	"scope_item_class":           {"scope_item_class", "item_class"},
	"when_edge_case_any":         {"when_edge_case_any", "edge_case_includes_any", "edge_cases"},
	"when_desc_regex":            {"when_desc_regex", "customer_item_desc_regex", "desc_regex"},
	"when_itemno_regex":          {"when_itemno_regex", "customer_item_no_regex", "item_no_regex"},
	"when_mark_regex":            {"when_mark_regex", "mark_instructions_regex", "mark_regex"},
	"when_qty_equals":            {"when_qty_equals", "qty_equals"},
	"when_unit_price_equals":     {"when_unit_price_equals", "unit_price_equals"},
	"when_extended_price_equals": {"when_extended_price_equals", "extended_price_equals"},
	"then_lane":                  {"then_lane", "lane"},
	"then_min_confidence":        {"then_min_confidence", "min_confidence"},
	"then_required_fields":       {"then_required_fields", "required_fields_for_auto", "required_fields"},
	"then_fields_review":         {"then_fields_review", "fields_requiring_review", "review_fields"},
	"then_reason":                {"then_reason", "reason"},
}

// ExportXLSX writes the rules to the Policy_Rules sheet. When template is
// non-empty the sheet is written into that workbook and its other sheets are kept.
func ExportXLSX(c Config, template []byte) ([]byte, error) {
	var f *excelize.File
	if len(template) > 0 {
		var err error
		f, err = excelize.OpenReader(bytes.NewReader(template))
		if err != nil {
			return nil, fmt.Errorf("open policy template: %w", err)
		}
	} else {
		f = excelize.NewFile()
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(RulesSheet); idx >= 0 {
		rows, err := f.GetRows(RulesSheet)
		if err != nil {
			return nil, err
		}
		for i := len(rows); i >= 1; i-- {
			if err := f.RemoveRow(RulesSheet, i); err != nil {
				return nil, err
			}
		}
	} else if len(template) == 0 {
		if err := f.SetSheetName(f.GetSheetName(0), RulesSheet); err != nil {
			return nil, err
		}
	} else if _, err := f.NewSheet(RulesSheet); err != nil {
		return nil, err
	}

	for i, h := range ruleHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(RulesSheet, cell, h)
	}
	for i, r := range c.Rules {
		row := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(RulesSheet, cell, value)
		}
		enabled := "N"
		if r.Enabled {
			enabled = "Y"
		}
		set(1, r.RuleID)
		set(2, enabled)
		set(3, r.Priority)
		set(4, joinCodes(r.Scope.DocTypes))
		set(5, strings.Join(r.Scope.CustomerNames, ","))
		set(6, joinCodes(r.Scope.ItemClasses))
		set(7, joinCodes(r.When.EdgeCaseIncludesAny))
		set(8, r.When.DescRegex)
		set(9, r.When.ItemNoRegex)
		set(10, r.When.MarkRegex)
		set(11, optional(r.When.QtyEquals))
		set(12, optional(r.When.UnitPriceEquals))
		set(13, optional(r.When.ExtendedPriceEquals))
		set(14, string(r.Then.Lane))
		set(15, optional(r.Then.MinConfidence))
		set(16, strings.Join(r.Then.RequiredFieldsForAuto, ","))
		set(17, strings.Join(r.Then.FieldsRequiringReview, ","))
		set(18, r.Then.Reason)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImportXLSX replaces the rules of existing with the Policy_Rules sheet.
// Meta, defaults and the edge-case vocabulary are kept and a changelog entry is appended.
// Rows without a rule_id are skipped.
func ImportXLSX(data []byte, existing Config, now time.Time) (Config, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Config{}, invalid(fmt.Errorf("read policy workbook: %w", err))
	}
	defer f.Close()

	sheet := util.FindSheet(f.GetSheetList(), RulesSheet, "policy rules", "rules")
	if sheet == "" {
		return Config{}, invalid(fmt.Errorf("missing sheet: %s", RulesSheet))
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Config{}, invalid(fmt.Errorf("read %s: %w", sheet, err))
	}
	t := util.NewTable(rows)
	cols := make(map[string]int, len(ruleAliases))
	for key, aliases := range ruleAliases {
		cols[key] = t.Column(aliases...)
	}
	get := func(r []string, key string) string { return util.Cell(r, cols[key]) }
	// patterns keep their surrounding spaces
	pattern := func(r []string, key string) string {
		if idx := cols[key]; idx >= 0 && idx < len(r) {
			return r[idx]
		}
		return ""
	}

	rules := []Rule{}
	for n, r := range t.Rows {
		rule := Rule{RuleID: get(r, "rule_id")}
		if rule.RuleID == "" {
			continue
		}
		where := func(col string, err error) error {
			return invalid(fmt.Errorf("%s row %d (%s) %s: %w", sheet, n+2, rule.RuleID, col, err))
		}

		switch strings.ToUpper(get(r, "enabled")) {
		case "Y", "YES", "TRUE", "1":
			rule.Enabled = true
		}
		if raw := get(r, "priority"); raw != "" {
			p, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return Config{}, where("priority", err)
			}
			rule.Priority = int(p)
		}

		rule.Scope.DocTypes = splitCodes[internal.DocType](get(r, "scope_doc_type"))
		rule.Scope.CustomerNames = util.SplitList(get(r, "scope_customer_name"))
		rule.Scope.ItemClasses = splitCodes[internal.ItemClass](get(r, "scope_item_class"))
		rule.When.EdgeCaseIncludesAny = splitCodes[internal.EdgeCase](get(r, "when_edge_case_any"))
		rule.When.DescRegex = pattern(r, "when_desc_regex")
		rule.When.ItemNoRegex = pattern(r, "when_itemno_regex")
		rule.When.MarkRegex = pattern(r, "when_mark_regex")

		for key, dst := range map[string]**float64{
			"when_qty_equals":            &rule.When.QtyEquals,
			"when_unit_price_equals":     &rule.When.UnitPriceEquals,
			"when_extended_price_equals": &rule.When.ExtendedPriceEquals,
			"then_min_confidence":        &rule.Then.MinConfidence,
		} {
			v, err := parseOptional(get(r, key))
			if err != nil {
				return Config{}, where(key, err)
			}
			*dst = v
		}

		rule.Then.Lane = internal.LaneAssist
		if raw := get(r, "then_lane"); raw != "" {
			lane, err := internal.ParseLane(raw)
			if err != nil {
				return Config{}, where("then_lane", err)
			}
			rule.Then.Lane = lane
		}
		rule.Then.RequiredFieldsForAuto = util.SplitList(get(r, "then_required_fields"))
		rule.Then.FieldsRequiringReview = util.SplitList(get(r, "then_fields_review"))
		rule.Then.Reason = get(r, "then_reason")

		rules = append(rules, rule)
	}

	out := existing.Clone()
	out.Rules = rules
	stamp := now.UTC().Format(time.RFC3339)
	out.Meta.UpdatedAt = stamp
	out.Meta.Changelog = append(out.Meta.Changelog, fmt.Sprintf("Imported rules from XLSX (%s)", stamp))
	return out.Clone(), nil
}

func joinCodes[T ~string](codes []T) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitCodes[T ~string](raw string) []T {
	var out []T
	for _, p := range util.SplitList(raw) {
		out = append(out, T(strings.ToUpper(p)))
	}
	return out
}

func invalid(err error) error {
	return &snapshot.ValidationError{Kind: snapshot.KindPolicy, Err: err}
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func parseOptional(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
