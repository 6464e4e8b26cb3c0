package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"orderflow/internal"
	"orderflow/internal/util"
)

// ControlSurfaceHeaders is row 1 of the line-item analysis tab, followed by the audit columns.
var ControlSurfaceHeaders = []string{
	"doc_id",
	"doc_type",
	"customer_name",
	"customer_order_no",
	"abh_order_no",
	"document_date",
	"ship_to_name",
	"ship_to_address_raw",
	"bill_to_name",
	"bill_to_address_raw",
	"mark_instructions",
	"line_no",
	"customer_item_no",
	"customer_item_desc_raw",
	"qty",
	"uom",
	"unit_price",
	"extended_price",
	"currency",
	"abh_item_no_candidate",
	"item_class",
	"edge_case_flags",
	"edge_case_flag_1",
	"edge_case_flag_2",
	"edge_case_flag_3",
	"confidence_score",
	"automation_lane",
	"deterministic_rule_exists",
	"phase_target",
	"fields_requiring_review",
	"routing_reason",
	"review_status",
	"reviewer",
	"review_timestamp",
	"final_abh_item_no",
	"final_qty",
	"final_uom",
	"final_unit_price",
	"final_ship_to",
	"notes",
	"policy_version_applied",
	"policy_rule_ids_applied",
	"reference_version",
}

const DefaultControlSurfaceSheet = "Control Surface"

type ExportOptions struct {
	// Template is an optional workbook whose sheet already carries the header
	// row and formulas. Formula cells in the data range are left untouched.
	Template []byte
	Sheet    string
	// StartRow is the 1-based row of the first data line.
	StartRow int
}

// ControlSurfaceRecord lays a routed line out in ControlSurfaceHeaders order.
// Review and final-decision columns stay blank for the human workflow.
func ControlSurfaceRecord(r internal.RoutedOrderLine) []any {
	slots := LegacyFlagSlots(r.EdgeCaseFlags)
	flags := make([]string, 0, len(r.EdgeCaseFlags))
	for _, f := range r.EdgeCaseFlags {
		flags = append(flags, string(f))
	}
	docType := string(r.DocType)
	if docType == "" {
		docType = string(internal.DocUnknown)
	}
	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	itemClass := string(r.ItemClass)
	if itemClass == "" {
		itemClass = string(internal.ClassUnknown)
	}
	deterministic := "N"
	if r.MatchMethod == MethodGrounded {
		deterministic = "Y"
	}

	return []any{
		r.DocID,
		docType,
		r.CustomerName,
		r.CustomerPO,
		r.VendorOrderNo,
		r.DocDate,
		r.ShipToName,
		r.ShipToAddress,
		r.BillToName,
		r.BillToAddress,
		r.MarkInstructions,
		r.LineNo,
		r.ItemNumber,
		r.Description,
		floatCell(r.Quantity),
		r.UOM,
		floatCell(r.UnitPrice),
		floatCell(r.ExtendedPrice),
		currency,
		r.ItemNumberCandidate,
		itemClass,
		strings.Join(flags, ";"),
		slots[0],
		slots[1],
		slots[2],
		int(math.Round(r.ConfidenceScore * 100)),
		string(r.Lane),
		deterministic,
		r.PhaseTarget,
		strings.Join(r.FieldsRequiringReview, ";"),
		r.RoutingReason,
		"", "", "",
		"", "", "", "", "",
		"",
		r.PolicyVersion,
		strings.Join(r.AppliedRuleIDs, ";"),
		r.ReferenceVersion,
	}
}

func floatCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

// RenderControlSurfaceXLSX builds the workbook in memory.
func RenderControlSurfaceXLSX(rows []internal.RoutedOrderLine, opts ExportOptions) ([]byte, error) {
	sheet := opts.Sheet
	if sheet == "" {
		sheet = DefaultControlSurfaceSheet
	}

	var f *excelize.File
	if len(opts.Template) > 0 {
		tf, err := excelize.OpenReader(bytes.NewReader(opts.Template))
		if err != nil {
			return nil, fmt.Errorf("open template: %w", err)
		}
		found := util.FindSheet(tf.GetSheetList(), sheet, "po lineitem analysis", "control surface")
		if found == "" {
			_ = tf.Close()
			return nil, fmt.Errorf("template missing sheet: %s", sheet)
		}
		f, sheet = tf, found
	} else {
		f = excelize.NewFile()
		if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
			_ = f.Close()
			return nil, err
		}
		for i, h := range ControlSurfaceHeaders {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
		}
	}
	defer f.Close()

	start := opts.StartRow
	if start < 2 {
		start = 2
	}

	for i, row := range rows {
		r := start + i
		for c, v := range ControlSurfaceRecord(row) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r)
			if formula, _ := f.GetCellFormula(sheet, cell); formula != "" {
				continue
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}

	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ExportControlSurfaceXLSX(rows []internal.RoutedOrderLine, outputPath string, opts ExportOptions) error {
	blob, err := RenderControlSurfaceXLSX(rows, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, blob, 0o644)
}

// Review carries the human-workflow columns of a reviewed control surface.
type Review struct {
	Status         string   `json:"review_status,omitempty"`
	Reviewer       string   `json:"reviewer,omitempty"`
	Timestamp      string   `json:"review_timestamp,omitempty"`
	FinalItemNo    string   `json:"final_abh_item_no,omitempty"`
	FinalQty       *float64 `json:"final_qty,omitempty"`
	FinalUOM       string   `json:"final_uom,omitempty"`
	FinalUnitPrice *float64 `json:"final_unit_price,omitempty"`
	FinalShipTo    string   `json:"final_ship_to,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

type ReviewedLine struct {
	internal.RoutedOrderLine
	Review Review `json:"review"`
}

var errNoHeader = errors.New("control surface header row not found")

// ImportControlSurfaceXLSX reads a control surface back. The header row is the
// first row carrying both doc_id and line_no. Headers match case- and
// punctuation-insensitively, so "Doc ID" reads as doc_id.
func ImportControlSurfaceXLSX(data []byte, sheet string) ([]ReviewedLine, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheet = DefaultControlSurfaceSheet
	}
	names := f.GetSheetList()
	name := util.FindSheet(names, sheet, "po lineitem analysis", "control surface")
	if name == "" && len(names) > 0 {
		name = names[0]
	}
	raw, err := f.GetRows(name)
	if err != nil {
		return nil, err
	}

	t, err := controlSurfaceTable(raw)
	if err != nil {
		return nil, err
	}
	index := map[string]int{}
	for i, h := range t.Headers {
		if k := util.NormalizeKey(h); k != "" {
			if _, dup := index[k]; !dup {
				index[k] = i
			}
		}
	}
	get := func(row []string, h string) string {
		i, ok := index[util.NormalizeKey(h)]
		if !ok {
			return ""
		}
		return util.Cell(row, i)
	}

	out := []ReviewedLine{}
	for i, row := range t.Rows {
		docID := get(row, "doc_id")
		itemNo := get(row, "customer_item_no")
		desc := get(row, "customer_item_desc_raw")
		if docID == "" && itemNo == "" && desc == "" {
			continue
		}

		var l ReviewedLine
		l.DocID = docID
		l.DocType = internal.DocType(strings.ToUpper(get(row, "doc_type")))
		l.CustomerName = get(row, "customer_name")
		l.CustomerPO = get(row, "customer_order_no")
		l.VendorOrderNo = get(row, "abh_order_no")
		l.DocDate = get(row, "document_date")
		l.ShipToName = get(row, "ship_to_name")
		l.ShipToAddress = get(row, "ship_to_address_raw")
		l.BillToName = get(row, "bill_to_name")
		l.BillToAddress = get(row, "bill_to_address_raw")
		l.MarkInstructions = get(row, "mark_instructions")
		l.ItemNumber = itemNo
		l.Description = desc
		l.Quantity = util.ParseAmount(get(row, "qty"))
		l.UOM = get(row, "uom")
		l.UnitPrice = util.ParseAmount(get(row, "unit_price"))
		l.ExtendedPrice = util.ParseAmount(get(row, "extended_price"))
		l.Currency = get(row, "currency")
		l.ItemNumberCandidate = get(row, "abh_item_no_candidate")
		l.ItemClass = internal.ItemClass(strings.ToUpper(get(row, "item_class")))
		l.RoutingReason = get(row, "routing_reason")
		l.PolicyVersion = get(row, "policy_version_applied")
		l.ReferenceVersion = get(row, "reference_version")
		l.AppliedRuleIDs = util.SplitList(get(row, "policy_rule_ids_applied"))
		l.FieldsRequiringReview = util.SplitList(get(row, "fields_requiring_review"))
		if get(row, "deterministic_rule_exists") == "Y" {
			l.MatchMethod = MethodGrounded
		}

		for _, code := range util.SplitList(get(row, "edge_case_flags")) {
			l.EdgeCaseFlags = append(l.EdgeCaseFlags, internal.EdgeCase(strings.ToUpper(code)))
		}

		if v := get(row, "line_no"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: line_no %q: %w", i+1, v, err)
			}
			l.LineNo = n
		}
		if v := get(row, "phase_target"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: phase_target %q: %w", i+1, v, err)
			}
			l.PhaseTarget = n
		}
		if v := util.ParseAmount(get(row, "confidence_score")); v != nil {
			l.ConfidenceScore = *v / 100
		}
		if v := get(row, "automation_lane"); v != "" {
			lane, err := internal.ParseLane(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			l.Lane = lane
		}

		l.Review = Review{
			Status:         get(row, "review_status"),
			Reviewer:       get(row, "reviewer"),
			Timestamp:      get(row, "review_timestamp"),
			FinalItemNo:    get(row, "final_abh_item_no"),
			FinalQty:       util.ParseAmount(get(row, "final_qty")),
			FinalUOM:       get(row, "final_uom"),
			FinalUnitPrice: util.ParseAmount(get(row, "final_unit_price")),
			FinalShipTo:    get(row, "final_ship_to"),
			Notes:          get(row, "notes"),
		}
		out = append(out, l)
	}
	return out, nil
}

func controlSurfaceTable(rows [][]string) (util.Table, error) {
	for i, row := range rows {
		var doc, line bool
		for _, c := range row {
			switch util.NormalizeKey(c) {
			case "docid":
				doc = true
			case "lineno":
				line = true
			}
		}
		if doc && line {
			return util.NewTable(rows[i:]), nil
		}
	}
	return util.Table{}, errNoHeader
}
