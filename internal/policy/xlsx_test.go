package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"orderflow/internal"
	"orderflow/internal/snapshot"
)

func TestRulesXLSXRoundTrip(t *testing.T) {
	zero := 0.0
	floor := 0.75
	c := DefaultConfig()
	c.Rules = append(c.Rules, Rule{
		RuleID:   "R-400",
		Enabled:  false,
		Priority: 10,
		Scope:    Scope{CustomerNames: []string{"ACME DOOR"}, ItemClasses: []internal.ItemClass{internal.ClassCatalog}},
		When:     When{DescRegex: `\bSPECIAL\b`, UnitPriceEquals: &zero},
		Then:     Action{Lane: internal.LaneAuto, MinConfidence: &floor, RequiredFieldsForAuto: []string{"qty", "uom"}, Reason: "test"},
	})

	data, err := ExportXLSX(c, nil)
	require.NoError(t, err)

	existing := DefaultConfig()
	existing.Rules = nil
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got, err := ImportXLSX(data, existing, now)
	require.NoError(t, err)

	require.Equal(t, c.Clone().Rules, got.Rules)
	require.Equal(t, existing.Meta.PolicyID, got.Meta.PolicyID)
	require.Equal(t, existing.Defaults, got.Defaults)
	require.Equal(t, "Imported rules from XLSX (2026-01-02T03:04:05Z)", got.Meta.Changelog[len(got.Meta.Changelog)-1])
}

func TestExportIntoTemplateKeepsOtherSheets(t *testing.T) {
	tpl := excelize.NewFile()
	_, err := tpl.NewSheet("Instructions")
	require.NoError(t, err)
	require.NoError(t, tpl.SetCellValue("Instructions", "A1", "fill in rules"))
	_, err = tpl.NewSheet(RulesSheet)
	require.NoError(t, err)
	require.NoError(t, tpl.SetCellValue(RulesSheet, "A5", "stale"))
	var buf bytes.Buffer
	require.NoError(t, tpl.Write(&buf))

	data, err := ExportXLSX(DefaultConfig(), buf.Bytes())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Instructions", "A1")
	require.NoError(t, err)
	require.Equal(t, "fill in rules", v)
	rows, err := f.GetRows(RulesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "R-300", rows[3][0])
}

func TestImportAliasedHeaders(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Rules"))
	for i, row := range [][]any{
		{"Rule ID", "Active", "Priority", "Edge Cases", "Lane", "Reason"},
		{"R-9", "yes", 70, "rga, credit_memo", "human", "returns desk"},
		{"", "Y", 1, "", "AUTO", "ignored"},
	} {
		for j, v := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, f.SetCellValue("Rules", cell, v))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	got, err := ImportXLSX(buf.Bytes(), DefaultConfig(), time.Now())
	require.NoError(t, err)
	require.Len(t, got.Rules, 1)
	r := got.Rules[0]
	require.Equal(t, "R-9", r.RuleID)
	require.True(t, r.Enabled)
	require.Equal(t, 70, r.Priority)
	require.Equal(t, []internal.EdgeCase{internal.EdgeRGA, internal.EdgeCreditMemo}, r.When.EdgeCaseIncludesAny)
	require.Equal(t, internal.LaneBlock, r.Then.Lane)
	require.Equal(t, "returns desk", r.Then.Reason)
}

func TestImportRejectsBadLaneAndMissingSheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", RulesSheet))
	require.NoError(t, f.SetSheetRow(RulesSheet, "A1", &[]any{"rule_id", "then_lane"}))
	require.NoError(t, f.SetSheetRow(RulesSheet, "A2", &[]any{"R-1", "SOMETIMES"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	_, err := ImportXLSX(buf.Bytes(), DefaultConfig(), time.Now())
	require.Error(t, err)

	g := excelize.NewFile()
	var other bytes.Buffer
	require.NoError(t, g.Write(&other))
	_, err = ImportXLSX(other.Bytes(), DefaultConfig(), time.Now())
	require.ErrorContains(t, err, "missing sheet")
}

func TestImportErrorsAreValidationErrors(t *testing.T) {
	rows := func(header, row []any) []byte {
		f := excelize.NewFile()
		require.NoError(t, f.SetSheetName("Sheet1", RulesSheet))
		require.NoError(t, f.SetSheetRow(RulesSheet, "A1", &header))
		require.NoError(t, f.SetSheetRow(RulesSheet, "A2", &row))
		var buf bytes.Buffer
		require.NoError(t, f.Write(&buf))
		return buf.Bytes()
	}
	empty := excelize.NewFile()
	var noSheet bytes.Buffer
	require.NoError(t, empty.Write(&noSheet))

	for name, data := range map[string][]byte{
		"bad lane":       rows([]any{"rule_id", "then_lane"}, []any{"R-1", "SOMETIMES"}),
		"bad priority":   rows([]any{"rule_id", "priority"}, []any{"R-1", "high"}),
		"bad number":     rows([]any{"rule_id", "when_qty_equals"}, []any{"R-1", "two"}),
		"missing sheet":  noSheet.Bytes(),
		"not a workbook": []byte("plain text"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ImportXLSX(data, DefaultConfig(), time.Now())
			var ve *snapshot.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			require.Equal(t, snapshot.KindPolicy, ve.Kind)
		})
	}
}

func TestImportKeepsPatternWhitespace(t *testing.T) {
	c := DefaultConfig()
	c.Rules = []Rule{{
		RuleID:  "R-CUT",
		Enabled: true,
		When:    When{DescRegex: "CUT TO ", ItemNoRegex: " -X$", MarkRegex: "  FIELD"},
		Then:    Action{Lane: internal.LaneReview, Reason: "  trimmed  "},
	}}
	data, err := ExportXLSX(c, nil)
	require.NoError(t, err)

	got, err := ImportXLSX(data, DefaultConfig(), time.Now())
	require.NoError(t, err)
	require.Len(t, got.Rules, 1)
	require.Equal(t, "CUT TO ", got.Rules[0].When.DescRegex)
	require.Equal(t, " -X$", got.Rules[0].When.ItemNoRegex)
	require.Equal(t, "  FIELD", got.Rules[0].When.MarkRegex)
	require.Equal(t, "trimmed", got.Rules[0].Then.Reason)
}

func TestImportKeepsUnknownSnapshotKeys(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()

	blob, err := DefaultConfig().Marshal()
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(blob, &doc))
	doc["meta"].(map[string]any)["ticket"] = "X"
	doc["defaults"].(map[string]any)["owner"] = "ops"
	doc["review_board"] = map[string]any{"chair": "kim"}
	blob, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, snapshot.PolicyKey, blob))

	stored, err := Load(ctx, store)
	require.NoError(t, err)
	sheet, err := ExportXLSX(stored, nil)
	require.NoError(t, err)
	imported, err := ImportXLSX(sheet, stored, time.Now())
	require.NoError(t, err)
	final, err := Finalize(imported, snapshot.BumpPatch, "rules from sheet", time.Now())
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, final))

	raw, err := store.Load(ctx, snapshot.PolicyKey)
	require.NoError(t, err)
	var saved struct {
		Meta     map[string]any `json:"meta"`
		Defaults map[string]any `json:"defaults"`
		Board    map[string]any `json:"review_board"`
	}
	require.NoError(t, json.Unmarshal(raw, &saved))
	require.Equal(t, "X", saved.Meta["ticket"])
	require.Equal(t, "ops", saved.Defaults["owner"])
	require.Equal(t, "kim", saved.Board["chair"])
	require.Equal(t, "0.1.1", saved.Meta["version"])

	reloaded, err := Load(ctx, store)
	require.NoError(t, err)
	hash, err := reloaded.ComputeHash()
	require.NoError(t, err)
	require.Equal(t, final.Meta.Hash, hash)

	reloaded.Extra = nil
	bare, err := reloaded.ComputeHash()
	require.NoError(t, err)
	require.NotEqual(t, hash, bare)
}
