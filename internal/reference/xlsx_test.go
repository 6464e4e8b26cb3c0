package reference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"orderflow/internal/snapshot"
)

func TestXLSXRoundTrip(t *testing.T) {
	src := samplePack()
	data, err := ExportXLSX(src)
	require.NoError(t, err)

	existing := EmptyPack()
	existing.Version = "3.1.4"
	existing.Changelog = []string{"seed"}

	got, err := ImportXLSX(data, existing)
	require.NoError(t, err)

	require.Equal(t, "3.1.4", got.Version)
	require.Equal(t, []string{"seed"}, got.Changelog)
	require.Equal(t, src.Manufacturers, got.Manufacturers)
	require.Equal(t, src.Finishes, got.Finishes)
	require.Equal(t, src.Categories, got.Categories)
	require.Equal(t, src.ElectrifiedDevices, got.ElectrifiedDevices)
	require.Equal(t, src.HardwareSets, got.HardwareSets)
	require.Equal(t, 4, *got.WiringConfigs[0].WireCount)
}

func mkWorkbook(t *testing.T, sheets map[string][][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for r, row := range rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, f.SetCellValue(name, cell, v))
			}
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestImportXLSXAliases(t *testing.T) {
	data := mkWorkbook(t, map[string][][]any{
		"MFRS": {
			{"Mfr Code", "Manufacturer Name", "Synonyms"},
			{"SCH", "Schlage", "schlage lock; ingersoll"},
			{"", "", ""},
			{"IVE", "Ives", ""},
		},
		"Finish List": {
			{"Finish", "ANSI", "Name"},
			{"US26D", "626", "Satin Chrome"},
		},
	})

	got, err := ImportXLSX(data, EmptyPack())
	require.NoError(t, err)
	require.Len(t, got.Manufacturers, 2)
	require.Equal(t, Manufacturer{Abbr: "SCH", Name: "Schlage", Aliases: []string{"schlage lock", "ingersoll"}}, got.Manufacturers[0])
	require.Equal(t, "IVE", got.Manufacturers[1].Abbr)
	require.Equal(t, []Finish{{Code: "US26D", SecondaryCode: "626", Name: "Satin Chrome"}}, got.Finishes)
	require.Empty(t, got.Categories)
	require.NotNil(t, got.Categories)
}

func TestImportXLSXRejectsGarbage(t *testing.T) {
	_, err := ImportXLSX([]byte("not a workbook"), EmptyPack())
	require.Error(t, err)
}

func TestImportXLSXErrorsAreValidationErrors(t *testing.T) {
	for name, data := range map[string][]byte{
		"not a workbook": []byte("plain text"),
		"bad wire count": mkWorkbook(t, map[string][][]any{
			SheetWiring: {{"name", "wire_count"}, {"strike", "four"}},
		}),
		"bad defaults": mkWorkbook(t, map[string][][]any{
			SheetSets: {{"template_id", "defaults_json"}, {"HS-1", "{not json"}},
		}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ImportXLSX(data, EmptyPack())
			var ve *snapshot.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			require.Equal(t, snapshot.KindReference, ve.Kind)
		})
	}
}

func TestImportXLSXKeepsUnknownSnapshotKeys(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewMemoryStore()

	blob, err := samplePack().Marshal()
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(blob, &doc))
	doc["meta"] = map[string]any{"ticket": "X"}
	doc["source_system"] = "erp-7"
	blob, err = json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, snapshot.ReferenceKey, blob))

	stored, err := Load(ctx, store)
	require.NoError(t, err)
	sheet, err := ExportXLSX(stored)
	require.NoError(t, err)
	imported, err := ImportXLSX(sheet, stored)
	require.NoError(t, err)
	final, err := Finalize(imported, snapshot.BumpMinor, "sheet import", time.Now())
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, final))

	raw, err := store.Load(ctx, snapshot.ReferenceKey)
	require.NoError(t, err)
	var saved map[string]any
	require.NoError(t, json.Unmarshal(raw, &saved))
	require.Equal(t, map[string]any{"ticket": "X"}, saved["meta"])
	require.Equal(t, "erp-7", saved["source_system"])
	require.Equal(t, "1.3.0", saved["version"])

	reloaded, err := Load(ctx, store)
	require.NoError(t, err)
	require.Len(t, reloaded.Extra, 2)
	hash, err := reloaded.ComputeHash()
	require.NoError(t, err)
	require.Equal(t, final.Hash, hash)
}
