package reference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"orderflow/internal/snapshot"
	"orderflow/internal/util"
)

const (
	SheetManufacturers = "Manufacturers"
	SheetFinishes      = "Finishes"
	SheetCategories    = "Categories"
	SheetElectrified   = "ElectrifiedDevices"
	SheetWiring        = "WiringConfigs"
	SheetSets          = "HardwareSets"
)

var sheetAliases = map[string][]string{
	SheetManufacturers: {"manufacturer", "mfr", "mfrs", "manufacturers", "mfg", "mfgs", "brands", "mfr list", "mfrs list"},
	SheetFinishes:      {"finish", "finishes", "pallete", "color", "colors", "finish list"},
	SheetCategories:    {"category", "categories", "cat", "cats", "mapping", "hardware types"},
	SheetElectrified:   {"electrified", "electrifieddevice", "electrifieddevices", "devices", "device", "power", "elec"},
	SheetWiring:        {"wiring", "wiringconfig", "wiringconfigs", "wiring_configs", "cables", "wiring logic"},
	SheetSets:          {"set", "sets", "hardwaresets", "templates", "template", "hardware_sets", "hw sets"},
}

var columnAliases = map[string][]string{
	"abbr":          {"abbr", "abbreviation", "code", "mfr_code", "prefix", "mfr code", "mfrabbr"},
	"name":          {"name", "description", "manufacturer", "mfr", "full_name", "manufacturer name", "mfr name"},
	"aliases":       {"aliases", "alias", "synonyms", "search_terms", "keywords", "other names"},
	"us_code":       {"us_code", "us", "finish_code", "finish", "code", "us code", "finish code"},
	"bhma_code":     {"bhma_code", "bhma", "ansi_code", "ansi", "bhma code", "ansi code"},
	"gordon_symbol": {"gordon_symbol", "symbol", "key", "id", "mapping_id", "gordon code", "symbol code"},
	"category":      {"category", "cat", "group", "hardware category"},
	"subcategory":   {"subcategory", "subcat", "subgroup", "hardware subcategory"},
	"device_type":   {"device_type", "type", "hardware_type", "device", "device type"},
	"voltage":       {"voltage", "volts", "v", "power_req", "power"},
	"fail_modes":    {"fail_modes", "fail_mode", "failsafe", "operation", "fail safe"},
	"keywords":      {"keywords", "keyword", "search", "tags", "terms"},
	"device_types":  {"device_types", "devices", "compatible_devices", "device types"},
	"wire_count":    {"wire_count", "wires", "conductors", "wire count"},
	"template_id":   {"template_id", "id", "template", "set_id", "set code", "template id"},
	"defaults_json": {"defaults_json", "defaults", "config_json", "json", "set defaults"},
}

// ExportXLSX writes one sheet per dictionary with list cells joined by ", ".
func ExportXLSX(p Pack) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	write := func(sheet string, headers []string, rows [][]any) error {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		for i, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
		}
		for r, row := range rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				_ = f.SetCellValue(sheet, cell, v)
			}
		}
		return nil
	}

	var rows [][]any
	for _, m := range p.Manufacturers {
		rows = append(rows, []any{m.Abbr, m.Name, util.JoinList(m.Aliases)})
	}
	if err := write(SheetManufacturers, []string{"abbr", "name", "aliases"}, rows); err != nil {
		return nil, err
	}

	rows = nil
	for _, fin := range p.Finishes {
		rows = append(rows, []any{fin.Code, fin.SecondaryCode, fin.Name})
	}
	if err := write(SheetFinishes, []string{"us_code", "bhma_code", "name"}, rows); err != nil {
		return nil, err
	}

	rows = nil
	for _, c := range p.Categories {
		rows = append(rows, []any{c.Symbol, c.Category, c.Subcategory})
	}
	if err := write(SheetCategories, []string{"gordon_symbol", "category", "subcategory"}, rows); err != nil {
		return nil, err
	}

	rows = nil
	for _, d := range p.ElectrifiedDevices {
		rows = append(rows, []any{d.DeviceType, util.JoinList(d.Voltages), util.JoinList(d.FailModes), util.JoinList(d.Keywords)})
	}
	if err := write(SheetElectrified, []string{"device_type", "voltage", "fail_modes", "keywords"}, rows); err != nil {
		return nil, err
	}

	rows = nil
	for _, w := range p.WiringConfigs {
		var count any = ""
		if w.WireCount != nil {
			count = *w.WireCount
		}
		rows = append(rows, []any{w.Name, util.JoinList(w.DeviceTypes), count})
	}
	if err := write(SheetWiring, []string{"name", "device_types", "wire_count"}, rows); err != nil {
		return nil, err
	}

	rows = nil
	for _, s := range p.HardwareSets {
		defaults := ""
		if len(s.Defaults) > 0 {
			blob, err := json.Marshal(s.Defaults)
			if err != nil {
				return nil, fmt.Errorf("hardware set %s defaults: %w", s.TemplateID, err)
			}
			defaults = string(blob)
		}
		rows = append(rows, []any{s.TemplateID, util.JoinList(s.Keywords), defaults})
	}
	if err := write(SheetSets, []string{"template_id", "keywords", "defaults_json"}, rows); err != nil {
		return nil, err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImportXLSX replaces the six dictionaries of existing with the workbook's
// content. Version, changelog and hash are kept; callers finalize afterwards.
// A missing sheet yields an empty dictionary.
func ImportXLSX(data []byte, existing Pack) (Pack, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return Pack{}, invalid(fmt.Errorf("read reference workbook: %w", err))
	}
	defer f.Close()

	table := func(name string) util.Table {
		actual := util.FindSheet(f.GetSheetList(), name, sheetAliases[name]...)
		if actual == "" {
			return util.Table{}
		}
		rows, err := f.GetRows(actual)
		if err != nil {
			return util.Table{}
		}
		return util.NewTable(rows)
	}
	col := func(t util.Table, key string) int { return t.Column(columnAliases[key]...) }

	out := existing.Clone()
	out.Manufacturers = nil
	out.Finishes = nil
	out.Categories = nil
	out.ElectrifiedDevices = nil
	out.WiringConfigs = nil
	out.HardwareSets = nil

	t := table(SheetManufacturers)
	abbr, name, aliases := col(t, "abbr"), col(t, "name"), col(t, "aliases")
	for _, r := range t.Rows {
		m := Manufacturer{Abbr: util.Cell(r, abbr), Name: util.Cell(r, name), Aliases: util.SplitList(util.Cell(r, aliases))}
		if m.Abbr != "" || m.Name != "" {
			out.Manufacturers = append(out.Manufacturers, m)
		}
	}

	t = table(SheetFinishes)
	code, bhma, name := col(t, "us_code"), col(t, "bhma_code"), col(t, "name")
	for _, r := range t.Rows {
		fin := Finish{Code: util.Cell(r, code), SecondaryCode: util.Cell(r, bhma), Name: util.Cell(r, name)}
		if fin.Code != "" || fin.Name != "" {
			out.Finishes = append(out.Finishes, fin)
		}
	}

	t = table(SheetCategories)
	symbol, category, sub := col(t, "gordon_symbol"), col(t, "category"), col(t, "subcategory")
	for _, r := range t.Rows {
		c := Category{Symbol: util.Cell(r, symbol), Category: util.Cell(r, category), Subcategory: util.Cell(r, sub)}
		if c.Symbol != "" || c.Category != "" {
			out.Categories = append(out.Categories, c)
		}
	}

	t = table(SheetElectrified)
	deviceType, voltage, fail, keywords := col(t, "device_type"), col(t, "voltage"), col(t, "fail_modes"), col(t, "keywords")
	for _, r := range t.Rows {
		d := ElectrifiedDevice{
			DeviceType: util.Cell(r, deviceType),
			Voltages:   util.SplitList(util.Cell(r, voltage)),
			FailModes:  util.SplitList(util.Cell(r, fail)),
			Keywords:   util.SplitList(util.Cell(r, keywords)),
		}
		if d.DeviceType != "" {
			out.ElectrifiedDevices = append(out.ElectrifiedDevices, d)
		}
	}

	t = table(SheetWiring)
	name, deviceTypes, wires := col(t, "name"), col(t, "device_types"), col(t, "wire_count")
	for _, r := range t.Rows {
		w := WiringConfig{Name: util.Cell(r, name), DeviceTypes: util.SplitList(util.Cell(r, deviceTypes))}
		if raw := util.Cell(r, wires); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return Pack{}, invalid(fmt.Errorf("wiring config %q: wire count %q is not a number", w.Name, raw))
			}
			w.WireCount = &n
		}
		if w.Name != "" {
			out.WiringConfigs = append(out.WiringConfigs, w)
		}
	}

	t = table(SheetSets)
	template, keywords, defaults := col(t, "template_id"), col(t, "keywords"), col(t, "defaults_json")
	for _, r := range t.Rows {
		s := HardwareSet{TemplateID: util.Cell(r, template), Keywords: util.SplitList(util.Cell(r, keywords))}
		if raw := util.Cell(r, defaults); raw != "" {
			if err := json.Unmarshal([]byte(raw), &s.Defaults); err != nil {
				return Pack{}, invalid(fmt.Errorf("hardware set %q: defaults_json: %w", s.TemplateID, err))
			}
		}
		if s.TemplateID != "" {
			out.HardwareSets = append(out.HardwareSets, s)
		}
	}

	return out.normalized(), nil
}

func invalid(err error) error {
	return &snapshot.ValidationError{Kind: snapshot.KindReference, Err: err}
}
