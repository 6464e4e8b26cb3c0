package reference

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func samplePack() Pack {
	four := 4
	return Pack{
		Version: "1.2.0",
		Manufacturers: []Manufacturer{
			{Abbr: "SCH", Name: "Schlage", Aliases: []string{"SCHLAGE LOCK"}},
			{Abbr: "VD", Name: "Von Duprin", Aliases: []string{"VONDUPRIN"}},
			{Abbr: "LCN", Name: "LCN Closers"},
		},
		Finishes: []Finish{
			{Code: "US26D", SecondaryCode: "626", Name: "Satin Chrome"},
			{Code: "US10B", SecondaryCode: "613", Name: "Oil Rubbed Bronze"},
		},
		Categories: []Category{
			{Symbol: "LK", Category: "Locks", Subcategory: "Cylindrical"},
			{Symbol: "EX", Category: "Exit Devices"},
		},
		ElectrifiedDevices: []ElectrifiedDevice{
			{DeviceType: "ELECTRIC_STRIKE", Voltages: []string{"24VDC", "12VDC"}, FailModes: []string{"FAIL_SECURE"}, Keywords: []string{"strike", "6211"}},
		},
		WiringConfigs: []WiringConfig{
			{Name: "4-wire strike", DeviceTypes: []string{"ELECTRIC_STRIKE"}, WireCount: &four},
		},
		HardwareSets: []HardwareSet{
			{TemplateID: "HS-CLASSROOM", Keywords: []string{"classroom"}, Defaults: map[string]string{"function": "ND70"}},
		},
	}
}

func TestResolverMatches(t *testing.T) {
	r := NewResolver(samplePack())

	m, ok := r.Manufacturer("nd80pd rho 626 schlage lock")
	require.True(t, ok)
	require.Equal(t, "SCH", m.Abbr)

	f, ok := r.Finish("ND80PD RHO 626")
	require.True(t, ok)
	require.Equal(t, "US26D", f.Code)

	f, ok = r.Finish("lever us10b")
	require.True(t, ok)
	require.Equal(t, "US10B", f.Code)

	c, ok := r.Category("lk-100 lever")
	require.True(t, ok)
	require.Equal(t, "Locks", c.Category)

	d, ok := r.ElectrifiedDevice("HES 6211 STRIKE")
	require.True(t, ok)
	require.Equal(t, "ELECTRIC_STRIKE", d.DeviceType)

	w, ok := r.Wiring("ELECTRIC_STRIKE")
	require.True(t, ok)
	require.Equal(t, 4, *w.WireCount)

	_, ok = r.Wiring("electric_strike")
	require.False(t, ok, "wiring lookup is exact membership")

	s, ok := r.HardwareSet("Classroom set A")
	require.True(t, ok)
	require.Equal(t, "HS-CLASSROOM", s.TemplateID)
}

func TestResolverEmptyInputNeverMatches(t *testing.T) {
	r := NewResolver(samplePack())
	_, ok := r.Manufacturer("")
	require.False(t, ok)
	_, ok = r.Finish("   ")
	require.False(t, ok)
	_, ok = r.Category("")
	require.False(t, ok)
	_, ok = r.ElectrifiedDevice("")
	require.False(t, ok)
	_, ok = r.Wiring("")
	require.False(t, ok)
	_, ok = r.HardwareSet("")
	require.False(t, ok)
}

func TestResolverFirstMatchNotBestMatch(t *testing.T) {
	p := EmptyPack()
	p.Manufacturers = []Manufacturer{
		{Abbr: "A", Name: "Alpha", Aliases: []string{"door"}},
		{Abbr: "B", Name: "Beta", Aliases: []string{"door closer"}},
	}
	m, ok := NewResolver(p).Manufacturer("door closer hardware")
	require.True(t, ok)
	require.Equal(t, "A", m.Abbr)
}

func TestResolverDoesNotMutatePack(t *testing.T) {
	p := samplePack()
	r := NewResolver(p)
	p.Manufacturers[0].Abbr = "CHANGED"
	m, ok := r.Manufacturer("schlage")
	require.True(t, ok)
	require.Equal(t, "SCH", m.Abbr)
}

func TestResolverFirstMatchProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	word := gen.AlphaString().SuchThat(func(s string) bool { return len(s) >= 2 && len(s) <= 8 })

	properties.Property("earlier entry wins whenever both aliases occur", prop.ForAll(
		func(a, b, filler string) bool {
			p := EmptyPack()
			p.Manufacturers = []Manufacturer{
				{Abbr: "FIRST", Name: "first", Aliases: []string{a}},
				{Abbr: "SECOND", Name: "second", Aliases: []string{b}},
			}
			text := filler + " " + b + " " + a
			m, ok := NewResolver(p).Manufacturer(text)
			return ok && m.Abbr == "FIRST"
		},
		word, word, gen.AlphaString(),
	))

	properties.Property("matching ignores case", prop.ForAll(
		func(alias string) bool {
			p := EmptyPack()
			p.Manufacturers = []Manufacturer{{Abbr: "X", Name: "x", Aliases: []string{strings.ToLower(alias)}}}
			_, ok := NewResolver(p).Manufacturer("ITEM " + strings.ToUpper(alias))
			return ok
		},
		word,
	))

	properties.TestingRun(t)
}
