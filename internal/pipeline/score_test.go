package pipeline

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"orderflow/internal"
	"orderflow/internal/config"
	"orderflow/internal/reference"
)

func fixturePack() reference.Pack {
	return reference.Pack{
		Version: "1.2.0",
		Manufacturers: []reference.Manufacturer{
			{Abbr: "SCH", Name: "Schlage", Aliases: []string{"SCHLAGE LOCK"}},
			{Abbr: "LCN", Name: "LCN Closers"},
		},
		Finishes: []reference.Finish{
			{Code: "US26D", SecondaryCode: "626", Name: "Satin chrome"},
		},
		Categories: []reference.Category{
			{Symbol: "ND80", Category: "Locksets", Subcategory: "Cylindrical"},
		},
		ElectrifiedDevices: []reference.ElectrifiedDevice{
			{DeviceType: "EL_LOCK", Voltages: []string{"24VDC", "12VDC"}, FailModes: []string{"FAIL_SECURE"}, Keywords: []string{"electrified"}},
		},
		WiringConfigs: []reference.WiringConfig{
			{Name: "4-wire", DeviceTypes: []string{"EL_LOCK"}},
		},
		HardwareSets: []reference.HardwareSet{
			{TemplateID: "HS-01", Keywords: []string{"hardware set 1"}},
		},
	}
}

func floatp(v float64) *float64 { return &v }

func TestAnnotateFullyGrounded(t *testing.T) {
	s := NewScorer(config.DefaultScoring(), fixturePack())
	ann := s.Annotate(internal.OrderLine{ItemNumber: "nd80pd", Description: "Schlage electrified lever 626"})

	require.Equal(t, 1.0, ann.Score)
	require.Equal(t, MethodGrounded, ann.MatchMethod)
	require.Empty(t, ann.Violations)
	require.True(t, ann.ImportReady)

	g := ann.Grounding
	require.Equal(t, "SCH", g.ManufacturerAbbr)
	require.Equal(t, "Schlage", g.ManufacturerFull)
	require.Equal(t, "ND80PD", g.ItemNumberCandidate)
	require.Equal(t, "US26D", g.FinishCode)
	require.Equal(t, "626", g.FinishSecondaryCode)
	require.Equal(t, "Locksets", g.Category)
	require.Equal(t, "EL_LOCK", g.ElectrifiedDeviceType)
	require.Equal(t, "24VDC", g.Voltage)
	require.Equal(t, "FAIL_SECURE", g.FailMode)
	require.Equal(t, "4-wire", g.WiringConfiguration)
	require.Empty(t, g.HardwareSetTemplate)
}

func TestAnnotateNonFiniteScoreClampsToZero(t *testing.T) {
	scoring := config.DefaultScoring()
	scoring.Weights.Finish = math.NaN()
	ann := NewScorer(scoring, fixturePack()).Annotate(internal.OrderLine{ItemNumber: "ND80PD", Description: "Schlage lever 626"})
	require.Equal(t, 0.0, ann.Score)
	require.False(t, ann.ImportReady)

	scoring = config.DefaultScoring()
	scoring.Weights.Manufacturer = math.Inf(1)
	ann = NewScorer(scoring, fixturePack()).Annotate(internal.OrderLine{ItemNumber: "ND80PD", Description: "Schlage lever 626"})
	require.Equal(t, 1.0, ann.Score)
}

func TestAnnotateUngrounded(t *testing.T) {
	s := NewScorer(config.DefaultScoring(), fixturePack())
	ann := s.Annotate(internal.OrderLine{Description: "misc hardware"})

	require.Equal(t, 0.0, ann.Score)
	require.Equal(t, MethodHeuristic, ann.MatchMethod)
	require.Equal(t, []string{ViolationManufacturer, ViolationItemNumber, ViolationFinish}, ann.Violations)
	require.False(t, ann.ImportReady)
	require.Empty(t, ann.Grounding.ItemNumberCandidate)
}

func TestAnnotateShortItemNumber(t *testing.T) {
	s := NewScorer(config.DefaultScoring(), fixturePack())
	ann := s.Annotate(internal.OrderLine{ItemNumber: "X1", Description: "LCN closer"})

	require.Equal(t, 0.3, ann.Score)
	require.Equal(t, "LCN", ann.Grounding.ManufacturerAbbr)
	require.Empty(t, ann.Grounding.ItemNumberCandidate)
	require.Equal(t, []string{ViolationItemNumber, ViolationFinish}, ann.Violations)
}

func TestAnnotateCandidateNeedsManufacturer(t *testing.T) {
	s := NewScorer(config.DefaultScoring(), fixturePack())
	ann := s.Annotate(internal.OrderLine{ItemNumber: "ABC-123", Description: "generic hinge 626"})

	require.Equal(t, 0.35, ann.Score)
	require.Empty(t, ann.Grounding.ItemNumberCandidate)
	require.Equal(t, MethodHeuristic, ann.MatchMethod)
}

func TestAnnotateEmptyPack(t *testing.T) {
	s := NewScorer(config.DefaultScoring(), reference.EmptyPack())
	ann := s.Annotate(internal.OrderLine{ItemNumber: "ND80PD", Description: "Schlage lever"})
	require.Equal(t, 0.2, ann.Score)
	require.Equal(t, reference.EmptyPack().Version, s.ReferenceVersion())
}

func TestAnnotateScoreStaysInUnitInterval(t *testing.T) {
	heavy := config.DefaultScoring()
	heavy.Weights.Manufacturer = 0.9
	heavy.Weights.ItemNumber = 0.9
	s := NewScorer(heavy, fixturePack())

	words := []string{"Schlage", "LCN", "626", "ND80", "electrified", "hardware set 1", "hinge", "", "x"}
	properties := gopter.NewProperties(nil)
	properties.Property("score within [0,1]", prop.ForAll(
		func(item string, parts []string) bool {
			desc := ""
			for _, p := range parts {
				desc += p + " "
			}
			ann := s.Annotate(internal.OrderLine{ItemNumber: item, Description: desc})
			return ann.Score >= 0 && ann.Score <= 1
		},
		gen.OneConstOf("", "ND80PD", "X1", "LCN4041"),
		gen.SliceOf(gen.OneConstOf(words[0], words[1], words[2], words[3], words[4], words[5], words[6], words[7], words[8])),
	))
	properties.TestingRun(t)
}
