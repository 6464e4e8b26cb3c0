package pipeline

import (
	"math"
	"strings"

	"orderflow/internal"
	"orderflow/internal/config"
	"orderflow/internal/reference"
	"orderflow/internal/util"
)

const (
	MethodGrounded  = "DETERMINISTIC_GROUNDED"
	MethodHeuristic = "TEXT_HEURISTIC"

	ViolationManufacturer = "Missing normalized manufacturer"
	ViolationItemNumber   = "Missing or invalid Item Number"
	ViolationFinish       = "Unrecognized finish code"
)

type Annotation struct {
	Grounding   internal.Grounding
	Score       float64
	MatchMethod string
	Violations  []string
	ImportReady bool
}

// Scorer grounds a line against one reference pack and scores the result.
type Scorer struct {
	cfg      config.ScoringConfig
	resolver *reference.Resolver
}

func NewScorer(cfg config.ScoringConfig, pack reference.Pack) *Scorer {
	return &Scorer{cfg: cfg, resolver: reference.NewResolver(pack)}
}

func (s *Scorer) ReferenceVersion() string { return s.resolver.Version() }

func (s *Scorer) Annotate(line internal.OrderLine) Annotation {
	w := s.cfg.Weights
	text := strings.TrimSpace(line.ItemNumber + " " + line.Description)

	var g internal.Grounding
	violations := []string{}
	score := 0.0

	mfr, hasMfr := s.resolver.Manufacturer(text)
	if hasMfr {
		g.ManufacturerAbbr = mfr.Abbr
		g.ManufacturerFull = mfr.Name
		score += w.Manufacturer
	} else {
		violations = append(violations, ViolationManufacturer)
	}

	if len([]rune(strings.TrimSpace(line.ItemNumber))) >= s.cfg.MinItemNumberLength {
		score += w.ItemNumber
		if hasMfr {
			g.ItemNumberCandidate = util.NormalizeCode(line.ItemNumber)
		}
	} else {
		violations = append(violations, ViolationItemNumber)
	}

	if fin, ok := s.resolver.Finish(text); ok {
		g.FinishCode = fin.Code
		g.FinishSecondaryCode = fin.SecondaryCode
		score += w.Finish
	} else {
		violations = append(violations, ViolationFinish)
	}

	if cat, ok := s.resolver.Category(text); ok {
		g.Category = cat.Category
		g.Subcategory = cat.Subcategory
		g.CategorySymbol = cat.Symbol
		score += w.Category
	}

	if dev, ok := s.resolver.ElectrifiedDevice(text); ok {
		g.ElectrifiedDeviceType = dev.DeviceType
		g.Voltage = first(dev.Voltages)
		g.FailMode = first(dev.FailModes)
		score += w.Electrified

		if wiring, ok := s.resolver.Wiring(dev.DeviceType); ok {
			g.WiringConfiguration = wiring.Name
			score += w.Wiring
		}
	}

	if set, ok := s.resolver.HardwareSet(text); ok {
		g.HardwareSetTemplate = set.TemplateID
		score += w.HardwareSet
	}

	score = clamp01(score)
	method := MethodHeuristic
	if hasMfr {
		method = MethodGrounded
	}
	return Annotation{
		Grounding:   g,
		Score:       score,
		MatchMethod: method,
		Violations:  violations,
		ImportReady: len(violations) == 0 && score >= s.cfg.ReadyThreshold,
	}
}

// clamp01 bounds the score and rounds it to four places so summed weights compare exactly.
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v*10000) / 10000
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
