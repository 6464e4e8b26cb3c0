package reference

import "strings"

// Resolver answers first-match containment queries against one pack.
// It lowercases every candidate once; the pack itself is never modified.
type Resolver struct {
	pack          Pack
	manufacturers [][]string
	finishes      [][]string
	categories    []string
	devices       [][]string
	sets          [][]string
}

func NewResolver(p Pack) *Resolver {
	r := &Resolver{pack: p.Clone()}

	r.manufacturers = make([][]string, len(r.pack.Manufacturers))
	for i, m := range r.pack.Manufacturers {
		r.manufacturers[i] = lowerAll(append([]string{m.Abbr, m.Name}, m.Aliases...))
	}
	r.finishes = make([][]string, len(r.pack.Finishes))
	for i, f := range r.pack.Finishes {
		r.finishes[i] = lowerAll([]string{f.Code, f.SecondaryCode})
	}
	r.categories = make([]string, len(r.pack.Categories))
	for i, c := range r.pack.Categories {
		r.categories[i] = strings.ToLower(strings.TrimSpace(c.Symbol))
	}
	r.devices = make([][]string, len(r.pack.ElectrifiedDevices))
	for i, d := range r.pack.ElectrifiedDevices {
		r.devices[i] = lowerAll(d.Keywords)
	}
	r.sets = make([][]string, len(r.pack.HardwareSets))
	for i, s := range r.pack.HardwareSets {
		r.sets[i] = lowerAll(s.Keywords)
	}
	return r
}

func (r *Resolver) Version() string { return r.pack.Version }

func (r *Resolver) Manufacturer(text string) (Manufacturer, bool) {
	if i := firstContaining(text, r.manufacturers); i >= 0 {
		return r.pack.Manufacturers[i], true
	}
	return Manufacturer{}, false
}

func (r *Resolver) Finish(text string) (Finish, bool) {
	if i := firstContaining(text, r.finishes); i >= 0 {
		return r.pack.Finishes[i], true
	}
	return Finish{}, false
}

func (r *Resolver) Category(text string) (Category, bool) {
	t := strings.ToLower(text)
	if t == "" {
		return Category{}, false
	}
	for i, symbol := range r.categories {
		if symbol != "" && strings.Contains(t, symbol) {
			return r.pack.Categories[i], true
		}
	}
	return Category{}, false
}

func (r *Resolver) ElectrifiedDevice(text string) (ElectrifiedDevice, bool) {
	if i := firstContaining(text, r.devices); i >= 0 {
		return r.pack.ElectrifiedDevices[i], true
	}
	return ElectrifiedDevice{}, false
}

// Wiring matches on exact membership of deviceType, not containment.
func (r *Resolver) Wiring(deviceType string) (WiringConfig, bool) {
	if deviceType == "" {
		return WiringConfig{}, false
	}
	for _, w := range r.pack.WiringConfigs {
		for _, dt := range w.DeviceTypes {
			if dt == deviceType {
				return w, true
			}
		}
	}
	return WiringConfig{}, false
}

func (r *Resolver) HardwareSet(text string) (HardwareSet, bool) {
	if i := firstContaining(text, r.sets); i >= 0 {
		return r.pack.HardwareSets[i], true
	}
	return HardwareSet{}, false
}

// firstContaining returns the index of the first entry with a candidate contained in text.
// Empty candidates are ignored.
func firstContaining(text string, entries [][]string) int {
	t := strings.ToLower(text)
	if strings.TrimSpace(t) == "" {
		return -1
	}
	for i, candidates := range entries {
		for _, c := range candidates {
			if c != "" && strings.Contains(t, c) {
				return i
			}
		}
	}
	return -1
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
