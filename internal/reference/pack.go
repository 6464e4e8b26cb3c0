// Package reference holds the reference pack dictionaries and resolves free text against them.
package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orderflow/internal/snapshot"
)

// BaselineVersion is used when a pack version cannot be parsed during a bump.
const BaselineVersion = "1.0.0"

type Manufacturer struct {
	Abbr    string   `json:"abbr"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

type Finish struct {
	Code          string `json:"us_code"`
	SecondaryCode string `json:"bhma_code,omitempty"`
	Name          string `json:"name,omitempty"`
}

type Category struct {
	Symbol      string `json:"gordon_symbol"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
}

type ElectrifiedDevice struct {
	DeviceType string   `json:"device_type"`
	Voltages   []string `json:"voltage,omitempty"`
	FailModes  []string `json:"fail_modes,omitempty"`
	Keywords   []string `json:"keywords"`
}

type WiringConfig struct {
	Name        string   `json:"name"`
	DeviceTypes []string `json:"device_types"`
	WireCount   *int     `json:"wire_count,omitempty"`
}

type HardwareSet struct {
	TemplateID string            `json:"template_id"`
	Keywords   []string          `json:"keywords"`
	Defaults   map[string]string `json:"defaults,omitempty"`
}

// Pack is an immutable snapshot of the normalization dictionaries.
// Entry order matters: resolution is first-match in declaration order.
type Pack struct {
	Version            string              `json:"version"`
	UpdatedAt          string              `json:"updated_at,omitempty"`
	Changelog          []string            `json:"changelog,omitempty"`
	Hash               string              `json:"sha256,omitempty"`
	Manufacturers      []Manufacturer      `json:"manufacturers"`
	Finishes           []Finish            `json:"finishes"`
	Categories         []Category          `json:"categories"`
	ElectrifiedDevices []ElectrifiedDevice `json:"electrified_devices"`
	WiringConfigs      []WiringConfig      `json:"wiring_configs"`
	HardwareSets       []HardwareSet       `json:"hardware_sets"`

	// Extra keeps top-level keys this version does not model.
	Extra snapshot.Extra `json:"-"`
}

func EmptyPack() Pack {
	return Pack{Version: BaselineVersion}.normalized()
}

// normalized returns a copy whose dictionary slices are non-nil so they serialize as [].
func (p Pack) normalized() Pack {
	if p.Manufacturers == nil {
		p.Manufacturers = []Manufacturer{}
	}
	if p.Finishes == nil {
		p.Finishes = []Finish{}
	}
	if p.Categories == nil {
		p.Categories = []Category{}
	}
	devices := make([]ElectrifiedDevice, len(p.ElectrifiedDevices))
	for i, d := range p.ElectrifiedDevices {
		d.Keywords = nonNil(d.Keywords)
		devices[i] = d
	}
	p.ElectrifiedDevices = devices
	wiring := make([]WiringConfig, len(p.WiringConfigs))
	for i, w := range p.WiringConfigs {
		w.DeviceTypes = nonNil(w.DeviceTypes)
		wiring[i] = w
	}
	p.WiringConfigs = wiring
	sets := make([]HardwareSet, len(p.HardwareSets))
	for i, s := range p.HardwareSets {
		s.Keywords = nonNil(s.Keywords)
		sets[i] = s
	}
	p.HardwareSets = sets
	return p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Clone deep-copies the pack so edits never reach a finalized snapshot.
func (p Pack) Clone() Pack {
	out := p
	out.Extra = p.Extra.Clone()
	out.Changelog = append([]string(nil), p.Changelog...)
	out.Manufacturers = make([]Manufacturer, len(p.Manufacturers))
	for i, m := range p.Manufacturers {
		m.Aliases = append([]string(nil), m.Aliases...)
		out.Manufacturers[i] = m
	}
	out.Finishes = append([]Finish(nil), p.Finishes...)
	out.Categories = append([]Category(nil), p.Categories...)
	out.ElectrifiedDevices = make([]ElectrifiedDevice, len(p.ElectrifiedDevices))
	for i, d := range p.ElectrifiedDevices {
		d.Voltages = append([]string(nil), d.Voltages...)
		d.FailModes = append([]string(nil), d.FailModes...)
		d.Keywords = append([]string(nil), d.Keywords...)
		out.ElectrifiedDevices[i] = d
	}
	out.WiringConfigs = make([]WiringConfig, len(p.WiringConfigs))
	for i, w := range p.WiringConfigs {
		w.DeviceTypes = append([]string(nil), w.DeviceTypes...)
		if w.WireCount != nil {
			n := *w.WireCount
			w.WireCount = &n
		}
		out.WiringConfigs[i] = w
	}
	out.HardwareSets = make([]HardwareSet, len(p.HardwareSets))
	for i, s := range p.HardwareSets {
		s.Keywords = append([]string(nil), s.Keywords...)
		if s.Defaults != nil {
			defaults := make(map[string]string, len(s.Defaults))
			for k, v := range s.Defaults {
				defaults[k] = v
			}
			s.Defaults = defaults
		}
		out.HardwareSets[i] = s
	}
	return out.normalized()
}

func (p *Pack) UnmarshalJSON(b []byte) error {
	type plain Pack
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	extra, err := snapshot.UnknownFields(b, v)
	if err != nil {
		return err
	}
	*p = Pack(v)
	p.Extra = extra
	return nil
}

func (p Pack) MarshalJSON() ([]byte, error) {
	type plain Pack
	b, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	return snapshot.WithExtra(b, p.Extra)
}

func (p Pack) Marshal() ([]byte, error) {
	return json.MarshalIndent(p.normalized(), "", "  ")
}

// ComputeHash hashes the pack with its own hash field blanked.
func (p Pack) ComputeHash() (string, error) {
	tmp := p.normalized()
	tmp.Hash = ""
	return snapshot.ContentHash(tmp)
}

// Finalize returns a new snapshot: optionally bumped, stamped with now and content-hashed.
func Finalize(p Pack, bump snapshot.BumpKind, note string, now time.Time) (Pack, error) {
	out := p.Clone()
	if bump != snapshot.BumpNone {
		out.Version = snapshot.BumpVersionFrom(out.Version, bump, BaselineVersion)
	}
	out.UpdatedAt = now.UTC().Format(time.RFC3339)
	if note != "" {
		out.Changelog = append(out.Changelog, note)
	}
	hash, err := out.ComputeHash()
	if err != nil {
		return Pack{}, err
	}
	out.Hash = hash
	return out, nil
}

// Parse validates data (JSON or YAML) against the pack schema and decodes it.
func Parse(data []byte) (Pack, error) {
	blob, err := snapshot.ToJSON(data)
	if err != nil {
		return Pack{}, &snapshot.ValidationError{Kind: snapshot.KindReference, Err: err}
	}
	if err := snapshot.Validate(snapshot.KindReference, blob); err != nil {
		return Pack{}, err
	}
	var p Pack
	if err := json.Unmarshal(blob, &p); err != nil {
		return Pack{}, &snapshot.ValidationError{Kind: snapshot.KindReference, Err: err}
	}
	return p.normalized(), nil
}

// Load reads the persisted pack. It returns snapshot.ErrNotFound when nothing is stored.
func Load(ctx context.Context, store snapshot.Store) (Pack, error) {
	data, err := store.Load(ctx, snapshot.ReferenceKey)
	if err != nil {
		return Pack{}, err
	}
	return Parse(data)
}

// LoadOrEmpty never fails: an absent or corrupt snapshot yields EmptyPack.
func LoadOrEmpty(ctx context.Context, store snapshot.Store, logger *slog.Logger) Pack {
	p, err := Load(ctx, store)
	if err == nil {
		return p
	}
	if !errors.Is(err, snapshot.ErrNotFound) {
		logger.Warn("reference pack unusable, using empty pack", "error", err)
	}
	return EmptyPack()
}

func Save(ctx context.Context, store snapshot.Store, p Pack) error {
	blob, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("marshal reference pack: %w", err)
	}
	return store.Save(ctx, snapshot.ReferenceKey, blob)
}
