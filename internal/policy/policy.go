// Package policy holds the versioned control-surface routing policy and the
// engine that turns an annotated order line into a lane decision.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orderflow/internal"
	"orderflow/internal/snapshot"
)

type Meta struct {
	PolicyID  string   `json:"policy_id"`
	Version   string   `json:"version"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
	Author    string   `json:"author,omitempty"`
	Changelog []string `json:"changelog,omitempty"`
	Hash      string   `json:"sha256,omitempty"`

	Extra snapshot.Extra `json:"-"`
}

type Defaults struct {
	PhaseMinConfidenceAuto map[internal.Phase]float64           `json:"phase_min_confidence_auto"`
	DefaultLane            internal.Lane                        `json:"default_lane,omitempty"`
	LaneForDocType         map[internal.DocType]internal.Lane   `json:"lane_for_doc_type,omitempty"`
	LaneForItemClass       map[internal.ItemClass]internal.Lane `json:"lane_for_item_class,omitempty"`

	Extra snapshot.Extra `json:"-"`
}

// Scope lists are allow-lists; an empty list places no constraint.
type Scope struct {
	DocTypes      []internal.DocType   `json:"doc_type,omitempty"`
	CustomerNames []string             `json:"customer_name,omitempty"`
	ItemClasses   []internal.ItemClass `json:"item_class,omitempty"`
}

// When is an AND over every condition that is set.
type When struct {
	EdgeCaseIncludesAny []internal.EdgeCase `json:"edge_case_includes_any,omitempty"`
	DescRegex           string              `json:"customer_item_desc_regex,omitempty"`
	ItemNoRegex         string              `json:"customer_item_no_regex,omitempty"`
	MarkRegex           string              `json:"mark_instructions_regex,omitempty"`
	QtyEquals           *float64            `json:"qty_equals,omitempty"`
	UnitPriceEquals     *float64            `json:"unit_price_equals,omitempty"`
	ExtendedPriceEquals *float64            `json:"extended_price_equals,omitempty"`
}

type Action struct {
	Lane                  internal.Lane `json:"lane"`
	MinConfidence         *float64      `json:"min_confidence,omitempty"`
	RequiredFieldsForAuto []string      `json:"required_fields_for_auto,omitempty"`
	FieldsRequiringReview []string      `json:"fields_requiring_review,omitempty"`
	Reason                string        `json:"reason"`
}

type Rule struct {
	RuleID   string `json:"rule_id"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
	Scope    Scope  `json:"scope"`
	When     When   `json:"when"`
	Then     Action `json:"then"`
}

// Config is one immutable policy snapshot. Edits go through Clone and Finalize.
type Config struct {
	Meta          Meta                `json:"meta"`
	Defaults      Defaults            `json:"defaults"`
	EdgeCaseCodes []internal.EdgeCase `json:"edge_case_codes"`
	Rules         []Rule              `json:"rules"`

	// Extra keeps top-level keys this version does not model.
	Extra snapshot.Extra `json:"-"`
}

// Context is the per-batch processing context.
type Context struct {
	Phase        internal.Phase
	CustomerName string
}

func (c Config) Clone() Config {
	out := c
	out.Extra = c.Extra.Clone()
	out.Meta.Extra = c.Meta.Extra.Clone()
	out.Defaults.Extra = c.Defaults.Extra.Clone()
	out.Meta.Changelog = append([]string(nil), c.Meta.Changelog...)
	out.Defaults.PhaseMinConfidenceAuto = cloneMap(c.Defaults.PhaseMinConfidenceAuto)
	out.Defaults.LaneForDocType = cloneMap(c.Defaults.LaneForDocType)
	out.Defaults.LaneForItemClass = cloneMap(c.Defaults.LaneForItemClass)
	out.EdgeCaseCodes = append([]internal.EdgeCase{}, c.EdgeCaseCodes...)
	out.Rules = make([]Rule, len(c.Rules))
	for i, r := range c.Rules {
		r.Scope.DocTypes = append([]internal.DocType(nil), r.Scope.DocTypes...)
		r.Scope.CustomerNames = append([]string(nil), r.Scope.CustomerNames...)
		r.Scope.ItemClasses = append([]internal.ItemClass(nil), r.Scope.ItemClasses...)
		r.When.EdgeCaseIncludesAny = append([]internal.EdgeCase(nil), r.When.EdgeCaseIncludesAny...)
		r.When.QtyEquals = clonePtr(r.When.QtyEquals)
		r.When.UnitPriceEquals = clonePtr(r.When.UnitPriceEquals)
		r.When.ExtendedPriceEquals = clonePtr(r.When.ExtendedPriceEquals)
		r.Then.MinConfidence = clonePtr(r.Then.MinConfidence)
		r.Then.RequiredFieldsForAuto = append([]string(nil), r.Then.RequiredFieldsForAuto...)
		r.Then.FieldsRequiringReview = append([]string(nil), r.Then.FieldsRequiringReview...)
		out.Rules[i] = r
	}
	if out.Defaults.PhaseMinConfidenceAuto == nil {
		out.Defaults.PhaseMinConfidenceAuto = map[internal.Phase]float64{}
	}
	return out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func (m *Meta) UnmarshalJSON(b []byte) error {
	type plain Meta
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	extra, err := snapshot.UnknownFields(b, p)
	if err != nil {
		return err
	}
	*m = Meta(p)
	m.Extra = extra
	return nil
}

func (m Meta) MarshalJSON() ([]byte, error) {
	type plain Meta
	b, err := json.Marshal(plain(m))
	if err != nil {
		return nil, err
	}
	return snapshot.WithExtra(b, m.Extra)
}

func (d *Defaults) UnmarshalJSON(b []byte) error {
	type plain Defaults
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	extra, err := snapshot.UnknownFields(b, p)
	if err != nil {
		return err
	}
	*d = Defaults(p)
	d.Extra = extra
	return nil
}

func (d Defaults) MarshalJSON() ([]byte, error) {
	type plain Defaults
	b, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	return snapshot.WithExtra(b, d.Extra)
}

func (c *Config) UnmarshalJSON(b []byte) error {
	type plain Config
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	extra, err := snapshot.UnknownFields(b, p)
	if err != nil {
		return err
	}
	*c = Config(p)
	c.Extra = extra
	return nil
}

func (c Config) MarshalJSON() ([]byte, error) {
	type plain Config
	b, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	return snapshot.WithExtra(b, c.Extra)
}

func (c Config) Marshal() ([]byte, error) {
	return json.MarshalIndent(c.Clone(), "", "  ")
}

// ComputeHash hashes the policy with meta.sha256 blanked.
func (c Config) ComputeHash() (string, error) {
	tmp := c.Clone()
	tmp.Meta.Hash = ""
	return snapshot.ContentHash(tmp)
}

// Finalize returns a new snapshot: optionally bumped, stamped with now and content-hashed.
func Finalize(c Config, bump snapshot.BumpKind, note string, now time.Time) (Config, error) {
	out := c.Clone()
	if bump != snapshot.BumpNone {
		out.Meta.Version = snapshot.BumpVersion(out.Meta.Version, bump)
	}
	stamp := now.UTC().Format(time.RFC3339)
	if out.Meta.CreatedAt == "" {
		out.Meta.CreatedAt = stamp
	}
	out.Meta.UpdatedAt = stamp
	if note != "" {
		out.Meta.Changelog = append(out.Meta.Changelog, note)
	}
	hash, err := out.ComputeHash()
	if err != nil {
		return Config{}, err
	}
	out.Meta.Hash = hash
	return out, nil
}

// Parse validates data (JSON or YAML) against the policy schema and decodes it.
func Parse(data []byte) (Config, error) {
	blob, err := snapshot.ToJSON(data)
	if err != nil {
		return Config{}, &snapshot.ValidationError{Kind: snapshot.KindPolicy, Err: err}
	}
	if err := snapshot.Validate(snapshot.KindPolicy, blob); err != nil {
		return Config{}, err
	}
	var c Config
	if err := json.Unmarshal(blob, &c); err != nil {
		return Config{}, &snapshot.ValidationError{Kind: snapshot.KindPolicy, Err: err}
	}
	return c.Clone(), nil
}

func Load(ctx context.Context, store snapshot.Store) (Config, error) {
	data, err := store.Load(ctx, snapshot.PolicyKey)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// LoadOrDefault never fails: an absent or corrupt snapshot yields DefaultConfig.
func LoadOrDefault(ctx context.Context, store snapshot.Store, logger *slog.Logger) Config {
	c, err := Load(ctx, store)
	if err == nil {
		return c
	}
	if !errors.Is(err, snapshot.ErrNotFound) {
		logger.Warn("policy snapshot unusable, using compiled-in default", "error", err)
	}
	return DefaultConfig()
}

func Save(ctx context.Context, store snapshot.Store, c Config) error {
	blob, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	return store.Save(ctx, snapshot.PolicyKey, blob)
}
