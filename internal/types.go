package internal

import (
	"fmt"
	"strings"
)

type Lane string

const (
	LaneAuto   Lane = "AUTO"
	LaneAssist Lane = "ASSIST"
	LaneReview Lane = "REVIEW"
	LaneBlock  Lane = "BLOCK"
)

var Lanes = []Lane{LaneAuto, LaneAssist, LaneReview, LaneBlock}

// ParseLane accepts the four lanes plus the legacy HUMAN spelling, which maps to BLOCK.
func ParseLane(s string) (Lane, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AUTO":
		return LaneAuto, nil
	case "ASSIST":
		return LaneAssist, nil
	case "REVIEW":
		return LaneReview, nil
	case "BLOCK", "HUMAN":
		return LaneBlock, nil
	default:
		return "", fmt.Errorf("unknown lane: %q", s)
	}
}

// UnmarshalText lets snapshots carry the legacy HUMAN spelling.
func (l *Lane) UnmarshalText(b []byte) error {
	parsed, err := ParseLane(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Lane) Valid() bool {
	switch l {
	case LaneAuto, LaneAssist, LaneReview, LaneBlock:
		return true
	}
	return false
}

type DocType string

const (
	DocInvoice       DocType = "INVOICE"
	DocSalesOrder    DocType = "SALES_ORDER"
	DocPurchaseOrder DocType = "PURCHASE_ORDER"
	DocCreditMemo    DocType = "CREDIT_MEMO"
	DocPickingSheet  DocType = "PICKING_SHEET"
	DocUnknown       DocType = "UNKNOWN"
)

type ItemClass string

const (
	ClassCatalog    ItemClass = "CATALOG"
	ClassConfigured ItemClass = "CONFIGURED"
	ClassCustom     ItemClass = "CUSTOM"
	ClassUnknown    ItemClass = "UNKNOWN"
)

type EdgeCase string

const (
	EdgeCreditMemo     EdgeCase = "CREDIT_MEMO"
	EdgeRGA            EdgeCase = "RGA"
	EdgeSpecialLayout  EdgeCase = "SPECIAL_LAYOUT"
	EdgeCustomLength   EdgeCase = "CUSTOM_LENGTH"
	EdgeZeroDollar     EdgeCase = "ZERO_DOLLAR"
	EdgeWiringSpec     EdgeCase = "WIRING_SPEC"
	EdgeCustomerPickup EdgeCase = "CUSTOMER_PICKUP"
)

// EdgeCaseVocabulary lists every code the detector can emit, in detection order.
var EdgeCaseVocabulary = []EdgeCase{
	EdgeCreditMemo,
	EdgeRGA,
	EdgeSpecialLayout,
	EdgeCustomLength,
	EdgeZeroDollar,
	EdgeWiringSpec,
	EdgeCustomerPickup,
}

type Phase string

const (
	Phase1 Phase = "PHASE_1"
	Phase2 Phase = "PHASE_2"
	Phase3 Phase = "PHASE_3"
)

func ParsePhase(s string) (Phase, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PHASE_1", "1":
		return Phase1, nil
	case "PHASE_2", "2":
		return Phase2, nil
	case "PHASE_3", "3":
		return Phase3, nil
	default:
		return "", fmt.Errorf("unknown phase: %q", s)
	}
}

// Target is the numeric phase written to the phase_target export column.
func (p Phase) Target() int {
	switch p {
	case Phase2:
		return 2
	case Phase3:
		return 3
	default:
		return 1
	}
}

// OrderLine is one extracted line item with its document fields repeated.
type OrderLine struct {
	SourceFile       string  `json:"source_file,omitempty"`
	DocID            string  `json:"doc_id"`
	DocType          DocType `json:"doc_type"`
	CustomerName     string  `json:"customer_name"`
	CustomerPO       string  `json:"customer_order_no"`
	VendorOrderNo    string  `json:"abh_order_no,omitempty"`
	DocDate          string  `json:"document_date"`
	ShipToName       string  `json:"ship_to_name,omitempty"`
	ShipToAddress    string  `json:"ship_to_address_raw,omitempty"`
	BillToName       string  `json:"bill_to_name,omitempty"`
	BillToAddress    string  `json:"bill_to_address_raw,omitempty"`
	MarkInstructions string  `json:"mark_instructions,omitempty"`
	Currency         string  `json:"currency,omitempty"`

	LineNo        int      `json:"line_no"`
	ItemNumber    string   `json:"customer_item_no"`
	Description   string   `json:"customer_item_desc_raw"`
	Quantity      *float64 `json:"qty"`
	UOM           string   `json:"uom"`
	UnitPrice     *float64 `json:"unit_price"`
	ExtendedPrice *float64 `json:"extended_price"`
}

// Grounding holds the canonical dictionary entries resolved for a line.
type Grounding struct {
	ManufacturerAbbr      string `json:"manufacturer_abbr"`
	ManufacturerFull      string `json:"manufacturer_full"`
	FinishCode            string `json:"finish_us_code"`
	FinishSecondaryCode   string `json:"finish_bhma_code"`
	Category              string `json:"category"`
	Subcategory           string `json:"subcategory"`
	CategorySymbol        string `json:"gordon_symbol"`
	ElectrifiedDeviceType string `json:"electrified_device_type"`
	Voltage               string `json:"voltage"`
	FailMode              string `json:"fail_mode"`
	WiringConfiguration   string `json:"wiring_configuration"`
	HardwareSetTemplate   string `json:"hardware_set_template"`
	ItemNumberCandidate   string `json:"abh_item_no_candidate"`
}

type RoutedOrderLine struct {
	OrderLine
	Grounding

	ItemClass       ItemClass  `json:"item_class"`
	EdgeCaseFlags   []EdgeCase `json:"edge_case_flags"`
	ConfidenceScore float64    `json:"confidence_score"`
	MatchMethod     string     `json:"match_method"`
	RuleViolations  []string   `json:"rule_violations"`
	ImportReady     bool       `json:"import_ready"`

	Lane                  Lane     `json:"automation_lane"`
	PhaseTarget           int      `json:"phase_target"`
	RoutingReason         string   `json:"routing_reason"`
	FieldsRequiringReview []string `json:"fields_requiring_review"`

	PolicyVersion    string   `json:"policy_version_applied"`
	PolicyHash       string   `json:"policy_hash_applied,omitempty"`
	ReferenceVersion string   `json:"reference_version"`
	AppliedRuleIDs   []string `json:"policy_rule_ids_applied"`
}

func (r RoutedOrderLine) HasFlag(code EdgeCase) bool {
	for _, f := range r.EdgeCaseFlags {
		if f == code {
			return true
		}
	}
	return false
}

// BatchSummary counts routed lines per lane.
type BatchSummary struct {
	Total  int          `json:"total"`
	ByLane map[Lane]int `json:"by_lane"`
}

func Summarize(rows []RoutedOrderLine) BatchSummary {
	s := BatchSummary{Total: len(rows), ByLane: map[Lane]int{}}
	for _, l := range Lanes {
		s.ByLane[l] = 0
	}
	for _, r := range rows {
		s.ByLane[r.Lane]++
	}
	return s
}

type DocumentStatus string

const (
	DocumentFetched   DocumentStatus = "fetched"
	DocumentProcessed DocumentStatus = "processed"
	DocumentExported  DocumentStatus = "exported"
	DocumentFailed    DocumentStatus = "failed"
)

// DocumentRow is an inbox file registered in the run journal, keyed by content hash.
type DocumentRow struct {
	ID        int
	Path      string
	Name      string
	Kind      string
	Hash      string
	Status    DocumentStatus
	Error     string
	CreatedAt string
}

// SnapshotRevision is one immutable entry of the config history.
type SnapshotRevision struct {
	ID      int
	Key     string
	Version string
	Hash    string
	Body    []byte
	SavedAt string
}

type RunRow struct {
	ID               int
	TraceID          string
	DocumentID       int
	PolicyVersion    string
	ReferenceVersion string
	Timings          map[string]float64
	Counts           map[string]int
	CreatedAt        string
}

// ReviewRow is one reviewed control-surface line as read back from a workbook.
type ReviewRow struct {
	ID        int
	Source    string
	DocID     string
	LineNo    int
	Lane      Lane
	Status    string
	Reviewer  string
	Body      []byte
	CreatedAt string
}
