package util

import (
	"regexp"
	"strconv"
	"strings"
)

const unitAlternation = `ea|each|pcs|pc|pr|pair|set|sets|box|bx|ctn|kit|ft|lf|roll`

var (
	unitPattern     = regexp.MustCompile(`(?i)\b(` + unitAlternation + `)\b`)
	withUnitPattern = regexp.MustCompile(`(?i)(?:^|[^0-9.,/\-])(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(` + unitAlternation + `)\b`)
	numberPattern   = regexp.MustCompile(`(?:^|[^0-9.,/\-])(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)(?:$|[^0-9/"])`)
	amountPattern   = regexp.MustCompile(`^\(?-?\$?\s*(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?\)?$`)
	thousandsComma  = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

type ParsedQty struct {
	Qty    *float64
	Unit   *string
	QtyRaw *string
}

// ParseQty takes the last number followed by a unit, or failing that the last bare number.
// Fractions such as 4-1/2" are never treated as quantities.
func ParseQty(input string) ParsedQty {
	line := strings.ReplaceAll(input, " ", " ")

	qtyRaw := ""
	qtyToken := ""
	unitToken := ""

	wm := withUnitPattern.FindAllStringSubmatch(line, -1)
	if len(wm) > 0 {
		last := wm[len(wm)-1]
		qtyRaw = strings.TrimSpace(last[1] + " " + last[2])
		qtyToken = strings.TrimSpace(last[1])
		unitToken = last[2]
	} else {
		nm := numberPattern.FindAllStringSubmatch(line, -1)
		if len(nm) > 0 {
			last := nm[len(nm)-1]
			qtyRaw = strings.TrimSpace(last[1])
			qtyToken = strings.TrimSpace(last[1])
		}
	}

	var qtyPtr *float64
	if qtyToken != "" {
		if parsed, err := strconv.ParseFloat(normalizeNumericToken(qtyToken), 64); err == nil {
			qtyPtr = FloatPtr(parsed)
		}
	}

	if unitToken == "" {
		if um := unitPattern.FindStringSubmatch(line); len(um) > 1 {
			unitToken = um[1]
		}
	}
	var unitPtr *string
	if unitToken != "" {
		u := normalizeUnit(unitToken)
		unitPtr = &u
	}

	var qtyRawPtr *string
	if qtyRaw != "" {
		qtyRawPtr = &qtyRaw
	}

	return ParsedQty{Qty: qtyPtr, Unit: unitPtr, QtyRaw: qtyRawPtr}
}

// ParseAmount reads a money or quantity cell such as "$1,234.50" or "(12.00)".
// Parenthesised values are negative, as on credit memos.
func ParseAmount(input string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(input, " ", " "))
	if s == "" {
		return nil
	}
	m := amountPattern.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	parsed, err := strconv.ParseFloat(normalizeNumericToken(m[1]+m[2]), 64)
	if err != nil {
		return nil
	}
	if strings.HasPrefix(s, "(") || strings.Contains(s, "-") {
		parsed = -parsed
	}
	return FloatPtr(parsed)
}

func normalizeUnit(unit string) string {
	u := strings.ToUpper(strings.TrimSpace(unit))
	switch u {
	case "EA", "EACH", "PC", "PCS":
		return "EA"
	case "PR", "PAIR":
		return "PR"
	case "SET", "SETS":
		return "SET"
	case "BOX", "BX":
		return "BOX"
	case "FT", "LF":
		return "FT"
	default:
		return u
	}
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if thousandsComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	return compact
}
