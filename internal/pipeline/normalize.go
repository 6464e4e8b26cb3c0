package pipeline

import (
	"strings"

	"orderflow/internal"
)

// NormalizeDocType maps a free-text document type ("Sales Order", "credit memo") to a DocType.
// Checks run in a fixed order, so "Credit Invoice" is an INVOICE.
func NormalizeDocType(raw string) internal.DocType {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	switch {
	case strings.Contains(s, "INVOICE"):
		return internal.DocInvoice
	case strings.Contains(s, "SALES ORDER"):
		return internal.DocSalesOrder
	case strings.Contains(s, "PURCHASE ORDER"), s == "PO":
		return internal.DocPurchaseOrder
	case strings.Contains(s, "CREDIT"):
		return internal.DocCreditMemo
	case strings.Contains(s, "PICKING"), strings.Contains(s, "PICK SHEET"):
		return internal.DocPickingSheet
	default:
		return internal.DocUnknown
	}
}
