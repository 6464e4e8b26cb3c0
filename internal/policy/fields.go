package policy

import "orderflow/internal"

// lineFields maps the exported column names used in required_fields_for_auto
// to a presence check. Numeric fields count as present when set, even at 0.
var lineFields = map[string]func(*internal.RoutedOrderLine) bool{
	"source_file":             func(l *internal.RoutedOrderLine) bool { return l.SourceFile != "" },
	"doc_id":                  func(l *internal.RoutedOrderLine) bool { return l.DocID != "" },
	"doc_type":                func(l *internal.RoutedOrderLine) bool { return l.DocType != "" },
	"customer_name":           func(l *internal.RoutedOrderLine) bool { return l.CustomerName != "" },
	"customer_order_no":       func(l *internal.RoutedOrderLine) bool { return l.CustomerPO != "" },
	"abh_order_no":            func(l *internal.RoutedOrderLine) bool { return l.VendorOrderNo != "" },
	"document_date":           func(l *internal.RoutedOrderLine) bool { return l.DocDate != "" },
	"ship_to_name":            func(l *internal.RoutedOrderLine) bool { return l.ShipToName != "" },
	"ship_to_address_raw":     func(l *internal.RoutedOrderLine) bool { return l.ShipToAddress != "" },
	"bill_to_name":            func(l *internal.RoutedOrderLine) bool { return l.BillToName != "" },
	"bill_to_address_raw":     func(l *internal.RoutedOrderLine) bool { return l.BillToAddress != "" },
	"mark_instructions":       func(l *internal.RoutedOrderLine) bool { return l.MarkInstructions != "" },
	"currency":                func(l *internal.RoutedOrderLine) bool { return l.Currency != "" },
	"line_no":                 func(l *internal.RoutedOrderLine) bool { return l.LineNo != 0 },
	"customer_item_no":        func(l *internal.RoutedOrderLine) bool { return l.ItemNumber != "" },
	"customer_item_desc_raw":  func(l *internal.RoutedOrderLine) bool { return l.Description != "" },
	"qty":                     func(l *internal.RoutedOrderLine) bool { return l.Quantity != nil },
	"uom":                     func(l *internal.RoutedOrderLine) bool { return l.UOM != "" },
	"unit_price":              func(l *internal.RoutedOrderLine) bool { return l.UnitPrice != nil },
	"extended_price":          func(l *internal.RoutedOrderLine) bool { return l.ExtendedPrice != nil },
	"manufacturer_abbr":       func(l *internal.RoutedOrderLine) bool { return l.ManufacturerAbbr != "" },
	"manufacturer_full":       func(l *internal.RoutedOrderLine) bool { return l.ManufacturerFull != "" },
	"finish_us_code":          func(l *internal.RoutedOrderLine) bool { return l.FinishCode != "" },
	"finish_bhma_code":        func(l *internal.RoutedOrderLine) bool { return l.FinishSecondaryCode != "" },
	"category":                func(l *internal.RoutedOrderLine) bool { return l.Category != "" },
	"subcategory":             func(l *internal.RoutedOrderLine) bool { return l.Subcategory != "" },
	"gordon_symbol":           func(l *internal.RoutedOrderLine) bool { return l.CategorySymbol != "" },
	"electrified_device_type": func(l *internal.RoutedOrderLine) bool { return l.ElectrifiedDeviceType != "" },
	"voltage":                 func(l *internal.RoutedOrderLine) bool { return l.Voltage != "" },
	"fail_mode":               func(l *internal.RoutedOrderLine) bool { return l.FailMode != "" },
	"wiring_configuration":    func(l *internal.RoutedOrderLine) bool { return l.WiringConfiguration != "" },
	"hardware_set_template":   func(l *internal.RoutedOrderLine) bool { return l.HardwareSetTemplate != "" },
	"abh_item_no_candidate":   func(l *internal.RoutedOrderLine) bool { return l.ItemNumberCandidate != "" },
	"item_class":              func(l *internal.RoutedOrderLine) bool { return l.ItemClass != "" },
	"match_method":            func(l *internal.RoutedOrderLine) bool { return l.MatchMethod != "" },
}

// fieldPresent reports whether the named field is non-empty. Unknown names are absent.
func fieldPresent(l *internal.RoutedOrderLine, name string) bool {
	check, ok := lineFields[name]
	if !ok {
		return false
	}
	return check(l)
}

// KnownField reports whether name can be used in required_fields_for_auto.
func KnownField(name string) bool {
	_, ok := lineFields[name]
	return ok
}
