package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"orderflow/internal"
)

func TestDetectEdgeCases(t *testing.T) {
	zero := 0.0
	price := 12.5

	cases := []struct {
		name string
		in   EdgeCaseInput
		want []internal.EdgeCase
	}{
		{
			name: "clean line",
			in:   EdgeCaseInput{DocType: internal.DocSalesOrder, Description: "Mortise lock 626", UnitPrice: &price},
			want: []internal.EdgeCase{},
		},
		{
			name: "custom dimension",
			in:   EdgeCaseInput{Description: `4-1/2" CUT TO SIZE`},
			want: []internal.EdgeCase{internal.EdgeCustomLength},
		},
		{
			name: "credit memo by doc id",
			in:   EdgeCaseInput{DocID: "inv-1001-cm", Description: "Return"},
			want: []internal.EdgeCase{internal.EdgeCreditMemo},
		},
		{
			name: "rga layout and zero dollar",
			in:   EdgeCaseInput{Description: "RGA 5521 special layout per dwg", UnitPrice: &zero},
			want: []internal.EdgeCase{internal.EdgeRGA, internal.EdgeSpecialLayout, internal.EdgeZeroDollar},
		},
		{
			name: "wiring and pickup",
			in:   EdgeCaseInput{Description: "Von Duprin exit device, customer pickup"},
			want: []internal.EdgeCase{internal.EdgeWiringSpec, internal.EdgeCustomerPickup},
		},
		{
			name: "fixed precedence",
			in:   EdgeCaseInput{DocType: internal.DocCreditMemo, Description: `P/U RGA kick plate 3/4" thick`, ExtendedPrice: &zero},
			want: []internal.EdgeCase{internal.EdgeCreditMemo, internal.EdgeRGA, internal.EdgeCustomLength, internal.EdgeZeroDollar, internal.EdgeCustomerPickup},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectEdgeCases(tc.in)
			require.NotNil(t, got)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDetectMissingPriceIsNotZeroDollar(t *testing.T) {
	got := DetectEdgeCases(EdgeCaseInput{Description: "Closer"})
	require.Empty(t, got)
}

func TestDeriveItemClass(t *testing.T) {
	cases := []struct {
		flags []internal.EdgeCase
		item  string
		want  internal.ItemClass
	}{
		{nil, "ND80PD", internal.ClassCatalog},
		{nil, "  ", internal.ClassUnknown},
		{[]internal.EdgeCase{internal.EdgeZeroDollar}, "ND80PD", internal.ClassCatalog},
		{[]internal.EdgeCase{internal.EdgeCustomLength}, "ND80PD", internal.ClassCustom},
		{[]internal.EdgeCase{internal.EdgeWiringSpec}, "", internal.ClassCustom},
		{[]internal.EdgeCase{internal.EdgeSpecialLayout}, "", internal.ClassCustom},
	}
	for _, tc := range cases {
		if got := DeriveItemClass(tc.flags, tc.item); got != tc.want {
			t.Fatalf("DeriveItemClass(%v, %q) = %s, want %s", tc.flags, tc.item, got, tc.want)
		}
	}
}

func TestLegacyFlagSlots(t *testing.T) {
	slots := LegacyFlagSlots([]internal.EdgeCase{
		internal.EdgeCreditMemo, internal.EdgeRGA, internal.EdgeZeroDollar, internal.EdgeCustomerPickup,
	})
	require.Equal(t, [3]string{"CREDIT_MEMO", "RGA", "ZERO_DOLLAR"}, slots)
	require.Equal(t, [3]string{}, LegacyFlagSlots(nil))
}

func TestNormalizeDocType(t *testing.T) {
	cases := map[string]internal.DocType{
		"Sales Order":    internal.DocSalesOrder,
		"purchase_order": internal.DocPurchaseOrder,
		"PO":             internal.DocPurchaseOrder,
		"Credit Memo":    internal.DocCreditMemo,
		"Credit Invoice": internal.DocInvoice,
		"pick-sheet":     internal.DocPickingSheet,
		"Packing list":   internal.DocUnknown,
		"":               internal.DocUnknown,
	}
	for raw, want := range cases {
		if got := NormalizeDocType(raw); got != want {
			t.Fatalf("NormalizeDocType(%q) = %s, want %s", raw, got, want)
		}
	}
}
