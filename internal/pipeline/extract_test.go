package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"orderflow/internal"
)

func TestLinesFromHTML(t *testing.T) {
	html := `<table>
<tr><th>Item #</th><th>Description</th><th>Qty</th><th>UOM</th><th>Unit Price</th><th>Ext Price</th></tr>
<tr><td>ND80PD RHO 626</td><td>Lever lockset</td><td>2</td><td>EA</td><td>$125.00</td><td>$250.00</td></tr>
<tr><td></td><td>Subtotal</td><td></td><td></td><td></td><td>$250.00</td></tr>
</table>`
	lines := LinesFromHTML(html, DocumentInfo{DocID: "so-1"})
	require.Len(t, lines, 1)
	l := lines[0]
	require.Equal(t, "ND80PD RHO 626", l.ItemNumber)
	require.Equal(t, "Lever lockset", l.Description)
	require.Equal(t, 2.0, *l.Quantity)
	require.Equal(t, "EA", l.UOM)
	require.Equal(t, 125.0, *l.UnitPrice)
	require.Equal(t, 250.0, *l.ExtendedPrice)
	require.Equal(t, internal.DocUnknown, l.DocType)
}

func TestLinesFromHTMLWithoutTable(t *testing.T) {
	if lines := LinesFromHTML("<p>no table here</p>", DocumentInfo{}); len(lines) != 0 {
		t.Fatalf("len=%d", len(lines))
	}
}

func TestLinesFromText(t *testing.T) {
	text := "Please ship the following:\n" +
		"2 EA ND80PD RHO 626 lever lockset @ $125.00 $250.00\n" +
		"4C 4041 XP 689 closer 3\n" +
		"Thanks,\n" +
		"Bob\n"
	lines := LinesFromText(text, DocumentInfo{DocID: "mail"})
	require.Len(t, lines, 2)

	require.Equal(t, "ND80PD", lines[0].ItemNumber)
	require.Equal(t, "RHO 626 lever lockset", lines[0].Description)
	require.Equal(t, 2.0, *lines[0].Quantity)
	require.Equal(t, "EA", lines[0].UOM)
	require.Equal(t, 125.0, *lines[0].UnitPrice)
	require.Equal(t, 250.0, *lines[0].ExtendedPrice)

	require.Equal(t, 2, lines[1].LineNo)
	require.Equal(t, 3.0, *lines[1].Quantity)
	require.Contains(t, lines[1].Description, "closer")
}

func TestLinesFromTextKeepsFinishCodesOutOfQuantity(t *testing.T) {
	lines := LinesFromText("ND80PD RHO 626 lever lockset", DocumentInfo{})
	require.Len(t, lines, 1)
	require.Nil(t, lines[0].Quantity)
	require.Equal(t, "ND80PD", lines[0].ItemNumber)
}

func TestLinesFromTextDedupes(t *testing.T) {
	lines := LinesFromText("ND80PD lever 2 EA\nND80PD lever 2 EA\n", DocumentInfo{DocID: "x"})
	require.Len(t, lines, 1)
}

func TestLinesFromCSV(t *testing.T) {
	csv := "Part,Description,Qty,Price\nLCN4041,Closer,\"1,200\",$80.00\n"
	lines, err := LinesFromCSV([]byte(csv), DocumentInfo{DocID: "c"})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, "LCN4041", lines[0].ItemNumber)
	require.Equal(t, 1200.0, *lines[0].Quantity)
	require.Equal(t, 80.0, *lines[0].UnitPrice)
}

func TestLinesFromExtraction(t *testing.T) {
	data := `{"documents":[
	  {"documentType":"Sales Order","orderNumber":"SO-77","customerName":"Acme Doors","customerPO":"PO-1",
	   "lineItems":[
	     {"itemNumber":"ND80PD","description":"Lever","unit":"ea","quantityOrdered":2,"unitPrice":125,"totalAmount":250},
	     {"itemNumber":"4041","description":"Closer","quantityOrdered":"3","unitPrice":"n/a"}
	   ]},
	  {"documentType":"credit memo","lineItems":[{"itemNumber":"RET-1","description":"Returned lock","quantityOrdered":-1}]}
	]}`
	lines, err := LinesFromExtraction([]byte(data), "scan-001")
	require.NoError(t, err)
	require.Len(t, lines, 3)

	require.Equal(t, []int{1, 2, 3}, []int{lines[0].LineNo, lines[1].LineNo, lines[2].LineNo})
	require.Equal(t, "SO-77", lines[0].DocID)
	require.Equal(t, internal.DocSalesOrder, lines[0].DocType)
	require.Equal(t, "Acme Doors", lines[0].CustomerName)
	require.Equal(t, "EA", lines[0].UOM)
	require.Equal(t, 3.0, *lines[1].Quantity)
	require.Nil(t, lines[1].UnitPrice)
	require.Nil(t, lines[1].ExtendedPrice)

	require.Equal(t, "scan-001", lines[2].DocID)
	require.Equal(t, internal.DocCreditMemo, lines[2].DocType)
	require.Equal(t, -1.0, *lines[2].Quantity)
}

func TestLinesFromExtractionMalformed(t *testing.T) {
	if _, err := LinesFromExtraction([]byte(`{"documents":`), "x"); err == nil {
		t.Fatal("expected error")
	}
}

const sampleEmail = `From: Buyer <buyer@example.com>
To: orders@example.com
Subject: PO 4512 - Purchase Order
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

2 EA ND80PD RHO 626 lever lockset @ $125.00

--b1
Content-Type: text/html; charset=utf-8

<table><tr><th>Item</th><th>Description</th><th>Qty</th></tr><tr><td>ND80PD RHO 626</td><td>Lever lockset</td><td>2 EA</td></tr></table>

--b1--
`

func TestLinesFromEmailPrefersHTML(t *testing.T) {
	lines, err := LinesFromEmail([]byte(strings.ReplaceAll(sampleEmail, "\n", "\r\n")), DocumentInfoForFile("inbox/po-4512.eml"))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	l := lines[0]
	require.Equal(t, "po-4512", l.DocID)
	require.Equal(t, "po-4512.eml", l.SourceFile)
	require.Equal(t, internal.DocPurchaseOrder, l.DocType)
	require.Equal(t, "4512", l.CustomerPO)
	require.Equal(t, "ND80PD RHO 626", l.ItemNumber)
	require.Equal(t, 2.0, *l.Quantity)
	require.Equal(t, "EA", l.UOM)
}

func TestInputTypeFor(t *testing.T) {
	cases := map[string]string{
		"a.json": "extraction",
		"b.XLSX": "xlsx",
		"c.eml":  "email",
		"d.htm":  "html",
		"e.csv":  "csv",
		"f.doc":  "",
	}
	for path, want := range cases {
		if got := InputTypeFor(path); got != want {
			t.Fatalf("%s: got %q want %q", path, got, want)
		}
	}
}

func TestExtractLinesFromInputUnsupported(t *testing.T) {
	if _, err := ExtractLinesFromInput("fax", "x"); err == nil {
		t.Fatal("expected error")
	}
}
