package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"orderflow/internal"
	"orderflow/internal/util"
)

var ignorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^--+$`),
	regexp.MustCompile(`(?i)^thanks?\b`),
	regexp.MustCompile(`(?i)^thank you`),
	regexp.MustCompile(`(?i)^(best |kind )?regards`),
	regexp.MustCompile(`(?i)^(tel|phone|fax)[:\s]`),
	regexp.MustCompile(`(?i)^e-?mail[:\s]`),
	regexp.MustCompile(`(?i)^(from|to|sent|subject|cc|date):`),
	regexp.MustCompile(`(?i)^http`),
}

var (
	totalRowPattern = regexp.MustCompile(`(?i)^(sub-?\s*)?total\b|^(sales )?tax\b|^freight\b|^shipping\b`)
	dollarPattern   = regexp.MustCompile(`\(?-?\$\s*(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?\)?`)
	subjectPO       = regexp.MustCompile(`(?i)\bP\.?O\.?\s*(?:#|no\.?|number)?\s*:?\s*([A-Z0-9][A-Z0-9-]{2,})`)
)

// DocumentInfo carries the document-level fields repeated onto every line.
// Table and text intake cannot see them, so callers fill what they know.
type DocumentInfo struct {
	SourceFile   string
	DocID        string
	DocType      internal.DocType
	CustomerName string
	CustomerPO   string
	DocDate      string
}

func (d DocumentInfo) apply(l *internal.OrderLine) {
	l.SourceFile = d.SourceFile
	l.DocID = d.DocID
	l.DocType = d.DocType
	if l.DocType == "" {
		l.DocType = internal.DocUnknown
	}
	l.CustomerName = d.CustomerName
	l.CustomerPO = d.CustomerPO
	l.DocDate = d.DocDate
}

// DocumentInfoForFile derives the doc id from the file stem.
func DocumentInfoForFile(path string) DocumentInfo {
	base := filepath.Base(path)
	return DocumentInfo{
		SourceFile: base,
		DocID:      strings.TrimSuffix(base, filepath.Ext(base)),
		DocType:    internal.DocUnknown,
	}
}

type extractionPayload struct {
	Documents []extractionDocument `json:"documents"`
}

type extractionDocument struct {
	DocumentType     string           `json:"documentType"`
	OrderNumber      string           `json:"orderNumber"`
	OrderDate        string           `json:"orderDate"`
	CustomerName     string           `json:"customerName"`
	CustomerPO       string           `json:"customerPO"`
	VendorOrderNo    string           `json:"vendorOrderNumber"`
	Currency         string           `json:"currency"`
	BillToName       string           `json:"billToName"`
	BillToAddressRaw string           `json:"billToAddressRaw"`
	ShipToName       string           `json:"shipToName"`
	ShipToAddressRaw string           `json:"shipToAddressRaw"`
	MarkInstructions string           `json:"markInstructions"`
	LineItems        []extractionItem `json:"lineItems"`
}

type extractionItem struct {
	ItemNumber      string      `json:"itemNumber"`
	Description     string      `json:"description"`
	Unit            string      `json:"unit"`
	QuantityOrdered looseNumber `json:"quantityOrdered"`
	UnitPrice       looseNumber `json:"unitPrice"`
	TotalAmount     looseNumber `json:"totalAmount"`
}

// looseNumber accepts a JSON number, a numeric string, or anything else as absent.
type looseNumber struct {
	v *float64
}

func (n *looseNumber) UnmarshalJSON(b []byte) error {
	n.v = nil
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		n.v = &f
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		n.v = util.ParseAmount(s)
	}
	return nil
}

// LinesFromExtraction flattens an extraction result into order lines.
// Line numbers run across all documents starting at 1.
func LinesFromExtraction(data []byte, sourceStem string) ([]internal.OrderLine, error) {
	var payload extractionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}

	out := []internal.OrderLine{}
	lineNo := 0
	for _, doc := range payload.Documents {
		docID := strings.TrimSpace(doc.OrderNumber)
		if docID == "" {
			docID = sourceStem
		}
		for _, item := range doc.LineItems {
			lineNo++
			out = append(out, internal.OrderLine{
				SourceFile:       sourceStem,
				DocID:            docID,
				DocType:          NormalizeDocType(doc.DocumentType),
				CustomerName:     strings.TrimSpace(doc.CustomerName),
				CustomerPO:       strings.TrimSpace(doc.CustomerPO),
				VendorOrderNo:    strings.TrimSpace(doc.VendorOrderNo),
				DocDate:          strings.TrimSpace(doc.OrderDate),
				ShipToName:       strings.TrimSpace(doc.ShipToName),
				ShipToAddress:    strings.TrimSpace(doc.ShipToAddressRaw),
				BillToName:       strings.TrimSpace(doc.BillToName),
				BillToAddress:    strings.TrimSpace(doc.BillToAddressRaw),
				MarkInstructions: strings.TrimSpace(doc.MarkInstructions),
				Currency:         strings.TrimSpace(doc.Currency),
				LineNo:           lineNo,
				ItemNumber:       strings.TrimSpace(item.ItemNumber),
				Description:      strings.TrimSpace(item.Description),
				Quantity:         item.QuantityOrdered.v,
				UOM:              strings.ToUpper(strings.TrimSpace(item.Unit)),
				UnitPrice:        item.UnitPrice.v,
				ExtendedPrice:    item.TotalAmount.v,
			})
		}
	}
	return out, nil
}

// LinesFromEmail reads a raw RFC 5322 message. HTML tables win over the text
// body when both yield lines, since multipart/alternative repeats the content.
func LinesFromEmail(raw []byte, doc DocumentInfo) ([]internal.OrderLine, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	subject := env.GetHeader("Subject")
	if doc.DocType == "" || doc.DocType == internal.DocUnknown {
		doc.DocType = NormalizeDocType(subject)
	}
	if doc.CustomerPO == "" {
		if m := subjectPO.FindStringSubmatch(subject); m != nil {
			doc.CustomerPO = m[1]
		}
	}

	lines := []internal.OrderLine{}
	if env.HTML != "" {
		lines = append(lines, LinesFromHTML(env.HTML, doc)...)
	}
	if len(lines) == 0 && env.Text != "" {
		lines = append(lines, LinesFromText(env.Text, doc)...)
	}

	for _, att := range env.Attachments {
		lower := strings.ToLower(strings.TrimSpace(att.FileName))
		var extra []internal.OrderLine
		var aerr error
		switch {
		case strings.HasSuffix(lower, ".xlsx"):
			extra, aerr = LinesFromXLSX(att.Content, doc)
		case strings.HasSuffix(lower, ".pdf"):
			extra, aerr = LinesFromPDF(att.Content, doc)
		case strings.HasSuffix(lower, ".csv"):
			extra, aerr = LinesFromCSV(att.Content, doc)
		case strings.HasSuffix(lower, ".json"):
			extra, aerr = LinesFromExtraction(att.Content, doc.DocID)
		}
		if aerr != nil {
			continue
		}
		lines = append(lines, extra...)
	}

	return renumber(dedupeLines(lines)), nil
}

// LinesFromText reads one candidate line per text line: an optional leading
// item code, a description, a quantity and up to two dollar amounts.
func LinesFromText(text string, doc DocumentInfo) []internal.OrderLine {
	out := []internal.OrderLine{}
	for _, raw := range splitLines(text) {
		line, ok := textToLine(raw)
		if !ok {
			continue
		}
		doc.apply(&line)
		out = append(out, line)
	}
	return renumber(dedupeLines(out))
}

// LinesFromHTML reads every table with a recognisable header row.
func LinesFromHTML(html string, doc DocumentInfo) []internal.OrderLine {
	page, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.OrderLine{}
	page.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := [][]string{}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := []string{}
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			rows = append(rows, cells)
		})
		if len(rows) < 2 {
			return
		}
		out = append(out, linesFromRows(rows, doc)...)
	})
	return renumber(out)
}

func LinesFromXLSX(content []byte, doc DocumentInfo) ([]internal.OrderLine, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []internal.OrderLine{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		out = append(out, linesFromRows(rows, doc)...)
	}
	return renumber(out), nil
}

func LinesFromCSV(content []byte, doc DocumentInfo) ([]internal.OrderLine, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return renumber(linesFromRows(rows, doc)), nil
}

func LinesFromPDF(content []byte, doc DocumentInfo) ([]internal.OrderLine, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}

	out := []internal.OrderLine{}
	for _, line := range LinesFromText(text.String(), doc) {
		if line.Quantity == nil {
			continue
		}
		out = append(out, line)
	}
	return renumber(out), nil
}

type columnMap struct {
	item, desc, qty, uom, price, ext int
}

func (c columnMap) found() bool {
	return c.desc >= 0 || c.qty >= 0 || c.item >= 0
}

// headerLike needs two recognised columns so a data row mentioning "part" is not taken for a header.
func (c columnMap) headerLike() bool {
	n := 0
	for _, idx := range []int{c.item, c.desc, c.qty, c.price, c.ext} {
		if idx >= 0 {
			n++
		}
	}
	return n >= 2
}

// inferColumns assigns the most specific columns first so that "Unit Price"
// is not taken for the unit of measure.
func inferColumns(headers []string) columnMap {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = strings.ToLower(util.NormalizeSpaces(h))
	}
	used := map[int]bool{}
	c := columnMap{}
	c.ext = findHeaderIndex(norm, used, "extended", "ext price", "ext.", "line total", "amount", "total")
	c.price = findHeaderIndex(norm, used, "unit price", "unit cost", "price", "cost", "each")
	c.qty = findHeaderIndex(norm, used, "qty", "quantity", "ordered", "quan")
	c.item = findHeaderIndex(norm, used, "item no", "item #", "item number", "part", "catalog", "sku", "model", "item")
	c.desc = findHeaderIndex(norm, used, "description", "desc", "product", "name")
	c.uom = findHeaderIndex(norm, used, "uom", "u/m", "unit")
	return c
}

// findHeaderIndex walks names in order, so earlier names win over header position.
func findHeaderIndex(headers []string, used map[int]bool, names ...string) int {
	for _, name := range names {
		for i, h := range headers {
			if used[i] || h == "" {
				continue
			}
			if strings.Contains(h, name) {
				used[i] = true
				return i
			}
		}
	}
	return -1
}

// linesFromRows infers the header from the first three non-blank rows; title
// rows above it are dropped. Without a header every row is read as free text.
func linesFromRows(rows [][]string, doc DocumentInfo) []internal.OrderLine {
	cols := columnMap{-1, -1, -1, -1, -1, -1}
	seen := 0
	out := []internal.OrderLine{}
	for _, row := range rows {
		cells := normalizeCells(row)
		if isBlank(cells) {
			continue
		}
		seen++
		if seen <= 3 && !cols.found() {
			if c := inferColumns(cells); c.headerLike() {
				cols = c
				out = out[:0]
				continue
			}
		}

		var line internal.OrderLine
		var ok bool
		if cols.found() {
			line, ok = rowToLine(cells, cols)
		} else {
			line, ok = textToLine(strings.Join(cells, " "))
		}
		if !ok {
			continue
		}
		doc.apply(&line)
		out = append(out, line)
	}
	return out
}

func rowToLine(cells []string, cols columnMap) (internal.OrderLine, bool) {
	item := util.Cell(cells, cols.item)
	desc := util.Cell(cells, cols.desc)
	if item == "" && desc == "" {
		return internal.OrderLine{}, false
	}
	if totalRowPattern.MatchString(item) || totalRowPattern.MatchString(desc) {
		return internal.OrderLine{}, false
	}

	line := internal.OrderLine{
		ItemNumber:    item,
		Description:   desc,
		UnitPrice:     util.ParseAmount(util.Cell(cells, cols.price)),
		ExtendedPrice: util.ParseAmount(util.Cell(cells, cols.ext)),
		UOM:           strings.ToUpper(util.Cell(cells, cols.uom)),
	}
	if cols.qty >= 0 {
		parsed := util.ParseQty(util.Cell(cells, cols.qty))
		line.Quantity = parsed.Qty
		if line.UOM == "" && parsed.Unit != nil {
			line.UOM = *parsed.Unit
		}
	}
	if line.Quantity == nil && line.UnitPrice == nil && line.ExtendedPrice == nil {
		return internal.OrderLine{}, false
	}
	return line, true
}

func textToLine(raw string) (internal.OrderLine, bool) {
	compact := util.NormalizeSpaces(raw)
	if compact == "" || isLikelyNoise(compact) || !util.HasLetters(compact) {
		return internal.OrderLine{}, false
	}
	if totalRowPattern.MatchString(compact) {
		return internal.OrderLine{}, false
	}

	line := internal.OrderLine{}
	amounts := dollarPattern.FindAllString(compact, -1)
	if len(amounts) > 0 {
		line.UnitPrice = util.ParseAmount(amounts[0])
	}
	if len(amounts) > 1 {
		line.ExtendedPrice = util.ParseAmount(amounts[len(amounts)-1])
	}
	rest := util.NormalizeSpaces(dollarPattern.ReplaceAllString(compact, " "))
	rest = strings.TrimSpace(strings.TrimRight(rest, "@"))

	line.Quantity, line.UOM, rest = takeQty(rest)

	fields := strings.Fields(rest)
	if len(fields) > 1 && util.LooksLikeCode(fields[0]) {
		line.ItemNumber = fields[0]
		fields = fields[1:]
	}
	line.Description = strings.Trim(strings.Join(fields, " "), " -|;:@")
	if line.Description == "" && line.ItemNumber == "" {
		return internal.OrderLine{}, false
	}
	if line.Quantity == nil && line.UnitPrice == nil && line.ItemNumber == "" {
		return internal.OrderLine{}, false
	}
	return line, true
}

// takeQty accepts a number with a unit anywhere, or a bare number only as the
// first or last token; finish codes such as 626 sit mid-line.
func takeQty(s string) (*float64, string, string) {
	parsed := util.ParseQty(s)
	if parsed.Qty == nil || parsed.QtyRaw == nil {
		return nil, "", s
	}
	raw := *parsed.QtyRaw
	fields := strings.Fields(s)
	if parsed.Unit != nil && strings.Contains(raw, " ") {
		idx := strings.LastIndex(s, raw)
		if idx < 0 {
			return parsed.Qty, *parsed.Unit, s
		}
		return parsed.Qty, *parsed.Unit, util.NormalizeSpaces(s[:idx] + " " + s[idx+len(raw):])
	}
	unit := ""
	if parsed.Unit != nil {
		unit = *parsed.Unit
	}
	switch {
	case len(fields) > 1 && fields[len(fields)-1] == raw:
		return parsed.Qty, unit, strings.Join(fields[:len(fields)-1], " ")
	case len(fields) > 1 && fields[0] == raw:
		return parsed.Qty, unit, strings.Join(fields[1:], " ")
	case len(fields) > 1 && strings.EqualFold(fields[0], raw+"x"):
		return parsed.Qty, unit, strings.Join(fields[1:], " ")
	}
	return nil, "", s
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func dedupeLines(lines []internal.OrderLine) []internal.OrderLine {
	seen := map[string]struct{}{}
	out := make([]internal.OrderLine, 0, len(lines))
	for _, l := range lines {
		qtyKey := "null"
		if l.Quantity != nil {
			qtyKey = strconv.FormatFloat(*l.Quantity, 'g', -1, 64)
		}
		key := l.DocID + "|" + strings.ToUpper(l.ItemNumber) + "|" + strings.ToLower(l.Description) + "|" + qtyKey
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}

func renumber(lines []internal.OrderLine) []internal.OrderLine {
	for i := range lines {
		lines[i].LineNo = i + 1
	}
	return lines
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, util.NormalizeSpaces(c))
	}
	return out
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
