package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"orderflow/internal"
)

// ExtractLinesFromInput takes inline content for text and html, and a file path for the rest.
func ExtractLinesFromInput(inputType string, input string) ([]internal.OrderLine, error) {
	switch inputType {
	case "text":
		return LinesFromText(input, DocumentInfo{DocID: "inline"}), nil
	case "html":
		return LinesFromHTML(input, DocumentInfo{DocID: "inline"}), nil
	case "xlsx", "pdf", "csv", "email", "extraction":
		blob, err := os.ReadFile(input)
		if err != nil {
			return nil, err
		}
		return linesFromBlob(inputType, input, blob)
	case "auto":
		blob, err := os.ReadFile(input)
		if err != nil {
			return nil, err
		}
		return LinesFromFile(input, blob)
	default:
		return nil, fmt.Errorf("unsupported input type: %s", inputType)
	}
}

// InputTypeFor maps a file extension to an intake type; "" means unsupported.
func InputTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "extraction"
	case ".xlsx":
		return "xlsx"
	case ".csv":
		return "csv"
	case ".pdf":
		return "pdf"
	case ".eml":
		return "email"
	case ".html", ".htm":
		return "html"
	case ".txt":
		return "text"
	}
	return ""
}

// LinesFromFile dispatches on the file extension.
func LinesFromFile(path string, blob []byte) ([]internal.OrderLine, error) {
	kind := InputTypeFor(path)
	if kind == "" {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Base(path))
	}
	return linesFromBlob(kind, path, blob)
}

func linesFromBlob(kind, path string, blob []byte) ([]internal.OrderLine, error) {
	doc := DocumentInfoForFile(path)
	switch kind {
	case "extraction":
		return LinesFromExtraction(blob, doc.DocID)
	case "xlsx":
		return LinesFromXLSX(blob, doc)
	case "csv":
		return LinesFromCSV(blob, doc)
	case "pdf":
		return LinesFromPDF(blob, doc)
	case "email":
		return LinesFromEmail(blob, doc)
	case "html":
		return LinesFromHTML(string(blob), doc), nil
	case "text":
		return LinesFromText(string(blob), doc), nil
	}
	return nil, fmt.Errorf("unsupported input type: %s", kind)
}
