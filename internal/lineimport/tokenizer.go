package lineimport

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"tcmclinic/internal/apperr"

	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

const bom = "\uFEFF"

// Row is one data row keyed by header name
type Row map[string]string

// Table is a tokenized CSV document
type Table struct {
	Header    []string
	Rows      []Row
	Malformed int // rows the CSV reader could not split
}

// DecodeText converts an uploaded export to a string. LINE exports saved on
// Traditional Chinese Windows machines are Big5, so anything that is not valid
// UTF-8 is decoded as Big5 before giving up and returning the raw bytes.
func DecodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, _, err := transform.Bytes(traditionalchinese.Big5.NewDecoder(), raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// normalizeText strips a leading BOM and converts CRLF / bare CR to LF
func normalizeText(text string) string {
	text = strings.TrimPrefix(text, bom)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Tokenize splits raw CSV text into header-keyed rows. The first non-empty
// line is the header. Short rows are padded with empty strings and fields
// beyond the header are dropped.
func Tokenize(text string) (*Table, error) {
	clean := normalizeText(text)
	if !hasNonEmptyLine(clean) {
		return nil, apperr.Parse("CSV input is empty")
	}

	reader := csv.NewReader(strings.NewReader(clean))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	table := &Table{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				table.Malformed++
				continue
			}
			return nil, apperr.Parse("failed to read CSV: %v", err)
		}

		if table.Header == nil {
			table.Header = make([]string, len(record))
			for i, h := range record {
				table.Header[i] = strings.TrimSpace(strings.TrimPrefix(h, bom))
			}
			continue
		}

		row := make(Row, len(table.Header))
		for i, key := range table.Header {
			if i < len(record) {
				row[key] = strings.TrimSpace(record[i])
			} else {
				row[key] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

func hasNonEmptyLine(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if line != "" {
			return true
		}
	}
	return false
}
