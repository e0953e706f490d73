package lineimport

import (
	"testing"

	"tcmclinic/internal/apperr"

	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

func TestTokenize_QuotedField(t *testing.T) {
	table, err := Tokenize("name,note\nx,\"a, b\"\"c\"\n")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}

	if len(table.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(table.Rows))
	}
	if got := table.Rows[0]["note"]; got != `a, b"c` {
		t.Errorf("Expected %q, got %q", `a, b"c`, got)
	}
}

func TestTokenize_SpaceBeforeQuote(t *testing.T) {
	table, err := Tokenize("a,b,c\nx, \"頭痛,失眠\",z\n")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}

	if len(table.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(table.Rows))
	}
	row := table.Rows[0]
	if row["b"] != "頭痛,失眠" {
		t.Errorf("Expected quoted cell kept whole, got %q", row["b"])
	}
	if row["c"] != "z" {
		t.Errorf("Expected column c to be %q, got %q", "z", row["c"])
	}
}

func TestTokenize_Normalization(t *testing.T) {
	tests := []struct {
		name  string
		input string
		rows  int
	}{
		{"CRLF line endings", "a,b\r\n1,2\r\n3,4\r\n", 2},
		{"bare CR line endings", "a,b\r1,2\r3,4", 2},
		{"leading BOM", "\uFEFFa,b\n1,2\n", 1},
		{"blank lines discarded", "a,b\n\n1,2\n\n\n3,4\n", 2},
		{"header only", "a,b\n", 0},
		{"embedded newline in quotes", "a,b\n\"line1\nline2\",2\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("Tokenize failed: %v", err)
			}
			if len(table.Rows) != tt.rows {
				t.Errorf("Expected %d rows, got %d", tt.rows, len(table.Rows))
			}
			if table.Header[0] != "a" {
				t.Errorf("Expected first header 'a', got %q", table.Header[0])
			}
		})
	}
}

func TestTokenize_EmbeddedNewlineKept(t *testing.T) {
	table, err := Tokenize("a,b\n\"line1\nline2\",2\n")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if got := table.Rows[0]["a"]; got != "line1\nline2" {
		t.Errorf("Expected embedded newline to survive, got %q", got)
	}
}

func TestTokenize_RaggedRows(t *testing.T) {
	table, err := Tokenize("a,b,c\n1\n1,2,3,4,5\n")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}

	short := table.Rows[0]
	if short["a"] != "1" || short["b"] != "" || short["c"] != "" {
		t.Errorf("Short row not padded: %#v", short)
	}

	long := table.Rows[1]
	if len(long) != 3 {
		t.Errorf("Expected extra fields to be dropped, got %#v", long)
	}
}

func TestTokenize_EmptyInput(t *testing.T) {
	for _, input := range []string{"", "\n\n", "\r\n\r\n", "\uFEFF"} {
		_, err := Tokenize(input)
		if !apperr.Is(err, apperr.KindParse) {
			t.Errorf("Expected ParseError for %q, got %v", input, err)
		}
	}
}

func TestDecodeText_Big5(t *testing.T) {
	big5, _, err := transform.Bytes(traditionalchinese.Big5.NewEncoder(), []byte("日期,時間\n2025/1/6,10:00\n"))
	if err != nil {
		t.Fatalf("Failed to encode fixture: %v", err)
	}

	text := DecodeText(big5)
	table, err := Tokenize(text)
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if table.Header[0] != "日期" || table.Rows[0]["時間"] != "10:00" {
		t.Errorf("Big5 export not decoded: header=%v rows=%v", table.Header, table.Rows)
	}

	if DecodeText([]byte("頭痛")) != "頭痛" {
		t.Error("UTF-8 input must pass through unchanged")
	}
}
