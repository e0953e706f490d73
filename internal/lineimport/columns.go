package lineimport

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Columns maps the logical fields of a LINE chat export to CSV header names
type Columns struct {
	UserName   string `yaml:"user_name"`
	Content    string `yaml:"content"`
	Time       string `yaml:"time"`
	Date       string `yaml:"date"`
	SenderType string `yaml:"sender_type"` // "user" or "admin"
	SenderName string `yaml:"sender_name"`
	Speaker    string `yaml:"speaker"`
	Keywords   string `yaml:"keywords"`
	TCMAssist  string `yaml:"tcm_assist"`
}

// DefaultColumns returns the headers produced by the clinic's LINE export tool
func DefaultColumns() Columns {
	return Columns{
		UserName:   "用戶名",
		Content:    "Content",
		Time:       "時間",
		Date:       "日期",
		SenderType: "發送者類型",
		SenderName: "發送者姓名",
		Speaker:    "Speaker",
		Keywords:   "Keywords",
		TCMAssist:  "中醫診斷輔助",
	}
}

// LoadColumns reads a YAML column mapping. Keys left blank keep their default.
func LoadColumns(path string) (Columns, error) {
	cols := DefaultColumns()
	if path == "" {
		return cols, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cols, fmt.Errorf("failed to read column mapping: %w", err)
	}

	var override Columns
	if err := yaml.Unmarshal(data, &override); err != nil {
		return cols, fmt.Errorf("failed to parse column mapping: %w", err)
	}

	overlay(&cols.UserName, override.UserName)
	overlay(&cols.Content, override.Content)
	overlay(&cols.Time, override.Time)
	overlay(&cols.Date, override.Date)
	overlay(&cols.SenderType, override.SenderType)
	overlay(&cols.SenderName, override.SenderName)
	overlay(&cols.Speaker, override.Speaker)
	overlay(&cols.Keywords, override.Keywords)
	overlay(&cols.TCMAssist, override.TCMAssist)

	return cols, nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
