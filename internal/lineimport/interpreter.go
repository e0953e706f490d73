package lineimport

import (
	"strings"
	"time"
)

// ChatMessageEvent is one interpreted chat line with a resolved timestamp
type ChatMessageEvent struct {
	Timestamp        time.Time
	IsPatientSpeaker bool
	Keywords         []string
	SyndromeHints    []string
	SourceRow        Row
}

// FoldState is threaded through the row stream. Exports print the date once
// per day, so LastDate carries the most recent explicit date to later rows.
type FoldState struct {
	LastDate string
	Events   []ChatMessageEvent
	Ignored  int
	Names    []string // distinct user names, first-seen order

	seenNames map[string]struct{}
}

// Interpreter turns header-keyed rows into chat message events
type Interpreter struct {
	cols Columns
	loc  *time.Location
}

// NewInterpreter creates an interpreter that resolves timestamps in loc
func NewInterpreter(cols Columns, loc *time.Location) *Interpreter {
	if loc == nil {
		loc = time.Local
	}
	return &Interpreter{cols: cols, loc: loc}
}

// Interpret folds Step over rows starting from the zero state
func (in *Interpreter) Interpret(rows []Row) FoldState {
	var state FoldState
	for _, row := range rows {
		state = in.Step(state, row)
	}
	return state
}

// Step consumes one row and returns the next state
func (in *Interpreter) Step(state FoldState, row Row) FoldState {
	name := strings.TrimSpace(row[in.cols.UserName])
	if name != "" {
		if state.seenNames == nil {
			state.seenNames = make(map[string]struct{})
		}
		if _, ok := state.seenNames[name]; !ok {
			state.seenNames[name] = struct{}{}
			state.Names = append(state.Names, name)
		}
	}

	dateStr := strings.TrimSpace(row[in.cols.Date])
	if dateStr == "" {
		dateStr = state.LastDate
	} else {
		state.LastDate = dateStr
	}

	timeStr := strings.TrimSpace(row[in.cols.Time])
	if dateStr == "" || timeStr == "" {
		state.Ignored++
		return state
	}

	ts, ok := ParseTimestamp(dateStr, timeStr, in.loc)
	if !ok {
		state.Ignored++
		return state
	}

	keywords := SplitTerms(row[in.cols.Keywords])
	syndromes := SplitTerms(row[in.cols.TCMAssist])
	if len(keywords) == 0 && len(syndromes) == 0 {
		return state
	}

	speaker := strings.TrimSpace(row[in.cols.Speaker])
	isPatient := strings.EqualFold(strings.TrimSpace(row[in.cols.SenderType]), "user") ||
		(name != "" && speaker == name)

	state.Events = append(state.Events, ChatMessageEvent{
		Timestamp:        ts,
		IsPatientSpeaker: isPatient,
		Keywords:         keywords,
		SyndromeHints:    syndromes,
		SourceRow:        row,
	})
	return state
}

var timestampLayouts = []string{
	"2006/1/2 15:04",
	"2006/1/2 15:04:05",
	"2006/1/2 3:04 PM",
	"2006/1/2 3:04:05 PM",
	"2006/1/2 3:04PM",
}

// ParseTimestamp combines a date and a time cell into a timestamp in loc.
// Dates may use '/', '-' or '.' separators; times may carry a 上午/下午 prefix.
func ParseTimestamp(dateStr, timeStr string, loc *time.Location) (time.Time, bool) {
	date := strings.NewReplacer(".", "/", "-", "/").Replace(strings.TrimSpace(dateStr))
	clock := strings.TrimSpace(timeStr)
	switch {
	case strings.HasPrefix(clock, "上午"):
		clock = strings.TrimSpace(strings.TrimPrefix(clock, "上午")) + " AM"
	case strings.HasPrefix(clock, "下午"):
		clock = strings.TrimSpace(strings.TrimPrefix(clock, "下午")) + " PM"
	}

	combined := date + " " + clock
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, combined, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// SplitTerms splits a free-text cell on Chinese/ASCII commas and the
// ideographic comma, trimming and dropping empty terms.
func SplitTerms(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '，' || r == ',' || r == '、'
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := strings.TrimSpace(f); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}
