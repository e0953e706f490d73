package lineimport

import (
	"time"

	"tcmclinic/internal/models"
)

// BuildHistoryRecords maps sorted weekly buckets to history records stamped with runAt
func BuildHistoryRecords(buckets []WeeklyBucket, runAt time.Time) []models.HistoryRecord {
	records := make([]models.HistoryRecord, 0, len(buckets))
	for _, b := range buckets {
		records = append(records, models.HistoryRecord{
			VisitDate: b.WeekStart,
			Symptoms:  b.Keywords,
			Syndromes: b.Syndromes,
			CreatedAt: runAt,
			UpdatedAt: runAt,
		})
	}
	return records
}

// Result is the output of running a CSV export through the whole pipeline
type Result struct {
	Records  []models.HistoryRecord
	Weeks    int
	Messages int
	Ignored  int
	Names    []string
}

// Pipeline wires tokenizer, interpreter, aggregator and record builder
type Pipeline struct {
	interpreter *Interpreter
}

// NewPipeline creates a pipeline for the given column mapping and clinic location
func NewPipeline(cols Columns, loc *time.Location) *Pipeline {
	return &Pipeline{interpreter: NewInterpreter(cols, loc)}
}

// Run parses text and builds weekly history records. Only a wholly empty input
// is an error; bad rows are counted in Ignored.
func (p *Pipeline) Run(text string, runAt time.Time) (*Result, error) {
	table, err := Tokenize(text)
	if err != nil {
		return nil, err
	}

	state := p.interpreter.Interpret(table.Rows)
	buckets := AggregateWeekly(state.Events)

	return &Result{
		Records:  BuildHistoryRecords(buckets, runAt),
		Weeks:    len(buckets),
		Messages: len(state.Events),
		Ignored:  state.Ignored + table.Malformed,
		Names:    state.Names,
	}, nil
}
