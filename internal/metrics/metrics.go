// Package metrics is the backend-neutral metrics contract used by the catalog.
//
// Callers depend only on Backend. Backends buffer what they receive and ship
// it when Flush or Close is called; nothing here runs in the background.
package metrics

// Labels are metric dimensions such as {"intent": "count"}.
type Labels map[string]string

// Metric names emitted by the catalog.
const (
	QueriesTotal       = "askdata_queries_total"
	QueryDuration      = "askdata_query_duration_seconds"
	RowsLoadedTotal    = "askdata_rows_loaded_total"
	RowsFailedTotal    = "askdata_rows_failed_total"
	LLMCallsTotal      = "askdata_llm_calls_total"
	LLMDuration        = "askdata_llm_duration_seconds"
	FallbacksTotal     = "askdata_fallbacks_total"
	TablesLoadedTotal  = "askdata_tables_loaded_total"
	LoadDuration       = "askdata_load_duration_seconds"
)

// Backend receives counters and histogram observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}
