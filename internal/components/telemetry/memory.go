package telemetry

import "sync"

// Report is a single report captured by MemoryAPI.
type Report struct {
	// Kind is one of "broken", "warning", "debug" or "count".
	Kind   string
	ID     string
	Params []any
	Count  int64
}

// MemoryAPI records every report in memory so tests can assert on what was
// (or was not) reported.
type MemoryAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func (m *MemoryAPI) push(r Report) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.reports = append(m.reports, r)
}

func (m *MemoryAPI) ReportBroken(id string, params ...any) {
	m.push(Report{Kind: "broken", ID: id, Params: params})
}

func (m *MemoryAPI) ReportWarning(id string, params ...any) {
	m.push(Report{Kind: "warning", ID: id, Params: params})
}

func (m *MemoryAPI) ReportDebug(msg string, params ...any) {
	m.push(Report{Kind: "debug", ID: msg, Params: params})
}

func (m *MemoryAPI) ReportCount(id string, count int64) {
	m.push(Report{Kind: "count", ID: id, Count: count})
}

// Reports returns a copy of the reports of the given kind, or all reports if kind is empty.
func (m *MemoryAPI) Reports(kind string) []Report {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var out []Report
	for _, r := range m.reports {
		if kind == "" || r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Has reports whether a report with the given kind and id was recorded.
func (m *MemoryAPI) Has(kind, id string) bool {
	for _, r := range m.Reports(kind) {
		if r.ID == id {
			return true
		}
	}
	return false
}
