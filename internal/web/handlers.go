package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/lucasnoah/texlog/internal/analytics"
	"github.com/lucasnoah/texlog/internal/db"
	"github.com/lucasnoah/texlog/internal/logparse"
)

func relTime(ts string) string {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	var t time.Time
	for _, f := range formats {
		if parsed, err := time.Parse(f, ts); err == nil {
			t = parsed
			break
		}
	}
	if t.IsZero() {
		return ts
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func (s *Server) execTemplate(w http.ResponseWriter, tmpl *template.Template, data interface{}) {
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// runID parses the {id} path value.
func runID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid run ID %q", raw)
	}
	return id, nil
}

// ---- Dashboard ----

// DashboardData is the view model for the run list.
type DashboardData struct {
	Title     string
	Source    string
	Runs      []db.ParseRun
	Trends    []analytics.SourceTrend
	Recurring []analytics.Recurring
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")

	runs, err := s.db.ListParseRuns(source, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	trends, err := analytics.QuerySourceTrends(s.db, "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	recurring, _ := analytics.QueryRecurring(s.db, "", 10)

	s.execTemplate(w, s.dashboardTmpl, DashboardData{
		Title:     "Runs",
		Source:    source,
		Runs:      runs,
		Trends:    trends,
		Recurring: recurring,
	})
}

// ---- Run detail ----

// RunSection groups one kind of diagnostic on the run page.
type RunSection struct {
	Kind        string
	Title       string
	Diagnostics []db.Diagnostic
}

// RunData is the view model for one run.
type RunData struct {
	Title    string
	Run      *db.ParseRun
	Sections []RunSection
}

var runSections = []struct {
	kind  logparse.Kind
	title string
}{
	{logparse.KindError, "Errors"},
	{logparse.KindWarning, "Warnings"},
	{logparse.KindBadBox, "Bad boxes"},
	{logparse.KindMissingRef, "Missing references"},
	{logparse.KindInfo, "Infos"},
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	run, err := s.db.GetParseRun(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}
	diags, err := s.db.GetDiagnostics(id, "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	byKind := make(map[string][]db.Diagnostic)
	for _, d := range diags {
		byKind[d.Kind] = append(byKind[d.Kind], d)
	}
	data := RunData{Title: fmt.Sprintf("Run %d", run.ID), Run: run}
	for _, sec := range runSections {
		list := byKind[sec.kind.String()]
		if len(list) == 0 && sec.kind == logparse.KindInfo {
			continue
		}
		data.Sections = append(data.Sections, RunSection{Kind: sec.kind.String(), Title: sec.title, Diagnostics: list})
	}
	s.execTemplate(w, s.runTmpl, data)
}

// ---- JSON API ----

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.db.ListParseRuns(r.URL.Query().Get("source"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []db.ParseRun{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var kind string
	if v := r.URL.Query().Get("kind"); v != "" {
		k, err := logparse.ParseKind(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind = k.String()
	}

	run, err := s.db.GetParseRun(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}
	diags, err := s.db.GetDiagnostics(id, kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if diags == nil {
		diags = []db.Diagnostic{}
	}
	writeJSON(w, struct {
		Run         *db.ParseRun    `json:"run"`
		Diagnostics []db.Diagnostic `json:"diagnostics"`
	}{run, diags})
}

func (s *Server) handleAPISources(w http.ResponseWriter, r *http.Request) {
	trends, err := analytics.QuerySourceTrends(s.db, r.URL.Query().Get("since"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if trends == nil {
		trends = []analytics.SourceTrend{}
	}
	writeJSON(w, trends)
}

func (s *Server) handleAPIBuildDurations(w http.ResponseWriter, r *http.Request) {
	durations, err := analytics.QueryBuildDurations(s.db, r.URL.Query().Get("since"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if durations == nil {
		durations = []analytics.BuildDuration{}
	}
	writeJSON(w, durations)
}

func (s *Server) handleAPIRecurring(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}
	recurring, err := analytics.QueryRecurring(s.db, r.URL.Query().Get("since"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recurring == nil {
		recurring = []analytics.Recurring{}
	}
	writeJSON(w, recurring)
}
