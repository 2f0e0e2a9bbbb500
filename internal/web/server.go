package web

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/lucasnoah/texlog/internal/db"
)

//go:embed templates
var templateFS embed.FS

var funcMap = template.FuncMap{
	"kindClass": func(kind string) string {
		return "kind kind-" + kind
	},
	"countClass": func(n int) string {
		if n == 0 {
			return "count count-zero"
		}
		return "count"
	},
	"exitClass": func(code *int) string {
		if code == nil {
			return ""
		}
		if *code == 0 {
			return "result-pass"
		}
		return "result-fail"
	},
	"relTime": relTime,
}

// Server is the read-only web UI over saved parse runs.
type Server struct {
	db   *db.DB
	port int

	dashboardTmpl *template.Template
	runTmpl       *template.Template
}

// NewServer creates a Server with parsed templates.
func NewServer(database *db.DB, port int) *Server {
	return &Server{
		db:            database,
		port:          port,
		dashboardTmpl: mustParseTmpl("base.html", "dashboard.html"),
		runTmpl:       mustParseTmpl("base.html", "run.html"),
	}
}

func mustParseTmpl(names ...string) *template.Template {
	patterns := make([]string, len(names))
	for i, n := range names {
		patterns[i] = "templates/" + n
	}
	return template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, patterns...))
}

// Handler returns the routes served by Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleAPIRun)
	mux.HandleFunc("GET /api/stats/sources", s.handleAPISources)
	mux.HandleFunc("GET /api/stats/build-duration", s.handleAPIBuildDurations)
	mux.HandleFunc("GET /api/stats/recurring", s.handleAPIRecurring)
	return mux
}

// Start registers routes and starts listening.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("texlog UI listening", "url", "http://localhost"+addr)
	return http.ListenAndServe(addr, s.Handler())
}
