package web

import (
	"embed"
	"html/template"
	"log"
	"net/http"
	"strings"

	"github.com/lucasnoah/ordpilot/internal/db"
	"github.com/lucasnoah/ordpilot/internal/orchestrator"
	"github.com/lucasnoah/ordpilot/internal/pipeline"
)

//go:embed templates
var templateFS embed.FS

var funcMap = template.FuncMap{
	"badgeClass": func(status string) string {
		return "badge badge-" + strings.ReplaceAll(status, "_", "-")
	},
	"passClass": func(passed bool) string {
		if passed {
			return "result-pass"
		}
		return "result-fail"
	},
	"okLabel": func(ok bool) string {
		if ok {
			return "PASS"
		}
		return "FAIL"
	},
	"relTime": relTime,
	"shortID": shortID,
	"svg": func(s string) template.HTML {
		// Reports carry SVG produced by the trusted toolchain, never by
		// the candidate itself.
		return template.HTML(s)
	},
}

// Server is the dashboard server. loop may be nil, which makes the UI
// read-only: POST /api/runs answers 503.
type Server struct {
	store *pipeline.Store
	db    *db.DB
	loop  *orchestrator.Loop
	addr  string

	dashboardTmpl *template.Template
	runTmpl       *template.Template
}

// NewServer creates a Server with parsed templates.
func NewServer(store *pipeline.Store, database *db.DB, loop *orchestrator.Loop, addr string) *Server {
	return &Server{
		store:         store,
		db:            database,
		loop:          loop,
		addr:          addr,
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

// Start registers routes and starts listening.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/":
			s.handleDashboard(w, r)
		case strings.HasPrefix(r.URL.Path, "/run/"):
			s.routeRun(w, r)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/api/runs", s.handleAPIRuns)
	mux.HandleFunc("/api/runs/", s.routeAPIRun)

	log.Printf("ordpilot UI: http://%s", s.addr)
	return http.ListenAndServe(s.addr, mux)
}

func (s *Server) routeRun(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/run/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1:
		s.handleRunDetail(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "stream":
		s.handleRunStream(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "svg":
		s.handleRunSVG(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) routeAPIRun(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 2 && parts[1] == "report":
		s.handleAPIReport(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
