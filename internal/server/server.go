// Package server exposes a local read-mostly dashboard over the factory's
// queue, archives and ledger.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"mvpforge/internal/history"
	"mvpforge/internal/store"
	"mvpforge/internal/types"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for the factory dashboard.
type Server struct {
	store  *store.Store
	ledger *history.DB // optional
	pages  map[string]*template.Template
	mux    *http.ServeMux
}

// New creates a dashboard server. The ledger may be nil; history sections
// are then omitted.
func New(st *store.Store, ledger *history.DB) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"index.html", "idea.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{store: st, ledger: ledger, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/idea/", s.handleIdea)
	s.mux.HandleFunc("/requeue/", s.handleRequeue)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	pending, err := s.store.PendingIdeas()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	built, _ := s.store.BuiltIdeas()
	skipped, _ := s.store.SkippedIdeas()
	stats, _ := s.store.Stats()

	var cycles []history.Cycle
	if s.ledger != nil {
		cycles, _ = s.ledger.RecentCycles(20)
	}

	s.render(w, "index.html", map[string]any{
		"Stats":   stats,
		"Pending": pending,
		"Built":   built,
		"Skipped": skipped,
		"Cycles":  cycles,
	})
}

func (s *Server) handleIdea(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/idea/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	idea, state := s.lookup(id)
	if idea == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "idea.html", map[string]any{
		"Idea":  idea,
		"State": state,
	})
}

// handleRequeue moves a built idea back into the pending queue.
func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/requeue/")
	if id != "" {
		if _, err := s.store.Requeue(id); err != nil {
			log.Printf("Requeue %s failed: %v", id, err)
		}
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// lookup finds an idea in any of the three stores.
func (s *Server) lookup(id string) (*types.Idea, string) {
	for _, src := range []struct {
		repo  store.Repository
		state string
	}{
		{s.store.Pending, "pending"},
		{s.store.Built, "built"},
		{s.store.Skipped, "skipped"},
	} {
		var idea types.Idea
		if err := src.repo.Load(id, &idea); err == nil {
			return &idea, src.state
		}
	}
	return nil, ""
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the dashboard on the given port, bound to localhost.
func Serve(st *store.Store, ledger *history.DB, port int) error {
	srv, err := New(st, ledger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Dashboard listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
