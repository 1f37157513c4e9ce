// Package web renders the landing page and serves its static assets.
package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Cogwheel-Validator/spectra-canvas/canvas/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// PageData is the input of the index template.
type PageData struct {
	Title           string
	RequirePayment  bool
	MaxPromptLength int
	Networks        []models.NetworkInfo
}

type pageView struct {
	PageData
	Initials string
	Year     int
	Config   template.JS
}

// clientConfig is read by app.js from the canvas-config script tag.
type clientConfig struct {
	RequirePayment bool                 `json:"requirePayment"`
	GenerateURL    string               `json:"generateUrl"`
	Networks       []models.NetworkInfo `json:"networks"`
}

type Site struct {
	templates map[string]*template.Template
	static    fs.FS
}

func New() (*Site, error) {
	index, err := template.ParseFS(templateFS, "templates/index.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	return &Site{
		templates: map[string]*template.Template{"index": index},
		static:    static,
	}, nil
}

// RenderIndex writes the landing page.
func (s *Site) RenderIndex(w http.ResponseWriter, data PageData) error {
	tmpl, ok := s.templates["index"]
	if !ok {
		return fmt.Errorf("index template missing")
	}
	if data.Title == "" {
		data.Title = "Spectra Canvas"
	}
	if data.MaxPromptLength <= 0 {
		data.MaxPromptLength = 1000
	}

	config, err := json.Marshal(clientConfig{
		RequirePayment: data.RequirePayment,
		GenerateURL:    "/api/generateImage",
		Networks:       data.Networks,
	})
	if err != nil {
		return fmt.Errorf("failed to encode page config: %w", err)
	}

	view := pageView{
		PageData: data,
		Initials: initials(data.Title),
		Year:     time.Now().Year(),
		Config:   template.JS(config),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, "index", view)
}

// StaticHandler serves the embedded assets. Mount it under /static/.
func (s *Site) StaticHandler() http.Handler {
	files := http.FileServer(http.FS(s.static))
	return http.StripPrefix("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		files.ServeHTTP(w, r)
	}))
}

func initials(title string) string {
	var b strings.Builder
	count := 0
	for _, word := range strings.Fields(title) {
		first, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(first))
		if count++; count == 2 {
			break
		}
	}
	return b.String()
}
