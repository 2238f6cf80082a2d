package ui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

//go:embed web/templates/*.html web/static/* web/acerca.md
var webFiles embed.FS

// tab is one entry of the navigation bar.
type tab struct {
	Path  string
	Label string
}

func tabs(year int) []tab {
	return []tab{
		{"/explorar", "📊 Exploración ENIGH"},
		{"/preparados", "📂 Datos Preparados"},
		{"/pca", "📈 PCA"},
		{"/redes", "🕸 Redes"},
		{"/centralidad", "⭐ Centralidad"},
		{"/maestro", fmt.Sprintf("📁 3.1 Dataset Maestro %d", year)},
		{"/acerca", "ℹ️ Acerca"},
	}
}

// page is the data every template receives.
type page struct {
	Tabs   []tab
	Active string
	Year   int
	Query  template.URL
	View   interface{}
}

var funcMap = template.FuncMap{
	"contains": func(list []string, s string) bool {
		for _, v := range list {
			if v == s {
				return true
			}
		}
		return false
	},
	"fmtFloat": func(v float64) string {
		if math.IsNaN(v) {
			return "NaN"
		}
		return strconv.FormatFloat(v, 'f', 4, 64)
	},
	"pct": func(share float64) string {
		return strconv.FormatFloat(share*100, 'f', 2, 64) + "%"
	},
}

// parseTemplates builds one template set per page, each combining the layout
// with the page's "content" block.
func parseTemplates(files fs.FS) (map[string]*template.Template, error) {
	layout, err := template.New("").Funcs(funcMap).ParseFS(files, "web/templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	pages, err := fs.Glob(files, "web/templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to glob templates: %w", err)
	}

	out := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		name := pageName(p)
		if name == "layout" {
			continue
		}
		t, err := template.Must(layout.Clone()).ParseFS(files, p)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", p, err)
		}
		out[name] = t
	}
	return out, nil
}

func pageName(path string) string {
	base := path[len("web/templates/"):]
	return base[:len(base)-len(".html")]
}

// renderMarkdown converts the embedded methodology page to HTML.
func renderMarkdown(files fs.FS, path string) (template.HTML, error) {
	md, err := fs.ReadFile(files, path)
	if err != nil {
		return "", err
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return template.HTML(markdown.ToHTML(md, p, r)), nil
}

// render executes a page into a buffer first so template errors never leave a
// half-written response.
func (s *Server) render(c *gin.Context, name string, data page) {
	t, ok := s.pages[name]
	if !ok {
		s.logger.Error().Str("template", name).Msg("unknown template")
		c.String(http.StatusInternalServerError, "template not found")
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("template rendering failed")
		c.String(http.StatusInternalServerError, "template rendering failed")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
