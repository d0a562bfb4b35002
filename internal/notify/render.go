package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"log"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
	"github.com/xeonx/timeago"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

//go:embed templates/* locales/*
var templateFS embed.FS

// templateNames lists every email the system can send. Each name must have a
// body template per language and a subject line in the locale file.
var templateNames = []string{
	"confirmation",
	"admin_new_ticket",
	"status_tramitada",
	"status_aceptada",
	"status_denegada",
	"admin_summary",
	"admin_tracking",
}

type localeFile struct {
	Subjects map[string]string `yaml:"subjects"`
}

// Rendered is a fully expanded email: subject line, HTML document and the
// plain text alternative.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer turns markdown body templates into sanitized HTML emails. Bodies
// are written in markdown with template placeholders; the rendered fragment
// is sanitized and wrapped in the shared layout so user supplied values can
// never inject markup.
type Renderer struct {
	language string
	logger   *log.Logger

	markdown goldmark.Markdown
	policy   *bluemonday.Policy
	layout   *pongo2.Template
	bodies   map[string]*pongo2.Template
	subjects map[string]*pongo2.Template
	ago      timeago.Config
}

type RenderOption func(*Renderer)

// WithLanguage selects the template language. Supported values are "es"
// (default) and "en".
func WithLanguage(lang string) RenderOption {
	return func(r *Renderer) {
		if lang != "" {
			r.language = lang
		}
	}
}

func WithRenderLogger(logger *log.Logger) RenderOption {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// NewRenderer compiles all embedded templates up front so a broken template
// fails at startup instead of mid notification run.
func NewRenderer(opts ...RenderOption) (*Renderer, error) {
	r := &Renderer{
		language: "es",
		logger:   log.New(log.Writer(), "[RENDER] ", log.LstdFlags),
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(ghtml.WithHardWraps()),
		),
		policy:   bluemonday.UGCPolicy(),
		bodies:   make(map[string]*pongo2.Template),
		subjects: make(map[string]*pongo2.Template),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ago = agoFormatter(r.language)

	layoutSrc, err := templateFS.ReadFile("templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("read layout template: %w", err)
	}
	r.layout, err = pongo2.FromString(string(layoutSrc))
	if err != nil {
		return nil, fmt.Errorf("parse layout template: %w", err)
	}

	for _, name := range templateNames {
		src, err := templateFS.ReadFile(fmt.Sprintf("templates/%s/%s.md", r.language, name))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tpl, err := pongo2.FromString(string(src))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.bodies[name] = tpl
	}

	localeSrc, err := templateFS.ReadFile(fmt.Sprintf("locales/%s.yaml", r.language))
	if err != nil {
		return nil, fmt.Errorf("read locale %s: %w", r.language, err)
	}
	var locale localeFile
	if err := yaml.Unmarshal(localeSrc, &locale); err != nil {
		return nil, fmt.Errorf("parse locale %s: %w", r.language, err)
	}
	for _, name := range templateNames {
		subject, ok := locale.Subjects[name]
		if !ok {
			return nil, fmt.Errorf("locale %s: missing subject for %s", r.language, name)
		}
		tpl, err := pongo2.FromString(subject)
		if err != nil {
			return nil, fmt.Errorf("parse subject %s: %w", name, err)
		}
		r.subjects[name] = tpl
	}

	r.logger.Printf("loaded %d email templates (language=%s)", len(r.bodies), r.language)
	return r, nil
}

// Language reports the active template language.
func (r *Renderer) Language() string {
	return r.language
}

// Ago formats t relative to now in the renderer's language, for lines like
// "enviada hace dos días". Zero times render empty.
func (r *Renderer) Ago(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return r.ago.Format(t)
}

// Render expands the named template with data. The markdown body is executed
// first, converted to HTML, sanitized, and only then wrapped in the trusted
// layout. The plain text alternative is derived from the sanitized fragment.
func (r *Renderer) Render(name string, data map[string]any) (Rendered, error) {
	body, ok := r.bodies[name]
	if !ok {
		return Rendered{}, fmt.Errorf("%w: %s", ErrNoTemplate, name)
	}

	md, err := body.Execute(pongo2.Context(data))
	if err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(md), &buf); err != nil {
		return Rendered{}, fmt.Errorf("convert %s to html: %w", name, err)
	}
	fragment := r.policy.Sanitize(buf.String())

	page, err := r.layout.Execute(pongo2.Context{"body": fragment})
	if err != nil {
		return Rendered{}, fmt.Errorf("wrap %s in layout: %w", name, err)
	}

	text, err := htmlToText(fragment)
	if err != nil {
		return Rendered{}, fmt.Errorf("derive text part for %s: %w", name, err)
	}

	subject, err := r.subjects[name].Execute(pongo2.Context(data))
	if err != nil {
		return Rendered{}, fmt.Errorf("render subject for %s: %w", name, err)
	}

	return Rendered{
		// Subjects are mail headers, not HTML, so undo the autoescaping.
		Subject: html.UnescapeString(subject),
		HTML:    page,
		Text:    text,
	}, nil
}
