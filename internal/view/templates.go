package view

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/tricktime/tricktime/web"
)

// Template names available to Render.
const (
	TemplateWelcome = "welcome.html"
)

// Engine renders HTML email templates.
type Engine struct {
	templates *template.Template
}

// WelcomeData feeds the welcome email template.
type WelcomeData struct {
	Email  string
	UserID string
	AppURL string
	Year   int
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	tpl, err := template.New("root").ParseFS(web.Templates, "templates/email/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template and returns the resulting markup.
func (e *Engine) Render(name string, data any) (string, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
