package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"time"

	"sigrafilm/internal/models"
)

//go:embed templates
var files embed.FS

// TemplateRegistry holds separate template instances for each page
type TemplateRegistry struct {
	templates map[string]*template.Template
	funcMap   template.FuncMap
}

func NewTemplateRegistry(funcMap template.FuncMap) *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*template.Template),
		funcMap:   funcMap,
	}
}

func (tr *TemplateRegistry) Add(name string, tmpl *template.Template) {
	tr.templates[name] = tmpl
}

func (tr *TemplateRegistry) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	if tmpl, ok := tr.templates[name]; ok {
		return tmpl.ExecuteTemplate(w, name, data)
	}

	// Partials are registered under their file name but rendered by the
	// name they define.
	for _, t := range tr.templates {
		if lookup := t.Lookup(name); lookup != nil {
			return lookup.Execute(w, data)
		}
	}

	return fmt.Errorf("template %s not found", name)
}

// LoadTemplates parses the embedded templates: every page gets its own set
// made of the layouts, the partials and the page itself.
func LoadTemplates() (*TemplateRegistry, error) {
	return loadTemplates(files)
}

func loadTemplates(fsys fs.FS) (*TemplateRegistry, error) {
	funcMap := template.FuncMap{
		"formatTime":   formatTime,
		"inputTime":    inputTime,
		"dict":         dict,
		"urgencyClass": urgencyClass,
	}

	registry := NewTemplateRegistry(funcMap)

	layoutFiles, err := fs.Glob(fsys, "templates/layouts/*.html")
	if err != nil {
		return nil, err
	}
	partialFiles, err := fs.Glob(fsys, "templates/partials/*.html")
	if err != nil {
		return nil, err
	}
	var sharedFiles []string
	sharedFiles = append(sharedFiles, layoutFiles...)
	sharedFiles = append(sharedFiles, partialFiles...)

	pageFiles, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}

	for _, pageFile := range pageFiles {
		pageName := path.Base(pageFile)
		tmpl := template.New(pageName).Funcs(funcMap)

		parts := make([]string, 0, len(sharedFiles)+1)
		parts = append(parts, sharedFiles...)
		parts = append(parts, pageFile)
		for _, f := range parts {
			content, err := fs.ReadFile(fsys, f)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", f, err)
			}
			if _, err := tmpl.Parse(string(content)); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", f, err)
			}
		}

		registry.Add(pageName, tmpl)
	}

	if len(partialFiles) > 0 {
		partials, err := template.New("partials").Funcs(funcMap).ParseFS(fsys, partialFiles...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse partials: %w", err)
		}
		registry.Add("partials", partials)
	}

	return registry, nil
}

func formatTime(t interface{}) string {
	switch v := t.(type) {
	case time.Time:
		if v.IsZero() {
			return "-"
		}
		return v.Format("2006-01-02 15:04")
	case *time.Time:
		if v == nil {
			return "-"
		}
		return formatTime(*v)
	}
	return "-"
}

// inputTime renders t for a datetime-local input.
func inputTime(t time.Time) string {
	return t.Format("2006-01-02T15:04")
}

func urgencyClass(u models.Urgency) string {
	switch u {
	case models.UrgencyCritical:
		return "critical"
	case models.UrgencyUrgent:
		return "urgent"
	}
	return "normal"
}

func dict(values ...interface{}) map[string]interface{} {
	if len(values)%2 != 0 {
		return nil
	}
	d := make(map[string]interface{}, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			return nil
		}
		d[key] = values[i+1]
	}
	return d
}
