package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateNotFoundError reports a template name that matched none of the
// searched locations.
type TemplateNotFoundError struct {
	Name              string
	SearchedLocations []string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("mail: unable to find template %q, searched: %s",
		e.Name, strings.Join(e.SearchedLocations, ", "))
}

// Renderer renders HTML email bodies from a template filesystem.
type Renderer struct {
	fsys      fs.FS
	locations []string
}

// NewRenderer uses the embedded templates when fsys is nil.
func NewRenderer(fsys fs.FS) *Renderer {
	if fsys == nil {
		fsys = templatesFS
	}
	return &Renderer{
		fsys:      fsys,
		locations: []string{"templates/%s.html", "templates/email/%s.html", "%s.html"},
	}
}

func (r *Renderer) Render(name string, data any) (string, error) {
	searched := make([]string, 0, len(r.locations))
	for _, loc := range r.locations {
		path := fmt.Sprintf(loc, name)
		if _, err := fs.Stat(r.fsys, path); err != nil {
			searched = append(searched, path)
			continue
		}

		t, err := template.ParseFS(r.fsys, path)
		if err != nil {
			return "", fmt.Errorf("mail: parse %s: %w", path, err)
		}
		var buf bytes.Buffer
		if err := t.Execute(&buf, data); err != nil {
			return "", fmt.Errorf("mail: render %s: %w", path, err)
		}
		return buf.String(), nil
	}
	return "", &TemplateNotFoundError{Name: name, SearchedLocations: searched}
}
