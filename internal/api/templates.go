package api

import (
	"embed"
	"html/template"
	"net/url"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates parses the page and panel templates.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"lookupURL": func(city string) string {
			return "/lookup?" + url.Values{"city": {city}}.Encode()
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}
