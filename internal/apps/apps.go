// Package apps is the registry of installable applications. An app
// contributes models to migrate and, when it has a directory, the
// "templates" and "static" folders inside it.
package apps

import (
	"errors"
	"fmt"
	"sort"

	"github.com/planetterp/planetterp/internal/models"
)

// ErrUnknownApp is returned for labels missing from the registry.
var ErrUnknownApp = errors.New("unknown app")

// App describes one installable application.
type App struct {
	Label string
	// Dir is relative to the base directory; empty when the app ships no files.
	Dir    string
	Models []any
}

var registry = map[string]App{
	"admin":          {Label: "admin"},
	"auth":           {Label: "auth"},
	"contenttypes":   {Label: "contenttypes"},
	"sessions":       {Label: "sessions", Models: []any{&models.Session{}}},
	"messages":       {Label: "messages"},
	"staticfiles":    {Label: "staticfiles"},
	"sites":          {Label: "sites", Models: []any{&models.Site{}}},
	"sitemaps":       {Label: "sitemaps"},
	"home":           {Label: "home", Dir: "home", Models: []any{&models.User{}}},
	"crispy_forms":   {Label: "crispy_forms"},
	"django_tables2": {Label: "django_tables2"},
	"rest_framework": {Label: "rest_framework"},
	"api":            {Label: "api", Dir: "api"},
}

// Labels returns every registered label, sorted.
func Labels() []string {
	out := make([]string, 0, len(registry))
	for label := range registry {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the app registered under label.
func Lookup(label string) (App, bool) {
	app, ok := registry[label]
	return app, ok
}

// Resolve maps installed labels to apps, keeping their order.
func Resolve(labels []string) ([]App, error) {
	out := make([]App, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		app, ok := registry[label]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownApp, label)
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("duplicate app label %q", label)
		}
		seen[label] = struct{}{}
		out = append(out, app)
	}
	return out, nil
}

// Models flattens the models of apps in order.
func Models(installed []App) []any {
	var out []any
	for _, app := range installed {
		out = append(out, app.Models...)
	}
	return out
}

// Dirs returns sub inside every app directory, in app order.
func Dirs(installed []App, sub string) []string {
	var out []string
	for _, app := range installed {
		if app.Dir == "" {
			continue
		}
		out = append(out, app.Dir+"/"+sub)
	}
	return out
}
