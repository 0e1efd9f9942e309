// Package routes holds the page access policy: which role tags may open which
// page, loaded from YAML.
package routes

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"prophub/internal/domain/models"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

//go:embed default_routes.yaml
var defaultPolicy []byte

// pageConfig is one page as written in the policy file
type pageConfig struct {
	Name    string        `yaml:"name"`
	Path    string        `yaml:"path"`
	Title   string        `yaml:"title"`
	Roles   []string      `yaml:"roles"`
	Aliases []aliasConfig `yaml:"aliases"`
}

type aliasConfig struct {
	Path  string   `yaml:"path"`
	Roles []string `yaml:"roles"`
}

type policyFile struct {
	Pages []pageConfig `yaml:"pages"`
}

// Entry is one gated path. An alias is its own entry pointing at the same page.
type Entry struct {
	Page    string         `json:"page"`
	Path    string         `json:"path"`
	Title   string         `json:"title"`
	Allowed models.RoleSet `json:"allowed"`
	// AliasOf is the canonical path when this entry is an alias
	AliasOf string `json:"alias_of,omitempty"`
}

// Table is the loaded policy, keyed by path
type Table struct {
	entries map[string]Entry
}

// Default returns the policy embedded in the binary
func Default() (*Table, error) {
	return Load(defaultPolicy)
}

// LoadFile reads a policy file from disk
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	return Load(data)
}

// Load parses and validates a YAML policy.
// An empty roles list is valid and denies everyone; unknown tags are an error.
func Load(data []byte) (*Table, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	if len(file.Pages) == 0 {
		return nil, fmt.Errorf("routes: no pages defined")
	}

	t := &Table{entries: make(map[string]Entry)}
	names := make(map[string]bool)

	for i := range file.Pages {
		page := &file.Pages[i]
		if err := validatePage(page); err != nil {
			return nil, fmt.Errorf("routes: page %d (%s): %w", i, page.Name, err)
		}
		if names[page.Name] {
			return nil, fmt.Errorf("routes: duplicate page name %q", page.Name)
		}
		names[page.Name] = true

		allowed, err := parseRoles(page.Roles)
		if err != nil {
			return nil, fmt.Errorf("routes: page %s: %w", page.Name, err)
		}
		if err := t.add(Entry{Page: page.Name, Path: page.Path, Title: page.Title, Allowed: allowed}); err != nil {
			return nil, err
		}

		for _, alias := range page.Aliases {
			aliasAllowed, err := parseRoles(alias.Roles)
			if err != nil {
				return nil, fmt.Errorf("routes: alias %s of %s: %w", alias.Path, page.Name, err)
			}
			entry := Entry{
				Page:    page.Name,
				Path:    alias.Path,
				Title:   page.Title,
				Allowed: aliasAllowed,
				AliasOf: page.Path,
			}
			if err := t.add(entry); err != nil {
				return nil, err
			}
		}
	}

	return t, nil
}

func validatePage(page *pageConfig) error {
	if err := validation.ValidateStruct(page,
		validation.Field(&page.Name, validation.Required),
		validation.Field(&page.Path, validation.Required, validation.By(validatePath)),
		validation.Field(&page.Title, validation.Required),
	); err != nil {
		return err
	}

	for _, alias := range page.Aliases {
		if err := validatePath(alias.Path); err != nil {
			return fmt.Errorf("alias: %w", err)
		}
	}
	return nil
}

func validatePath(value interface{}) error {
	path, _ := value.(string)
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path %q must start with /", path)
	}
	if strings.ContainsAny(path, "{} ") {
		return fmt.Errorf("path %q must be a literal path", path)
	}
	return nil
}

func parseRoles(tags []string) (models.RoleSet, error) {
	roles := make([]models.Role, 0, len(tags))
	for _, tag := range tags {
		r, ok := models.ParseRole(tag)
		if !ok {
			return models.RoleSet{}, fmt.Errorf("unknown role %q", tag)
		}
		roles = append(roles, r)
	}
	return models.NewRoleSet(roles...), nil
}

func (t *Table) add(e Entry) error {
	if _, exists := t.entries[e.Path]; exists {
		return fmt.Errorf("routes: duplicate path %q", e.Path)
	}
	t.entries[e.Path] = e
	return nil
}

// Lookup returns the entry for path
func (t *Table) Lookup(path string) (Entry, bool) {
	e, ok := t.entries[path]
	return e, ok
}

// Entries returns every entry sorted by path
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
