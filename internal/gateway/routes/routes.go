// Package routes holds the gateway's route classification table and the
// pure function that classifies a request path against it.
package routes

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Class is how the gateway treats a path.
type Class int

const (
	// RoleChecked paths need a live token whose authorities intersect the
	// roles configured for the path prefix. Anything not listed elsewhere
	// falls here.
	RoleChecked Class = iota
	// Open paths are forwarded without looking at the Authorization header.
	Open
	// NoRoleCheck paths need a live token but no particular role.
	NoRoleCheck
)

func (c Class) String() string {
	switch c {
	case Open:
		return "open"
	case NoRoleCheck:
		return "no_role_check"
	default:
		return "role_checked"
	}
}

var ErrInvalidConfig = errors.New("routes: invalid config")

// Config is loaded once at startup and never mutated afterwards. Share it by
// pointer; callers must not modify it.
type Config struct {
	// Version identifies this table in logs and the X-Route-Config-Version
	// response header.
	Version string `yaml:"version"`

	OpenPaths        []string            `yaml:"open_paths"`
	NoRoleCheckPaths []string            `yaml:"no_role_check_paths"`
	RoleRequirements map[string][]string `yaml:"role_requirements"`

	// Backends maps a path prefix to one or more upstream base URLs.
	Backends map[string][]string `yaml:"backends"`
}

// Default is the back office table used when no route file is given.
func Default() *Config {
	return &Config{
		Version:          "builtin-1",
		OpenPaths:        []string{"/auth/login", "/auth/refresh", "/auth/logout", "/livez"},
		NoRoleCheckPaths: []string{"/products"},
		RoleRequirements: map[string][]string{
			"/users":     {"ADMIN"},
			"/sales":     {"CASHIER", "ADMIN"},
			"/campaigns": {"ADMIN"},
			"/reports":   {"ADMIN"},
		},
	}
}

// Load reads a YAML route table from path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routes: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML route table. Unknown fields are
// rejected so a typo cannot silently open a path.
func Parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every entry is an absolute path and every backend URL
// parses.
func (c *Config) Validate() error {
	var errs []error
	if c.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}

	check := func(kind, p string) {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s entry %q must start with /", kind, p))
		}
	}
	for _, p := range c.OpenPaths {
		check("open_paths", p)
	}
	for _, p := range c.NoRoleCheckPaths {
		check("no_role_check_paths", p)
	}
	for prefix, roles := range c.RoleRequirements {
		check("role_requirements", prefix)
		if Prefix(prefix) != prefix {
			errs = append(errs, fmt.Errorf("role_requirements key %q must be a single segment", prefix))
		}
		if len(roles) == 0 {
			errs = append(errs, fmt.Errorf("role_requirements %q lists no roles", prefix))
		}
	}
	for prefix, targets := range c.Backends {
		check("backends", prefix)
		if len(targets) == 0 {
			errs = append(errs, fmt.Errorf("backend %q has no targets", prefix))
		}
		for _, t := range targets {
			if u, err := url.Parse(t); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Errorf("backend %q target %q is not an absolute URL", prefix, t))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Classify decides how path is treated. A path matches an entry when it
// equals the entry or sits below it. Open wins over NoRoleCheck.
func Classify(cfg *Config, path string) Class {
	if matchesAny(cfg.OpenPaths, path) {
		return Open
	}
	if matchesAny(cfg.NoRoleCheckPaths, path) {
		return NoRoleCheck
	}
	return RoleChecked
}

// RequiredRoles returns the roles configured for the first segment of path.
// ok is false when the prefix has no entry.
func (c *Config) RequiredRoles(path string) (roles []string, ok bool) {
	roles, ok = c.RoleRequirements[Prefix(path)]
	return roles, ok
}

// Prefix returns the first path segment: "/users/42" is "/users" and "/" is
// "/".
func Prefix(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "/"
	}
	seg, _, _ := strings.Cut(trimmed, "/")
	return "/" + seg
}

func matchesAny(entries []string, path string) bool {
	return slices.ContainsFunc(entries, func(e string) bool {
		e = strings.TrimSuffix(e, "/")
		if e == "" {
			// "/" alone would match everything
			return path == "/"
		}
		return path == e || strings.HasPrefix(path, e+"/")
	})
}
