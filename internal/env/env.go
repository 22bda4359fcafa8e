package env

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes overlay environments on top of a base (the daemon's own
// environment unless set explicitly).
type Env struct {
	Var  Var // variables applied to every overlay
	base Var
}

func New() *Env {
	return &Env{Var: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.base = parsePairs(os.Environ())
}

// SetBase replaces the base environment.
func (e *Env) SetBase(kvs []string) {
	e.base = parsePairs(kvs)
}

// Set sets a variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// LoadFile applies the KEY=VALUE lines of a .env file. Blank lines and lines
// starting with # are skipped.
func (e *Env) LoadFile(path string) error {
	vars, err := ParseFile(path)
	if err != nil {
		return err
	}
	for k, v := range vars {
		e.Set(k, v)
	}
	return nil
}

// Overrides returns e.Var plus extra ("K=V" entries, later wins) in sorted
// "K=V" form. ${VAR} references are expanded against the base and the
// overrides; base variables themselves are not returned.
func (e *Env) Overrides(extra []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	over := make(Var, len(e.Var)+len(extra))
	for k, v := range e.Var {
		if k != "" {
			over[k] = v
		}
	}
	for k, v := range parsePairs(extra) {
		over[k] = v
	}
	scope := make(Var, len(e.base)+len(over))
	for k, v := range e.base {
		scope[k] = v
	}
	for k, v := range over {
		scope[k] = v
	}
	out := make([]string, 0, len(over))
	for k, v := range over {
		out = append(out, k+"="+expand(v, scope))
	}
	sort.Strings(out)
	return out
}

// ParseFile reads a simple .env file (no export, no quoting).
func ParseFile(path string) (Var, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	m := make(Var)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			m[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	return m, nil
}

func parsePairs(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// expand replaces ${VAR} references found in m; unknown names are kept.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			break
		}
		b.WriteString(s[:i])
		name := s[i+2 : i+j]
		if v, ok := m[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+j+1])
		}
		s = s[i+j+1:]
	}
	b.WriteString(s)
	return b.String()
}
