package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ext is the file extension of overlay profiles.
const Ext = ".sgp"

var (
	ErrDirMissing  = errors.New("profiles directory is not configured or does not exist")
	ErrNotFound    = errors.New("profile file not found")
	ErrInvalidName = errors.New("invalid profile name")
)

// Entry is a profile file found in the profiles directory.
type Entry struct {
	FileName string `json:"file_name"` // e.g. retro.sgp
	Name     string `json:"name"`      // file name without extension
	Path     string `json:"path"`
	Ignored  bool   `json:"ignored"`
}

// Stem strips the profile extension (any case) from name.
func Stem(name string) string {
	if hasExt(name) {
		return name[:len(name)-len(Ext)]
	}
	return name
}

// FileName appends the profile extension unless name already carries it.
func FileName(name string) string {
	if hasExt(name) {
		return name
	}
	return name + Ext
}

func hasExt(name string) bool {
	return len(name) >= len(Ext) && strings.EqualFold(name[len(name)-len(Ext):], Ext)
}

// IsIgnored reports whether fileName is in the ignored list. Comparison is
// case-insensitive and tolerates entries written without the extension.
func IsIgnored(fileName string, ignored []string) bool {
	fn := FileName(fileName)
	for _, ig := range ignored {
		ig = strings.TrimSpace(ig)
		if ig != "" && strings.EqualFold(FileName(ig), fn) {
			return true
		}
	}
	return false
}

// CheckDir returns ErrDirMissing unless dir names an existing directory.
func CheckDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return ErrDirMissing
	}
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrDirMissing, dir)
	}
	return nil
}

// List returns the top-level profile files of dir sorted by file name.
func List(dir string, ignored []string) ([]Entry, error) {
	if err := CheckDir(dir); err != nil {
		return nil, err
	}
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if !hasExt(name) || !isFile(filepath.Join(dir, name)) {
			continue
		}
		out = append(out, Entry{
			FileName: name,
			Name:     Stem(name),
			Path:     filepath.Join(dir, name),
			Ignored:  IsIgnored(name, ignored),
		})
	}
	return out, nil
}

// Resolve maps a profile name from a tag to a file inside dir. The extension
// is appended when missing. An exact match wins; otherwise names are compared
// case-insensitively.
func Resolve(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := CheckDir(dir); err != nil {
		return "", err
	}
	fn := FileName(name)
	p := filepath.Join(dir, fn)
	if isFile(p) {
		return p, nil
	}
	entries, err := List(dir, nil)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if strings.EqualFold(e.FileName, fn) {
			return e.Path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, p)
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
