package store

import (
	"context"
	"errors"
	"strings"
)

// Tag is a named label attached to entities by the host.
// Names are unique case-insensitively.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

var (
	ErrTagNotFound = errors.New("tag not found")
	ErrTagExists   = errors.New("tag already exists")
	ErrInvalidName = errors.New("invalid tag name")
)

// Store keeps the tag catalogue and entity-tag assignments.
type Store interface {
	EnsureSchema(ctx context.Context) error
	// ListTags returns tags whose name starts with prefix (case-insensitive),
	// ordered by id. An empty prefix lists every tag.
	ListTags(ctx context.Context, prefix string) ([]Tag, error)
	CreateTag(ctx context.Context, name string) (Tag, error)
	DeleteTag(ctx context.Context, id int64) error
	TagByName(ctx context.Context, name string) (Tag, error)
	AssignTag(ctx context.Context, entityID string, tagID int64) error
	UnassignTag(ctx context.Context, entityID string, tagID int64) error
	EntityTags(ctx context.Context, entityID string) ([]Tag, error)
	Close() error
}

// NormalizeName trims a tag name and rejects empty ones.
func NormalizeName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", ErrInvalidName
	}
	return n, nil
}

// LikePrefix escapes prefix for a LIKE pattern using '\' as the escape char.
func LikePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.ToLower(prefix)) + "%"
}

// Names returns the names of tags in order.
func Names(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}
	return out
}
