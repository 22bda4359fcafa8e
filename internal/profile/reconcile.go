package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loykin/glassd/internal/directive"
	"github.com/loykin/glassd/internal/store"
)

// TagStore is the part of the tag database reconciliation needs.
type TagStore interface {
	ListTags(ctx context.Context, prefix string) ([]store.Tag, error)
	CreateTag(ctx context.Context, name string) (store.Tag, error)
	DeleteTag(ctx context.Context, id int64) error
}

// ProgressFunc is called after each profile file is processed.
type ProgressFunc func(current, total int, status string)

// Reconciler mirrors the profiles directory into directive tags.
type Reconciler struct {
	Prefix       string
	Ignored      []string
	PruneMissing bool // also delete profile tags whose file is gone
	Progress     ProgressFunc
	Logger       *slog.Logger
}

// Summary counts what a reconciliation changed.
type Summary struct {
	Total       int `json:"total"`
	TagsAdded   int `json:"tags_added"`
	TagsRemoved int `json:"tags_removed"`
	Ignored     int `json:"ignored"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d profiles: %d tags added, %d tags removed, %d ignored",
		s.Total, s.TagsAdded, s.TagsRemoved, s.Ignored)
}

// Reconcile creates a tag for every profile that is not ignored and has no
// tag yet, and deletes tags of ignored profiles. Failures on individual tags
// do not stop the pass; they are returned joined together with the partial
// summary.
func (r Reconciler) Reconcile(ctx context.Context, dir string, ts TagStore) (Summary, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	prefix := r.Prefix
	if strings.TrimSpace(prefix) == "" {
		prefix = directive.DefaultPrefix
	}
	entries, err := List(dir, r.Ignored)
	if err != nil {
		return Summary{}, err
	}
	tags, err := ts.ListTags(ctx, prefix)
	if err != nil {
		return Summary{}, fmt.Errorf("list tags: %w", err)
	}
	byStem := make(map[string][]store.Tag)
	for _, t := range tags {
		d := directive.Classify(prefix, t.Name)
		if d.Kind != directive.Profile {
			continue
		}
		k := strings.ToLower(Stem(d.Value))
		byStem[k] = append(byStem[k], t)
	}

	sum := Summary{Total: len(entries)}
	var errs []error
	onDisk := make(map[string]bool, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		key := strings.ToLower(e.Name)
		onDisk[key] = true
		existing := byStem[key]
		switch {
		case directive.Classify(prefix, directive.Format(prefix, e.Name)).Kind != directive.Profile:
			// the tag would read as a flag, not a profile selector
			log.Warn("profile name collides with a directive keyword, no tag created", "profile", e.FileName)
		case e.Ignored:
			sum.Ignored++
			for _, t := range existing {
				if err := ts.DeleteTag(ctx, t.ID); err != nil {
					errs = append(errs, fmt.Errorf("delete tag %q: %w", t.Name, err))
					continue
				}
				sum.TagsRemoved++
				log.Info("removed tag of ignored profile", "tag", t.Name, "profile", e.FileName)
			}
		case len(existing) == 0:
			name := directive.Format(prefix, e.Name)
			if _, err := ts.CreateTag(ctx, name); err != nil {
				errs = append(errs, fmt.Errorf("create tag %q: %w", name, err))
				break
			}
			sum.TagsAdded++
			log.Info("created profile tag", "tag", name, "profile", e.FileName)
		}
		if r.Progress != nil {
			r.Progress(i+1, len(entries), e.FileName)
		}
	}

	if r.PruneMissing {
		for key, stale := range byStem {
			if onDisk[key] {
				continue
			}
			for _, t := range stale {
				if err := ts.DeleteTag(ctx, t.ID); err != nil {
					errs = append(errs, fmt.Errorf("delete tag %q: %w", t.Name, err))
					continue
				}
				sum.TagsRemoved++
				log.Info("removed tag of missing profile", "tag", t.Name)
			}
		}
	}
	return sum, errors.Join(errs...)
}
