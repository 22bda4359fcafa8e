// Package storetest holds the behaviour every store.Store implementation
// must share. Driver packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/loykin/glassd/internal/store"
)

func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	// schema creation must be repeatable
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema twice: %v", err)
	}

	retro, err := s.CreateTag(ctx, "  [SG] retro ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if retro.ID == 0 || retro.Name != "[SG] retro" {
		t.Fatalf("unexpected tag: %+v", retro)
	}
	if _, err := s.CreateTag(ctx, "[sg] RETRO"); !errors.Is(err, store.ErrTagExists) {
		t.Fatalf("expected ErrTagExists for case variant, got %v", err)
	}
	if _, err := s.CreateTag(ctx, " "); !errors.Is(err, store.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	flag, err := s.CreateTag(ctx, "[SG] NoFullscreen")
	if err != nil {
		t.Fatalf("create flag: %v", err)
	}
	other, err := s.CreateTag(ctx, "Action")
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	if _, err := s.CreateTag(ctx, "50% off"); err != nil {
		t.Fatalf("create wildcard name: %v", err)
	}

	got, err := s.ListTags(ctx, "[sg]")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != retro.ID || got[1].ID != flag.ID {
		t.Fatalf("prefix list = %+v", got)
	}
	if got, _ := s.ListTags(ctx, "50%"); len(got) != 1 {
		t.Fatalf("literal %% prefix list = %+v", got)
	}
	if all, _ := s.ListTags(ctx, ""); len(all) != 4 {
		t.Fatalf("expected 4 tags, got %+v", all)
	}

	byName, err := s.TagByName(ctx, "[SG] RETRO")
	if err != nil || byName.ID != retro.ID {
		t.Fatalf("tag by name = %+v, %v", byName, err)
	}
	if _, err := s.TagByName(ctx, "nope"); !errors.Is(err, store.ErrTagNotFound) {
		t.Fatalf("expected ErrTagNotFound, got %v", err)
	}

	for _, id := range []int64{retro.ID, flag.ID, other.ID, retro.ID} {
		if err := s.AssignTag(ctx, "game-1", id); err != nil {
			t.Fatalf("assign %d: %v", id, err)
		}
	}
	if err := s.AssignTag(ctx, "game-1", 99999); !errors.Is(err, store.ErrTagNotFound) {
		t.Fatalf("assign unknown tag err = %v", err)
	}
	tags, err := s.EntityTags(ctx, "game-1")
	if err != nil {
		t.Fatalf("entity tags: %v", err)
	}
	if len(tags) != 3 {
		t.Fatalf("entity tags = %+v", tags)
	}
	if err := s.UnassignTag(ctx, "game-1", other.ID); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if err := s.DeleteTag(ctx, flag.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTag(ctx, flag.ID); !errors.Is(err, store.ErrTagNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	tags, _ = s.EntityTags(ctx, "game-1")
	if len(tags) != 1 || tags[0].ID != retro.ID {
		t.Fatalf("entity tags after delete = %+v", tags)
	}
	if none, _ := s.EntityTags(ctx, "unknown"); len(none) != 0 {
		t.Fatalf("unknown entity tags = %+v", none)
	}

	// a deleted name can be created again
	if _, err := s.CreateTag(ctx, "[SG] NoFullscreen"); err != nil {
		t.Fatalf("recreate: %v", err)
	}
}
