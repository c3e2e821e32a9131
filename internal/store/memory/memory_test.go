package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/store"
)

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := New()

	doc := model.NewDocument("A1", map[string]any{"url": "http://x"})
	if err := s.Insert(ctx, "Image", doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt not set on caller's document")
	}

	got, err := s.FindByID(ctx, "Image", "A1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got == nil || got.Fields["url"] != "http://x" {
		t.Fatalf("unexpected document: %+v", got)
	}
	if got.IsNew() {
		t.Error("stored document should not be new")
	}

	// Mutating the returned copy must not leak into the store.
	got.Set("url", "http://y")
	again, _ := s.FindByID(ctx, "Image", "A1")
	if again.Fields["url"] != "http://x" {
		t.Errorf("store shares state with caller: %v", again.Fields["url"])
	}
}

func TestInsert_Errors(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Insert(ctx, "Image", model.NewDocument("", nil)); err == nil {
		t.Error("expected error for empty id")
	}
	if err := s.Insert(ctx, "Image", model.NewDocument("A1", nil)); err != nil {
		t.Fatal(err)
	}
	err := s.Insert(ctx, "Image", model.NewDocument("A1", nil))
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestFindByID_Missing(t *testing.T) {
	got, err := New().FindByID(context.Background(), "Image", "nope")
	if err != nil || got != nil {
		t.Fatalf("FindByID(missing) = %v, %v; want nil, nil", got, err)
	}
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.Replace(ctx, "Profile", model.NewDocument("p1", nil)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	doc := model.NewDocument("p1", map[string]any{"image": "A1"})
	if err := s.Insert(ctx, "Profile", doc); err != nil {
		t.Fatal(err)
	}
	created := doc.CreatedAt

	doc.Set("image", "A2")
	if err := s.Replace(ctx, "Profile", doc); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, _ := s.FindByID(ctx, "Profile", "p1")
	if got.Fields["image"] != "A2" {
		t.Errorf("image = %v, want A2", got.Fields["image"])
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("Replace should keep CreatedAt")
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.Update(ctx, "Band", "b1", model.Update{}.Set("name", "x")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Insert(ctx, "Band", model.NewDocument("b1", map[string]any{
		"members": []any{"u1"},
		"shows":   float64(1),
	})); err != nil {
		t.Fatal(err)
	}

	got, err := s.Update(ctx, "Band", "b1", model.Update{}.Push("members", "u2").Inc("shows", 2))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	members, _ := got.Get("members")
	if list, ok := members.([]any); !ok || len(list) != 2 || list[1] != "u2" {
		t.Errorf("members = %v", members)
	}
	if got.Fields["shows"] != float64(3) {
		t.Errorf("shows = %v, want 3", got.Fields["shows"])
	}
	if len(got.ModifiedPaths()) != 0 {
		t.Error("updated document should be persisted")
	}

	// A failing update leaves the stored document untouched.
	if _, err := s.Update(ctx, "Band", "b1", model.Update{}.Inc("members", 1)); err == nil {
		t.Fatal("expected error incrementing an array")
	}
	stored, _ := s.FindByID(ctx, "Band", "b1")
	if stored.Fields["shows"] != float64(3) {
		t.Errorf("failed update changed the store: %v", stored.Fields)
	}
}

func TestUpdate_PushList(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Insert(ctx, "Band", model.NewDocument("b1", map[string]any{
		"members": []any{"u1"},
		"meta":    map[string]any{"owner": "u1"},
	})); err != nil {
		t.Fatal(err)
	}

	got, err := s.Update(ctx, "Band", "b1", model.Update{}.Push("members", []any{"u2", "u3"}).Set("meta.owner", "u2"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	members, _ := got.Get("members")
	list, ok := members.([]any)
	if !ok || len(list) != 3 {
		t.Fatalf("members = %#v, want three flat elements", members)
	}
	for i, want := range []string{"u1", "u2", "u3"} {
		if list[i] != want {
			t.Errorf("members[%d] = %#v, want %q", i, list[i], want)
		}
	}
	if owner, _ := got.Get("meta.owner"); owner != "u2" {
		t.Errorf("meta.owner = %#v, want u2", owner)
	}
}

func TestDeleteListCollections(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, id := range []string{"u2", "u1", "u3"} {
		if err := s.Insert(ctx, "User", model.NewDocument(id, nil)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Insert(ctx, "Band", model.NewDocument("b1", nil)); err != nil {
		t.Fatal(err)
	}

	docs, _ := s.List(ctx, "User")
	if len(docs) != 3 || docs[0].ID != "u1" || docs[2].ID != "u3" {
		t.Fatalf("List not sorted: %v", docs)
	}

	if err := s.Delete(ctx, "Band", "b1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "Band", "b1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	names, _ := s.Collections(ctx)
	if len(names) != 1 || names[0] != "User" {
		t.Errorf("Collections = %v, want [User]", names)
	}
}
