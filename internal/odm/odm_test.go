package odm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/refcheck"
	"github.com/alfredjeanlab/refguard/internal/store"
	"github.com/alfredjeanlab/refguard/internal/store/memory"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(memory.New(), logger)
}

func mustDefine(t *testing.T, r *Registry, name string, schema *model.Schema, plugins ...model.Plugin) *Model {
	t.Helper()
	m, err := r.Define(name, schema, plugins...)
	if err != nil {
		t.Fatalf("Define(%s): %v", name, err)
	}
	return m
}

func mustCreate(t *testing.T, m *Model, fields map[string]any) *model.Document {
	t.Helper()
	doc, err := m.Create(context.Background(), fields)
	if err != nil {
		t.Fatalf("%s.Create: %v", m.ModelName(), err)
	}
	return doc
}

func TestProfileImage(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	images := mustDefine(t, r, "Image", model.NewSchema(model.Scalar("url", model.KindString)))
	profiles := mustDefine(t, r, "Profile", model.NewSchema(
		model.Scalar("name", model.KindString),
		model.Reference("image", model.RefName("Image"), true),
	), refcheck.Plugin(r))

	img := mustCreate(t, images, map[string]any{"url": "http://x/a.png"})

	// Valid reference.
	p := mustCreate(t, profiles, map[string]any{"name": "ann", "image": img.ID})
	if p.IsNew() {
		t.Error("created document should be persisted")
	}

	// Missing reference: rejected and nothing written.
	_, err := profiles.Create(ctx, map[string]any{"_id": "p-bad", "image": "img-missing"})
	var mre *model.MissingReferenceError
	if !errors.As(err, &mre) {
		t.Fatalf("expected MissingReferenceError, got %v", err)
	}
	if mre.Field != "image" || mre.RefModel != "Image" || mre.Model != "Profile" || mre.ID != "img-missing" {
		t.Errorf("unexpected error fields: %+v", mre)
	}
	want := `invalid reference id "img-missing" to document in model "Image" for path "image" of model "Profile"`
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
	if got, _ := profiles.FindByID(ctx, "p-bad"); got != nil {
		t.Error("rejected document was persisted")
	}

	// Updating an unrelated field skips the check even once the image is gone.
	if err := images.Delete(ctx, img.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := profiles.UpdateOne(ctx, p.ID, model.Update{}.Set("name", "bob")); err != nil {
		t.Fatalf("untouched reference should not be checked: %v", err)
	}

	// Re-setting the dangling id is rejected and leaves the document alone.
	_, err = profiles.UpdateOne(ctx, p.ID, model.Update{}.Set("image", img.ID).Set("name", "carl"))
	if !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
	stored, _ := profiles.FindByID(ctx, p.ID)
	if stored.Fields["name"] != "bob" {
		t.Errorf("rejected update was applied: %v", stored.Fields)
	}

	// Whole-document save of a loaded document with an unchanged dangling
	// reference passes; changing it to a bad id does not.
	stored.Set("name", "dora")
	if err := profiles.Save(ctx, stored); err != nil {
		t.Fatalf("Save with untouched reference: %v", err)
	}
	stored.Set("image", "img-other")
	if err := profiles.Save(ctx, stored); !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
}

func TestBandMembers(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	users := mustDefine(t, r, "User", model.NewSchema(model.Scalar("name", model.KindString)))
	bands := mustDefine(t, r, "Band", model.NewSchema(
		model.Scalar("name", model.KindString),
		model.ReferenceArray("members", model.RefName("User"), true),
	), refcheck.Plugin(r))

	u1 := mustCreate(t, users, map[string]any{"name": "u1"})
	u2 := mustCreate(t, users, map[string]any{"name": "u2"})

	band := mustCreate(t, bands, map[string]any{"name": "b", "members": []any{u1.ID}})

	if _, err := bands.Create(ctx, map[string]any{"members": []any{u1.ID, "usr-ghost"}}); !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference for array element, got %v", err)
	}

	if _, err := bands.UpdateOne(ctx, band.ID, model.Update{}.Push("members", "usr-ghost")); !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("expected push of missing id to fail, got %v", err)
	}

	got, err := bands.UpdateOne(ctx, band.ID, model.Update{}.Push("members", u2.ID))
	if err != nil {
		t.Fatalf("push existing member: %v", err)
	}
	if members := got.Fields["members"].([]any); len(members) != 2 {
		t.Errorf("members = %v", members)
	}

	// Materialized documents pushed with $each are stored as identifiers.
	u3 := mustCreate(t, users, map[string]any{"name": "u3"})
	got, err = bands.UpdateOne(ctx, band.ID, model.Update{}.Push("members", map[string]any{
		model.EachKey: []any{u3},
	}))
	if err != nil {
		t.Fatalf("push $each: %v", err)
	}
	members := got.Fields["members"].([]any)
	if members[len(members)-1] != u3.ID {
		t.Errorf("last member = %#v, want %q", members[len(members)-1], u3.ID)
	}

	// Empty array is vacuously valid.
	if _, err := bands.UpdateOne(ctx, band.ID, model.Update{}.Set("members", []any{})); err != nil {
		t.Fatalf("empty members: %v", err)
	}
}

func TestBandMembers_PushList(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	users := mustDefine(t, r, "User", model.NewSchema(model.Scalar("name", model.KindString)))
	bands := mustDefine(t, r, "Band", model.NewSchema(
		model.ReferenceArray("members", model.RefName("User"), true),
	), refcheck.Plugin(r))

	u1 := mustCreate(t, users, map[string]any{"name": "u1"})
	u2 := mustCreate(t, users, map[string]any{"name": "u2"})
	u3 := mustCreate(t, users, map[string]any{"name": "u3"})
	band := mustCreate(t, bands, map[string]any{"members": []any{u1.ID}})

	// A plain list appends each element, checked one by one.
	if _, err := bands.UpdateOne(ctx, band.ID, model.Update{}.Push("members", []any{u2.ID, "usr-ghost"})); !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
	got, err := bands.UpdateOne(ctx, band.ID, model.Update{}.Push("members", []any{u2.ID, u3}))
	if err != nil {
		t.Fatalf("push list: %v", err)
	}
	members, _ := got.Fields["members"].([]any)
	want := []any{u1.ID, u2.ID, u3.ID}
	if len(members) != len(want) {
		t.Fatalf("members = %#v, want %#v", members, want)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Errorf("members[%d] = %#v, want %q", i, members[i], want[i])
		}
	}
}

func TestDottedReference(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	images := mustDefine(t, r, "Image", model.NewSchema(model.Scalar("url", model.KindString)))
	posts := mustDefine(t, r, "Post", model.NewSchema(
		model.Scalar("title", model.KindString),
		model.Reference("meta.cover", model.RefName("Image"), true),
	), refcheck.Plugin(r))

	img := mustCreate(t, images, map[string]any{"url": "http://x/a.png"})
	other := mustCreate(t, images, map[string]any{"url": "http://x/b.png"})

	storedCover := func(id string) any {
		t.Helper()
		doc, err := r.Store().FindByID(ctx, "Post", id)
		if err != nil || doc == nil {
			t.Fatalf("FindByID(%s): %v", id, err)
		}
		v, _ := doc.Get("meta.cover")
		return v
	}

	post := mustCreate(t, posts, map[string]any{"title": "p", "meta": map[string]any{"cover": img}})
	if v, _ := post.Get("meta.cover"); v != img {
		t.Error("caller's document should keep the materialized reference")
	}
	if v := storedCover(post.ID); v != img.ID {
		t.Errorf("stored meta.cover = %#v, want %q", v, img.ID)
	}

	if _, err := posts.Create(ctx, map[string]any{"meta": map[string]any{"cover": "img-missing"}}); !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference for dotted path, got %v", err)
	}

	post.Set("meta.cover", other)
	if err := posts.Save(ctx, post); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if v := storedCover(post.ID); v != other.ID {
		t.Errorf("stored meta.cover after save = %#v, want %q", v, other.ID)
	}

	if _, err := posts.UpdateOne(ctx, post.ID, model.Update{}.Set("meta.cover", img)); err != nil {
		t.Fatalf("UpdateOne dotted $set: %v", err)
	}
	if v := storedCover(post.ID); v != img.ID {
		t.Errorf("stored meta.cover after dotted $set = %#v, want %q", v, img.ID)
	}

	// A parent object written whole is flattened inside, and the caller's
	// map is left alone.
	meta := map[string]any{"cover": other, "alt": "b"}
	if _, err := posts.UpdateOne(ctx, post.ID, model.Update{}.Set("meta", meta)); err != nil {
		t.Fatalf("UpdateOne parent $set: %v", err)
	}
	if v := storedCover(post.ID); v != other.ID {
		t.Errorf("stored meta.cover after parent $set = %#v, want %q", v, other.ID)
	}
	if meta["cover"] != other {
		t.Error("update value was modified in place")
	}
}

func TestGlobalPlugin(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	r.Use(refcheck.Plugin(r))

	fuels := mustDefine(t, r, "Fuel", model.NewSchema(model.Scalar("octane", model.KindNumber)))
	engines := mustDefine(t, r, "Engine", model.NewSchema(
		model.Reference("fuelType", model.RefName("Fuel"), true),
	))
	cars := mustDefine(t, r, "Car", model.NewSchema(
		model.Reference("engine", model.RefName("Engine"), true),
	))

	savedFuel := mustCreate(t, fuels, map[string]any{"octane": float64(95)})

	// A whole document as the reference value contributes its identifier.
	engine := mustCreate(t, engines, map[string]any{"fuelType": savedFuel})
	if engine.Fields["fuelType"] != savedFuel {
		t.Error("caller's document should keep the materialized reference")
	}
	stored, _ := engines.FindByID(ctx, engine.ID)
	if stored.Fields["fuelType"] != savedFuel.ID {
		t.Errorf("stored fuelType = %#v, want %q", stored.Fields["fuelType"], savedFuel.ID)
	}

	if _, err := cars.Create(ctx, map[string]any{"engine": "eng-missing"}); !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
	if _, err := cars.Create(ctx, map[string]any{"engine": engine.ID}); err != nil {
		t.Fatalf("valid car: %v", err)
	}
}

func TestGlobalPlugin_OnlyLaterModels(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	early := mustDefine(t, r, "Early", model.NewSchema(model.Reference("ref", model.RefName("Early"), true)))
	r.Use(refcheck.Plugin(r))
	late := mustDefine(t, r, "Late", model.NewSchema(model.Reference("ref", model.RefName("Early"), true)))

	if _, err := early.Create(ctx, map[string]any{"ref": "nope"}); err != nil {
		t.Fatalf("model defined before Use should not be checked: %v", err)
	}
	if _, err := late.Create(ctx, map[string]any{"ref": "nope"}); !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("expected ErrMissingReference, got %v", err)
	}
}

func TestUnknownReferencedModel(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	profiles := mustDefine(t, r, "Profile", model.NewSchema(
		model.Reference("image", model.RefName("Ghost"), true),
	), refcheck.Plugin(r))

	_, err := profiles.Create(ctx, map[string]any{"image": "x"})
	var cerr *model.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !errors.Is(err, model.ErrModelNotFound) {
		t.Error("ConfigurationError should match ErrModelNotFound")
	}
	if !strings.Contains(err.Error(), `"Ghost"`) {
		t.Errorf("message should name the missing model: %q", err.Error())
	}

	// Writes that do not touch the field are unaffected.
	if _, err := profiles.Create(ctx, map[string]any{"name": "x"}); err != nil {
		t.Fatalf("untouched reference: %v", err)
	}
}

func TestHooks(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	m := mustDefine(t, r, "Note", model.NewSchema(model.Scalar("text", model.KindString)))

	var calls []string
	m.Pre(func(_ context.Context, op model.Operation) error {
		calls = append(calls, "first:"+op.Kind().String())
		return nil
	})
	errStop := errors.New("stop")
	m.Pre(func(_ context.Context, op model.Operation) error {
		calls = append(calls, "second:"+op.Kind().String())
		if op.Kind() == model.OpKindUpdate {
			return errStop
		}
		return nil
	})

	doc := mustCreate(t, m, map[string]any{"text": "hi"})
	if _, err := m.UpdateOne(ctx, doc.ID, model.Update{}.Set("text", "bye")); !errors.Is(err, errStop) {
		t.Fatalf("expected hook error, got %v", err)
	}

	want := []string{"first:save", "second:save", "first:update", "second:update"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	stored, _ := m.FindByID(ctx, doc.ID)
	if stored.Fields["text"] != "hi" {
		t.Error("aborted update was applied")
	}
}

func TestModelCRUD(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	m := mustDefine(t, r, "Image", model.NewSchema(model.Scalar("url", model.KindString)))

	doc := mustCreate(t, m, map[string]any{"_id": "img-1", "url": "a"})
	if doc.ID != "img-1" {
		t.Errorf("ID = %q, want img-1", doc.ID)
	}
	if _, err := m.Create(ctx, map[string]any{"_id": "img-1"}); !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if _, err := m.Create(ctx, map[string]any{"_id": 7}); !errors.Is(err, model.ErrMalformedID) {
		t.Fatalf("expected ErrMalformedID, got %v", err)
	}

	generated := mustCreate(t, m, map[string]any{"url": "b"})
	if !strings.HasPrefix(generated.ID, "imag-") {
		t.Errorf("generated ID = %q", generated.ID)
	}

	docs, _ := m.List(ctx)
	if len(docs) != 2 {
		t.Errorf("List len = %d, want 2", len(docs))
	}

	if _, err := m.UpdateOne(ctx, "missing", model.Update{}.Set("url", "c")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.UpdateOne(ctx, doc.ID, nil); err == nil {
		t.Fatal("expected error for empty update")
	}
	if err := m.Delete(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDefine(t *testing.T) {
	r := newTestRegistry(t)
	schema := model.NewSchema(model.Scalar("a", model.KindString))

	if _, err := r.Define("", schema); err == nil {
		t.Error("expected error for empty name")
	}
	mustDefine(t, r, "A", schema)
	if _, err := r.Define("A", schema); err == nil {
		t.Error("expected error for duplicate model")
	}
	if _, err := r.Define("Bad", model.NewSchema(model.Scalar("x", model.Kind("nope")))); err == nil {
		t.Error("expected schema validation error")
	}

	errPlugin := errors.New("plugin failed")
	if _, err := r.Define("P", schema, func(model.Hookable) error { return errPlugin }); !errors.Is(err, errPlugin) {
		t.Fatalf("expected plugin error, got %v", err)
	}
	if _, ok := r.Model("P"); ok {
		t.Error("model with failing plugin should not be registered")
	}

	mustDefine(t, r, "B", schema)
	models := r.Models()
	if len(models) != 2 || models[0].ModelName() != "A" || models[1].ModelName() != "B" {
		t.Errorf("Models() not in definition order")
	}

	if f, ok := r.Lookup("B"); !ok || f.ModelName() != "B" {
		t.Error("Lookup(B) failed")
	}
	if f, ok := r.Lookup("Z"); ok || f != nil {
		t.Error("Lookup(Z) should miss with a nil finder")
	}
}
