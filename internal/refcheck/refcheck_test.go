package refcheck

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// fakeModel is an in-memory model.Finder that counts lookups.
type fakeModel struct {
	name string

	mu    sync.Mutex
	docs  map[string]bool
	calls atomic.Int64

	// err, when non-nil, is returned by every lookup.
	err error
	// delay, when set, is applied per id before answering.
	delay map[string]time.Duration
}

func newFakeModel(name string, ids ...string) *fakeModel {
	m := &fakeModel{name: name, docs: make(map[string]bool), delay: make(map[string]time.Duration)}
	for _, id := range ids {
		m.docs[id] = true
	}
	return m
}

func (m *fakeModel) ModelName() string { return m.name }

func (m *fakeModel) FindByID(ctx context.Context, id string) (*model.Document, error) {
	m.calls.Add(1)
	if d := m.delay[id]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.docs[id] {
		return nil, nil
	}
	return &model.Document{ID: id}, nil
}

func (m *fakeModel) remove(id string) {
	m.mu.Lock()
	delete(m.docs, id)
	m.mu.Unlock()
}

// mapRegistry is a Registry over a plain map.
type mapRegistry map[string]model.Finder

func (r mapRegistry) Lookup(name string) (model.Finder, bool) {
	m, ok := r[name]
	return m, ok
}

// fakeTarget is a model.Hookable that records registered hooks.
type fakeTarget struct {
	name   string
	schema *model.Schema
	hooks  []model.PreHook
}

func (t *fakeTarget) ModelName() string     { return t.name }
func (t *fakeTarget) Schema() *model.Schema { return t.schema }
func (t *fakeTarget) Pre(fn model.PreHook)  { t.hooks = append(t.hooks, fn) }

func savedDoc(fields map[string]any) *model.Document {
	return model.NewDocument("doc-1", fields)
}

func TestForeignKeyFields(t *testing.T) {
	image := newFakeModel("Image")
	schema := model.NewSchema(
		model.Scalar("username", model.KindString),
		model.Reference("image", model.RefModel(image), true),
		model.Reference("lead", model.RefName("User"), false),
		model.ReferenceArray("members", model.RefName("User"), true),
		model.ReferenceArray("fans", model.RefName("User"), false),
		model.FieldDesc{Path: "tags", Kind: model.KindArray, Elem: &model.FieldDesc{Kind: model.KindString}},
		model.Reference("owner", model.RefName("User"), true),
	)

	keys := ForeignKeyFields(schema)
	got := Paths(keys)
	want := []string{"image", "members", "owner"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("ForeignKeyFields = %v, want %v", got, want)
	}
	if keys[0].Array || !keys[1].Array || keys[2].Array {
		t.Errorf("unexpected array flags: %+v", keys)
	}
	if keys[0].Ref.Model != image {
		t.Error("direct handle not carried through")
	}
	if keys[1].Ref.Name != "User" {
		t.Errorf("array ref = %q, want element ref %q", keys[1].Ref.Name, "User")
	}
}

func TestForeignKeyFields_StrictOnArrayNotElement(t *testing.T) {
	// The strict flag belongs to the element descriptor; a flag on the array
	// itself does not make the field a foreign key.
	schema := model.NewSchema(model.FieldDesc{
		Path:   "members",
		Kind:   model.KindArray,
		Strict: true,
		Elem:   &model.FieldDesc{Kind: model.KindObjectID, Ref: model.RefName("User")},
	})
	if keys := ForeignKeyFields(schema); len(keys) != 0 {
		t.Fatalf("expected no foreign keys, got %v", Paths(keys))
	}
	if keys := ForeignKeyFields(nil); keys != nil {
		t.Fatalf("nil schema: got %v", keys)
	}
}

func TestIsModified(t *testing.T) {
	doc := model.NewDocument("", map[string]any{"image": "A1", "lead": nil})
	doc.MarkPersisted()
	doc.Set("members", []any{"u1"})
	doc.Set("lead", nil)

	for _, tc := range []struct {
		name string
		op   model.Operation
		path string
		want bool
	}{
		{"SaveUnmodified", model.SaveOp{Doc: doc}, "image", false},
		{"SaveModified", model.SaveOp{Doc: doc}, "members", true},
		{"SaveModifiedNull", model.SaveOp{Doc: doc}, "lead", false},
		{"UpdateSet", model.UpdateOp{Update: model.Update{}.Set("image", "A1")}, "image", true},
		{"UpdatePush", model.UpdateOp{Update: model.Update{}.Push("members", "u2")}, "members", true},
		{"UpdateInc", model.UpdateOp{Update: model.Update{}.Inc("image", 1)}, "image", true},
		{"UpdateOtherField", model.UpdateOp{Update: model.Update{}.Set("username", "x")}, "image", false},
		{"UpdateUnrecognizedOperator", model.UpdateOp{Update: model.Update{model.OpAddToSet: {"members": "u3"}}}, "members", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsModified(tc.op, tc.path); got != tc.want {
				t.Errorf("IsModified(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestCandidateValues(t *testing.T) {
	scalar := ForeignKey{Path: "image"}
	array := ForeignKey{Path: "members", Array: true}
	fuel := &model.Document{ID: "fuel-1"}

	for _, tc := range []struct {
		name string
		op   model.Operation
		key  ForeignKey
		want string
	}{
		{"SaveScalar", model.SaveOp{Doc: savedDoc(map[string]any{"image": "A1"})}, scalar, "[A1]"},
		{"SaveArray", model.SaveOp{Doc: savedDoc(map[string]any{"members": []any{"u1", "u2"}})}, array, "[u1 u2]"},
		{"SaveEmptyArray", model.SaveOp{Doc: savedDoc(map[string]any{"members": []any{}})}, array, "[]"},
		{"UpdateSetScalar", model.UpdateOp{Update: model.Update{}.Set("image", "B2")}, scalar, "[B2]"},
		{"UpdatePushOne", model.UpdateOp{Update: model.Update{}.Push("members", "u3")}, array, "[u3]"},
		{"UpdatePushEach", model.UpdateOp{Update: model.Update{}.Push("members", map[string]any{"$each": []any{"u3", "u4"}})}, array, "[u3 u4]"},
		{"UpdateSetAndPush", model.UpdateOp{Update: model.Update{}.Set("members", []any{"u1"}).Push("members", "u2")}, array, "[u1 u2]"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := fmt.Sprint(CandidateValues(tc.op, tc.key))
			if got != tc.want {
				t.Errorf("CandidateValues = %s, want %s", got, tc.want)
			}
		})
	}

	// Materialized documents are passed through and resolved to their id later.
	got := CandidateValues(model.SaveOp{Doc: savedDoc(map[string]any{"image": fuel})}, scalar)
	if len(got) != 1 || got[0] != any(fuel) {
		t.Fatalf("CandidateValues(materialized) = %v", got)
	}
	if id, err := model.IDOf(got[0]); err != nil || id != "fuel-1" {
		t.Errorf("IDOf(materialized) = %q, %v", id, err)
	}
}

func TestResolver(t *testing.T) {
	image := newFakeModel("Image")
	r := NewResolver(mapRegistry{"Image": image})

	if m, err := r.Resolve(model.RefName("Image")); err != nil || m != image {
		t.Fatalf("Resolve by name = %v, %v", m, err)
	}
	direct := newFakeModel("Other")
	if m, err := r.Resolve(model.RefModel(direct)); err != nil || m != direct {
		t.Fatalf("Resolve by handle = %v, %v", m, err)
	}
	if _, err := r.Resolve(model.RefName("Missing")); !errors.Is(err, model.ErrModelNotFound) {
		t.Fatalf("Resolve missing = %v, want ErrModelNotFound", err)
	}
	if _, err := NewResolver(nil).Resolve(model.RefName("Image")); !errors.Is(err, model.ErrModelNotFound) {
		t.Fatalf("Resolve with nil registry = %v, want ErrModelNotFound", err)
	}
}

func TestValidate_NilModelHandle(t *testing.T) {
	var missing *fakeModel
	if _, err := NewResolver(nil).Resolve(model.RefModel(missing)); !errors.Is(err, model.ErrModelNotFound) {
		t.Fatalf("Resolve typed nil handle = %v, want ErrModelNotFound", err)
	}

	schema := model.NewSchema(model.Reference("image", model.RefModel(missing), true))
	v := New("Profile", schema, mapRegistry{})
	err := v.Validate(context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"image": "A1"})})
	var cerr *model.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigurationError, got %v", err)
	}
	if !errors.Is(err, model.ErrModelNotFound) {
		t.Error("expected errors.Is(err, ErrModelNotFound)")
	}
}

func profileSchema() *model.Schema {
	return model.NewSchema(
		model.Scalar("username", model.KindString),
		model.Reference("image", model.RefName("Image"), true),
	)
}

func TestValidate_Insert(t *testing.T) {
	image := newFakeModel("Image", "A1")
	v := New("Profile", profileSchema(), mapRegistry{"Image": image})
	ctx := context.Background()

	if err := v.Validate(ctx, model.SaveOp{Doc: savedDoc(map[string]any{"username": "foo", "image": "A1"})}); err != nil {
		t.Fatalf("existing reference rejected: %v", err)
	}

	err := v.Validate(ctx, model.SaveOp{Doc: savedDoc(map[string]any{"username": "foo", "image": "B2"})})
	var mre *model.MissingReferenceError
	if !errors.As(err, &mre) {
		t.Fatalf("expected *MissingReferenceError, got %v", err)
	}
	if mre.Field != "image" || mre.RefModel != "Image" || mre.Model != "Profile" || mre.ID != "B2" {
		t.Errorf("unexpected error fields: %+v", mre)
	}
	want := `invalid reference id "B2" to document in model "Image" for path "image" of model "Profile"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, model.ErrMissingReference) {
		t.Error("expected errors.Is(err, ErrMissingReference)")
	}
}

func TestValidate_DeletedReferenceOnUpdate(t *testing.T) {
	image := newFakeModel("Image", "A1")
	v := New("Profile", profileSchema(), mapRegistry{"Image": image})
	ctx := context.Background()

	image.remove("A1")
	err := v.Validate(ctx, model.UpdateOp{ID: "p1", Update: model.Update{}.Set("image", "A1")})
	if !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("expected missing reference, got %v", err)
	}
}

func TestValidate_UntouchedForeignKeySkipsLookups(t *testing.T) {
	image := newFakeModel("Image")
	v := New("Profile", profileSchema(), mapRegistry{"Image": image})
	ctx := context.Background()

	if err := v.Validate(ctx, model.UpdateOp{ID: "p1", Update: model.Update{}.Set("username", "bar")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := model.NewDocument("p1", map[string]any{"username": "foo", "image": "dangling"})
	doc.MarkPersisted()
	doc.Set("username", "bar")
	if err := v.Validate(ctx, model.SaveOp{Doc: doc}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := image.calls.Load(); n != 0 {
		t.Errorf("expected no lookups, got %d", n)
	}
}

func TestValidate_NewDocumentWithoutReference(t *testing.T) {
	image := newFakeModel("Image")
	v := New("Profile", profileSchema(), mapRegistry{"Image": image})
	err := v.Validate(context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"username": "foo", "image": nil})})
	if err != nil {
		t.Fatalf("null reference should not be checked: %v", err)
	}
	if n := image.calls.Load(); n != 0 {
		t.Errorf("expected no lookups, got %d", n)
	}
}

func TestValidate_ArrayPushMissingNotMasked(t *testing.T) {
	users := newFakeModel("User", "bass", "drums")
	schema := model.NewSchema(
		model.Reference("lead", model.RefName("User"), false),
		model.ReferenceArray("members", model.RefName("User"), true),
	)
	v := New("Band", schema, mapRegistry{"User": users})
	ctx := context.Background()

	upd := model.Update{}.Push("members", map[string]any{"$each": []any{"bass", "ghost", "drums"}})
	err := v.Validate(ctx, model.UpdateOp{ID: "b1", Update: upd})
	var mre *model.MissingReferenceError
	if !errors.As(err, &mre) || mre.ID != "ghost" || mre.Field != "members" {
		t.Fatalf("expected missing ghost on members, got %v", err)
	}
	if n := users.calls.Load(); n != 3 {
		t.Errorf("expected 3 lookups, got %d", n)
	}

	// Non-strict field is never checked.
	if err := v.Validate(ctx, model.SaveOp{Doc: savedDoc(map[string]any{"lead": "nobody", "members": []any{"bass"}})}); err != nil {
		t.Fatalf("non-strict field checked: %v", err)
	}
}

func TestValidate_EmptyArrayPasses(t *testing.T) {
	users := newFakeModel("User")
	v := New("Band", model.NewSchema(model.ReferenceArray("members", model.RefName("User"), true)), mapRegistry{"User": users})
	if err := v.Validate(context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"members": []any{}})}); err != nil {
		t.Fatalf("empty array rejected: %v", err)
	}
}

func TestValidate_ConfigurationError(t *testing.T) {
	// The identifier exists in some other model, which must not matter.
	other := newFakeModel("Image", "A1")
	v := New("Profile", profileSchema(), mapRegistry{"Picture": other})

	err := v.Validate(context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"image": "A1"})})
	var cerr *model.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigurationError, got %v", err)
	}
	if errors.Is(err, model.ErrMissingReference) {
		t.Error("configuration error must be distinguishable from missing reference")
	}
	if !errors.Is(err, model.ErrModelNotFound) {
		t.Error("expected errors.Is(err, ErrModelNotFound)")
	}
	if n := other.calls.Load(); n != 0 {
		t.Errorf("expected no lookups, got %d", n)
	}
}

func TestValidate_ConfigurationErrorAbortsBeforeLookups(t *testing.T) {
	users := newFakeModel("User", "u1")
	schema := model.NewSchema(
		model.ReferenceArray("members", model.RefName("User"), true),
		model.Reference("venue", model.RefName("Venue"), true),
	)
	v := New("Band", schema, mapRegistry{"User": users})
	doc := savedDoc(map[string]any{"members": []any{"u1"}, "venue": "v1"})

	if err := v.Validate(context.Background(), model.SaveOp{Doc: doc}); !errors.Is(err, model.ErrModelNotFound) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if n := users.calls.Load(); n != 0 {
		t.Errorf("expected no lookups once resolution failed, got %d", n)
	}
}

func TestValidate_StoreError(t *testing.T) {
	image := newFakeModel("Image")
	image.err = errors.New("connection refused")
	v := New("Profile", profileSchema(), mapRegistry{"Image": image})

	err := v.Validate(context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"image": "A1"})})
	var serr *model.StoreError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *StoreError, got %v", err)
	}
	if !errors.Is(err, model.ErrStore) || errors.Is(err, model.ErrMissingReference) {
		t.Errorf("store error misclassified: %v", err)
	}
}

func TestValidate_MalformedIdentifier(t *testing.T) {
	image := newFakeModel("Image")
	v := New("Profile", profileSchema(), mapRegistry{"Image": image})

	err := v.Validate(context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"image": 42.0})})
	if !errors.Is(err, model.ErrMalformedID) || !errors.Is(err, model.ErrStore) {
		t.Fatalf("expected malformed identifier store error, got %v", err)
	}
	if n := image.calls.Load(); n != 0 {
		t.Errorf("malformed identifier should not reach the store, got %d lookups", n)
	}
}

func TestValidate_DeterministicFirstFailure(t *testing.T) {
	users := newFakeModel("User")
	images := newFakeModel("Image")
	// The first declared field answers last.
	users.delay["slow"] = 50 * time.Millisecond
	schema := model.NewSchema(
		model.Reference("owner", model.RefName("User"), true),
		model.Reference("image", model.RefName("Image"), true),
	)
	v := New("Profile", schema, mapRegistry{"User": users, "Image": images})
	op := model.SaveOp{Doc: savedDoc(map[string]any{"owner": "slow", "image": "fast"})}

	for i := 0; i < 3; i++ {
		err := v.Validate(context.Background(), op)
		var mre *model.MissingReferenceError
		if !errors.As(err, &mre) {
			t.Fatalf("run %d: expected missing reference, got %v", i, err)
		}
		if mre.Field != "owner" {
			t.Fatalf("run %d: reported field %q, want %q (declaration order)", i, mre.Field, "owner")
		}
	}
}

func TestValidate_DirectHandle(t *testing.T) {
	image := newFakeModel("Image", "A1")
	schema := model.NewSchema(model.Reference("image", model.RefModel(image), true))
	v := New("Profile", schema, nil)

	if err := v.Validate(context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"image": "A1"})}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := v.Validate(context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"image": "B2"})})
	var mre *model.MissingReferenceError
	if !errors.As(err, &mre) || mre.RefModel != "Image" {
		t.Fatalf("expected missing reference naming Image, got %v", err)
	}
}

func TestValidate_ConcurrencyLimit(t *testing.T) {
	users := newFakeModel("User")
	ids := make([]any, 20)
	for i := range ids {
		id := fmt.Sprintf("u%d", i)
		users.docs[id] = true
		users.delay[id] = 5 * time.Millisecond
		ids[i] = id
	}
	v := New("Band", model.NewSchema(model.ReferenceArray("members", model.RefName("User"), true)),
		mapRegistry{"User": users}, WithConcurrency(2))
	if err := v.Validate(context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"members": ids})}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := users.calls.Load(); n != 20 {
		t.Errorf("expected 20 lookups, got %d", n)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	image := newFakeModel("Image", "A1")
	v := New("Profile", profileSchema(), mapRegistry{"Image": image})
	op := model.UpdateOp{ID: "p1", Update: model.Update{}.Set("image", "B2")}

	first := v.Validate(context.Background(), op)
	second := v.Validate(context.Background(), op)
	if first == nil || second == nil || first.Error() != second.Error() {
		t.Fatalf("outcomes differ: %v / %v", first, second)
	}
	if len(op.Update[model.OpSet]) != 1 || op.Update[model.OpSet]["image"] != "B2" {
		t.Error("operation payload was mutated")
	}
}

func TestAttach(t *testing.T) {
	image := newFakeModel("Image")
	target := &fakeTarget{name: "Profile", schema: profileSchema()}
	v := Attach(target, mapRegistry{"Image": image})
	if len(target.hooks) != 1 {
		t.Fatalf("expected one hook, got %d", len(target.hooks))
	}
	if got := Paths(v.ForeignKeys()); len(got) != 1 || got[0] != "image" {
		t.Errorf("ForeignKeys = %v", got)
	}
	err := target.hooks[0](context.Background(), model.SaveOp{Doc: savedDoc(map[string]any{"image": "B2"})})
	if !errors.Is(err, model.ErrMissingReference) {
		t.Fatalf("hook did not reject: %v", err)
	}

	plain := &fakeTarget{name: "Image", schema: model.NewSchema(model.Scalar("url", model.KindString))}
	Attach(plain, mapRegistry{})
	if len(plain.hooks) != 0 {
		t.Errorf("model without strict fields got %d hooks", len(plain.hooks))
	}
}

func TestPlugin(t *testing.T) {
	plugin := Plugin(RegistryFunc(func(string) (model.Finder, bool) { return nil, false }))
	if err := plugin(&fakeTarget{name: "Broken"}); err == nil {
		t.Error("expected error for model without schema")
	}
	target := &fakeTarget{name: "Profile", schema: profileSchema()}
	if err := plugin(target); err != nil {
		t.Fatalf("plugin: %v", err)
	}
	if len(target.hooks) != 1 {
		t.Errorf("expected one hook, got %d", len(target.hooks))
	}
}
