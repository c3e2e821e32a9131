package refcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// DefaultConcurrency bounds the number of existence lookups in flight for a
// single write.
const DefaultConcurrency = 16

// Validator enforces strict references for one model. It is safe for
// concurrent use; its state is fixed at construction.
type Validator struct {
	modelName   string
	keys        []ForeignKey
	resolver    *Resolver
	logger      *slog.Logger
	concurrency int
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used for rejections and lookups.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithConcurrency bounds concurrent lookups per write. Values below 1 mean
// DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// New analyzes schema and returns a validator for the model named modelName.
// Name-based references are resolved through registry at validation time.
func New(modelName string, schema *model.Schema, registry Registry, opts ...Option) *Validator {
	v := &Validator{
		modelName:   modelName,
		keys:        ForeignKeyFields(schema),
		resolver:    NewResolver(registry),
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ForeignKeys returns the strict reference fields the validator enforces.
func (v *Validator) ForeignKeys() []ForeignKey {
	out := make([]ForeignKey, len(v.keys))
	copy(out, v.keys)
	return out
}

// Validate returns nil when every strict reference op touches points at an
// existing document. Otherwise it returns a *model.ConfigurationError,
// *model.MissingReferenceError or *model.StoreError.
func (v *Validator) Validate(ctx context.Context, op model.Operation) error {
	fields := touched(op, v.keys)
	if len(fields) == 0 {
		return nil
	}

	// Resolve everything before issuing any lookup.
	var checks []check
	for _, f := range fields {
		refName := f.key.Ref.DisplayName()
		target, err := v.resolver.Resolve(f.key.Ref)
		if err != nil {
			cerr := &model.ConfigurationError{Field: f.key.Path, Model: v.modelName, RefModel: refName}
			v.reject(op, cerr)
			return cerr
		}
		if refName == "" {
			refName = target.ModelName()
		}
		for _, val := range f.values {
			checks = append(checks, check{field: f.key.Path, refModel: refName, target: target, value: val})
		}
	}

	if err := v.checkAll(ctx, checks); err != nil {
		v.reject(op, err)
		return err
	}
	return nil
}

// Hook returns the validator as a pre-write hook.
func (v *Validator) Hook() model.PreHook {
	return v.Validate
}

func (v *Validator) reject(op model.Operation, err error) {
	attrs := []any{"model", v.modelName, "op", op.Kind().String(), "error", err}
	var mre *model.MissingReferenceError
	if errors.As(err, &mre) {
		attrs = append(attrs, "field", mre.Field, "ref", mre.RefModel)
	}
	v.logger.Warn("write rejected", attrs...)
}

// Attach builds a validator for target and registers it as a pre-write hook.
// Models without strict reference fields get no hook.
func Attach(target model.Hookable, registry Registry, opts ...Option) *Validator {
	v := New(target.ModelName(), target.Schema(), registry, opts...)
	if len(v.keys) > 0 {
		target.Pre(v.Hook())
	}
	return v
}

// Plugin returns a model.Plugin that attaches a validator to every model it
// is applied to. Register it globally to cover all models defined afterward,
// or pass it when defining a single model.
func Plugin(registry Registry, opts ...Option) model.Plugin {
	return func(target model.Hookable) error {
		if target.Schema() == nil {
			return fmt.Errorf("refcheck: model %q has no schema", target.ModelName())
		}
		Attach(target, registry, opts...)
		return nil
	}
}
