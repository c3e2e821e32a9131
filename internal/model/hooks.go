package model

import "context"

// PreHook runs before a write is persisted. Returning an error aborts the
// write. Hooks must not mutate the operation.
type PreHook func(ctx context.Context, op Operation) error

// Hookable is what a plugin attaches to: a named model with a schema and a
// pre-write hook chain.
type Hookable interface {
	ModelName() string
	Schema() *Schema
	Pre(fn PreHook)
}

// Plugin configures a model at definition time.
type Plugin func(Hookable) error
