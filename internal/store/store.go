package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// ErrNotFound is returned by writes that target a document that does not exist.
var ErrNotFound = errors.New("document not found")

// ErrDuplicateID is returned by Insert when the identifier is already taken.
var ErrDuplicateID = errors.New("duplicate document id")

// Store defines the persistence interface for documents, grouped by
// collection (one collection per model).
type Store interface {
	// Insert stores a new document. The document must carry an ID.
	Insert(ctx context.Context, collection string, doc *model.Document) error
	// Replace overwrites an existing document.
	Replace(ctx context.Context, collection string, doc *model.Document) error
	// Update applies operator maps to the document with the given ID and
	// returns the result.
	Update(ctx context.Context, collection, id string, upd model.Update) (*model.Document, error)
	// FindByID returns nil, nil when no document exists.
	FindByID(ctx context.Context, collection, id string) (*model.Document, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]*model.Document, error)
	// Collections returns the names of all non-empty collections.
	Collections(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
}
