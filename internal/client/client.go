// Package client provides a transport-agnostic interface for the refguard
// document service, with HTTP/JSON and gRPC implementations.
package client

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// ErrNotFound is matched by errors for unknown models and documents.
var ErrNotFound = errors.New("not found")

// Client is the interface every CLI command uses to talk to the server.
type Client interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Documents
	CreateDocument(ctx context.Context, modelName string, fields map[string]any) (*model.Document, error)
	GetDocument(ctx context.Context, modelName, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, modelName string) ([]*model.Document, error)
	SaveDocument(ctx context.Context, modelName, id string, fields map[string]any) (*model.Document, error)
	UpdateDocument(ctx context.Context, modelName, id string, upd model.Update) (*model.Document, error)
	DeleteDocument(ctx context.Context, modelName, id string) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// ModelInfo describes a model registered on the server.
type ModelInfo struct {
	Name       string    `json:"name"`
	StrictRefs []RefInfo `json:"strict_refs"`
}

// RefInfo is a strict reference field of a model.
type RefInfo struct {
	Path     string `json:"path"`
	Array    bool   `json:"array,omitempty"`
	RefModel string `json:"ref_model"`
}

type listModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

type listDocumentsResponse struct {
	Documents []*model.Document `json:"documents"`
	Total     int               `json:"total"`
}
