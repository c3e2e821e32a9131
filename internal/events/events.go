package events

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// Event topic constants
const (
	TopicDocumentCreated  = "refguard.document.created"
	TopicDocumentUpdated  = "refguard.document.updated"
	TopicDocumentDeleted  = "refguard.document.deleted"
	TopicDocumentRejected = "refguard.document.rejected"
)

// Rejection reasons carried by DocumentRejected.
const (
	ReasonMissingReference = "missing_reference"
	ReasonConfiguration    = "configuration"
	ReasonStore            = "store"
	ReasonHook             = "hook"
)

// Event types

type DocumentCreated struct {
	Model    string          `json:"model"`
	Document *model.Document `json:"document"`
}

type DocumentUpdated struct {
	Model    string          `json:"model"`
	Document *model.Document `json:"document"`
	Update   model.Update    `json:"update,omitempty"` // nil for whole-document saves
}

type DocumentDeleted struct {
	Model      string `json:"model"`
	DocumentID string `json:"document_id"`
}

// DocumentRejected is emitted when a pre-write hook refuses a write.
type DocumentRejected struct {
	Model      string `json:"model"`
	Operation  string `json:"operation"`
	DocumentID string `json:"document_id,omitempty"`
	Field      string `json:"field,omitempty"`
	RefModel   string `json:"ref_model,omitempty"`
	RefID      string `json:"ref_id,omitempty"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

// Rejection describes err, returned by a write of kind op on modelName.
func Rejection(modelName string, op model.OpKind, documentID string, err error) DocumentRejected {
	ev := DocumentRejected{
		Model:      modelName,
		Operation:  op.String(),
		DocumentID: documentID,
		Reason:     ReasonHook,
		Message:    err.Error(),
	}

	var (
		mre  *model.MissingReferenceError
		cerr *model.ConfigurationError
		serr *model.StoreError
	)
	switch {
	case errors.As(err, &mre):
		ev.Reason, ev.Field, ev.RefModel, ev.RefID = ReasonMissingReference, mre.Field, mre.RefModel, mre.ID
	case errors.As(err, &cerr):
		ev.Reason, ev.Field, ev.RefModel = ReasonConfiguration, cerr.Field, cerr.RefModel
	case errors.As(err, &serr):
		ev.Reason, ev.Field, ev.RefModel, ev.RefID = ReasonStore, serr.Field, serr.RefModel, serr.ID
	}
	return ev
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
