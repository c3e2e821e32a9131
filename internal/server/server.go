// Package server exposes registered models over HTTP and gRPC. Every write
// goes through the model's hook chain, so strict references are checked no
// matter which transport carried the request.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/alfredjeanlab/refguard/internal/events"
	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/odm"
	"github.com/alfredjeanlab/refguard/internal/refcheck"
)

// DocumentServer serves the documents of every model in a registry.
type DocumentServer struct {
	registry  *odm.Registry
	publisher events.Publisher
	stream    *eventStream
	logger    *slog.Logger
}

// NewDocumentServer returns a server for the models in reg that publishes
// write events to p.
func NewDocumentServer(reg *odm.Registry, p events.Publisher, logger *slog.Logger) *DocumentServer {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentServer{
		registry:  reg,
		publisher: p,
		stream:    newEventStream(),
		logger:    logger,
	}
}

// publish sends an event to NATS and to SSE clients. Failures are logged and
// never fail the request.
func (s *DocumentServer) publish(ctx context.Context, topic, modelName string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "model", modelName, "error", err)
	}
	s.broadcastEvent(topic, modelName, event)
}

// rejected publishes a rejection event when err came from the reference
// check. Other failures are not rejections.
func (s *DocumentServer) rejected(ctx context.Context, modelName string, op model.OpKind, id string, err error) {
	if !errors.Is(err, model.ErrMissingReference) &&
		!errors.Is(err, model.ErrModelNotFound) &&
		!errors.Is(err, model.ErrStore) {
		return
	}
	s.publish(ctx, events.TopicDocumentRejected, modelName, events.Rejection(modelName, op, id, err))
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// notFoundError indicates an unknown model or document.
// Transport layers map this to 404 / NotFound.
type notFoundError string

func (e notFoundError) Error() string { return string(e) }

func (s *DocumentServer) model(name string) (*odm.Model, error) {
	if name == "" {
		return nil, inputError("model is required")
	}
	m, ok := s.registry.Model(name)
	if !ok {
		return nil, notFoundError(fmt.Sprintf("model %q not found", name))
	}
	return m, nil
}

// modelInfo describes a registered model and its strict reference fields.
type modelInfo struct {
	Name       string    `json:"name"`
	StrictRefs []refInfo `json:"strict_refs"`
}

type refInfo struct {
	Path     string `json:"path"`
	Array    bool   `json:"array,omitempty"`
	RefModel string `json:"ref_model"`
}

func (s *DocumentServer) listModels() []modelInfo {
	models := s.registry.Models()
	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		info := modelInfo{Name: m.ModelName(), StrictRefs: []refInfo{}}
		for _, k := range refcheck.ForeignKeyFields(m.Schema()) {
			info.StrictRefs = append(info.StrictRefs, refInfo{Path: k.Path, Array: k.Array, RefModel: k.Ref.DisplayName()})
		}
		out = append(out, info)
	}
	return out
}

func (s *DocumentServer) createDocument(ctx context.Context, modelName string, fields map[string]any) (*model.Document, error) {
	m, err := s.model(modelName)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, inputError("document is required")
	}

	doc, err := m.Create(ctx, fields)
	if err != nil {
		id, _ := fields[model.IDKey].(string)
		s.rejected(ctx, modelName, model.OpKindSave, id, err)
		return nil, err
	}

	s.publish(ctx, events.TopicDocumentCreated, modelName, events.DocumentCreated{Model: modelName, Document: doc})
	return doc, nil
}

func (s *DocumentServer) getDocument(ctx context.Context, modelName, id string) (*model.Document, error) {
	m, err := s.model(modelName)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, inputError("id is required")
	}
	doc, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, notFoundError(fmt.Sprintf("%s %q not found", modelName, id))
	}
	return doc, nil
}

func (s *DocumentServer) listDocuments(ctx context.Context, modelName string) ([]*model.Document, error) {
	m, err := s.model(modelName)
	if err != nil {
		return nil, err
	}
	docs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	return docs, nil
}

// saveDocument replaces the stored document with fields. Only values that
// differ from the stored copy count as modified, so unchanged references are
// not re-checked.
func (s *DocumentServer) saveDocument(ctx context.Context, modelName, id string, fields map[string]any) (*model.Document, error) {
	if fields == nil {
		return nil, inputError("document is required")
	}
	if raw, ok := fields[model.IDKey]; ok && raw != id {
		return nil, inputError(fmt.Sprintf("%s in body does not match the path", model.IDKey))
	}
	doc, err := s.getDocument(ctx, modelName, id)
	if err != nil {
		return nil, err
	}
	m, _ := s.model(modelName)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != model.IDKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if old, ok := doc.Fields[k]; !ok || !reflect.DeepEqual(old, fields[k]) {
			doc.Set(k, fields[k])
		}
	}
	for k := range doc.Fields {
		if _, ok := fields[k]; !ok {
			doc.Unset(k)
		}
	}

	if err := m.Save(ctx, doc); err != nil {
		s.rejected(ctx, modelName, model.OpKindSave, id, err)
		return nil, err
	}

	s.publish(ctx, events.TopicDocumentUpdated, modelName, events.DocumentUpdated{Model: modelName, Document: doc})
	return doc, nil
}

func (s *DocumentServer) updateDocument(ctx context.Context, modelName, id string, raw map[string]any) (*model.Document, error) {
	m, err := s.model(modelName)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, inputError("id is required")
	}
	upd, err := model.ParseUpdate(raw)
	if err != nil {
		return nil, inputError(err.Error())
	}

	doc, err := m.UpdateOne(ctx, id, upd)
	if err != nil {
		s.rejected(ctx, modelName, model.OpKindUpdate, id, err)
		return nil, err
	}

	s.publish(ctx, events.TopicDocumentUpdated, modelName, events.DocumentUpdated{Model: modelName, Document: doc, Update: upd})
	return doc, nil
}

func (s *DocumentServer) deleteDocument(ctx context.Context, modelName, id string) error {
	m, err := s.model(modelName)
	if err != nil {
		return err
	}
	if id == "" {
		return inputError("id is required")
	}
	if err := m.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.TopicDocumentDeleted, modelName, events.DocumentDeleted{Model: modelName, DocumentID: id})
	return nil
}

// decodeFields decodes a JSON object, keeping numbers as float64 the way
// every store hands them back.
func decodeFields(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, inputError("invalid JSON body")
	}
	return fields, nil
}
