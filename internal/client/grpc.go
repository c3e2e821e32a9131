package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// serviceName must match the server's registered DocumentService name.
const serviceName = "refguard.v1.DocumentService"

// GRPCClient implements Client using the gRPC transport. Messages are
// google.protobuf.Struct values shaped like the HTTP bodies.
type GRPCClient struct {
	conn  *grpc.ClientConn
	token string
}

var _ Client = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{conn: conn, token: token}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// call invokes a DocumentService method and decodes the response Struct
// into out through JSON.
func (c *GRPCClient) call(ctx context.Context, method string, req map[string]any, out any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, resp); err != nil {
		return wrapStatus(err)
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(resp.AsMap())
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *GRPCClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var resp listModelsResponse
	if err := c.call(ctx, "ListModels", map[string]any{}, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

type documentResponse struct {
	Document *model.Document `json:"document"`
}

func (c *GRPCClient) document(ctx context.Context, method string, req map[string]any) (*model.Document, error) {
	var resp documentResponse
	if err := c.call(ctx, method, req, &resp); err != nil {
		return nil, err
	}
	return resp.Document, nil
}

func (c *GRPCClient) CreateDocument(ctx context.Context, modelName string, fields map[string]any) (*model.Document, error) {
	return c.document(ctx, "CreateDocument", map[string]any{"model": modelName, "document": fields})
}

func (c *GRPCClient) GetDocument(ctx context.Context, modelName, id string) (*model.Document, error) {
	return c.document(ctx, "GetDocument", map[string]any{"model": modelName, "id": id})
}

func (c *GRPCClient) ListDocuments(ctx context.Context, modelName string) ([]*model.Document, error) {
	var resp listDocumentsResponse
	if err := c.call(ctx, "ListDocuments", map[string]any{"model": modelName}, &resp); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

func (c *GRPCClient) SaveDocument(ctx context.Context, modelName, id string, fields map[string]any) (*model.Document, error) {
	return c.document(ctx, "SaveDocument", map[string]any{"model": modelName, "id": id, "document": fields})
}

func (c *GRPCClient) UpdateDocument(ctx context.Context, modelName, id string, upd model.Update) (*model.Document, error) {
	return c.document(ctx, "UpdateDocument", map[string]any{"model": modelName, "id": id, "update": upd})
}

func (c *GRPCClient) DeleteDocument(ctx context.Context, modelName, id string) error {
	return c.call(ctx, "DeleteDocument", map[string]any{"model": modelName, "id": id}, nil)
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		return "", err
	}
	if resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
		return "ok", nil
	}
	return resp.GetStatus().String(), nil
}

// toStruct converts a request to a Struct through JSON so documents and
// update operators are encoded the same way as over HTTP.
func toStruct(req map[string]any) (*structpb.Struct, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return structpb.NewStruct(m)
}

// statusError keeps the gRPC status while matching the same sentinels as
// APIError.
type statusError struct {
	err  error
	code codes.Code
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() []error {
	errs := []error{e.err}
	switch e.code {
	case codes.FailedPrecondition:
		errs = append(errs, model.ErrMissingReference)
	case codes.NotFound:
		errs = append(errs, ErrNotFound)
	}
	return errs
}

// GRPCStatus lets status.FromError see through the wrapper.
func (e *statusError) GRPCStatus() *status.Status {
	st, _ := status.FromError(e.err)
	return st
}

func wrapStatus(err error) error {
	return &statusError{err: err, code: status.Code(err)}
}
