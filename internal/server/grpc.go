package server

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/refguard/internal/model"
)

// DocumentServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct messages.
const DocumentServiceName = "refguard.v1.DocumentService"

// DocumentServiceServer is the gRPC surface of DocumentServer.
type DocumentServiceServer interface {
	ListModels(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDocuments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ DocumentServiceServer = (*DocumentServer)(nil)

type unaryMethod func(DocumentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unary adapts a Struct-in, Struct-out method to a grpc.MethodDesc.
func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DocumentServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + DocumentServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DocumentServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// DocumentServiceDesc describes DocumentService for grpc.Server.RegisterService.
var DocumentServiceDesc = grpc.ServiceDesc{
	ServiceName: DocumentServiceName,
	HandlerType: (*DocumentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListModels", DocumentServiceServer.ListModels),
		unary("CreateDocument", DocumentServiceServer.CreateDocument),
		unary("GetDocument", DocumentServiceServer.GetDocument),
		unary("ListDocuments", DocumentServiceServer.ListDocuments),
		unary("SaveDocument", DocumentServiceServer.SaveDocument),
		unary("UpdateDocument", DocumentServiceServer.UpdateDocument),
		unary("DeleteDocument", DocumentServiceServer.DeleteDocument),
	},
	Metadata: "refguard/v1/documents.proto",
}

// NewGRPCServer creates a gRPC server with standard interceptors and
// registers DocumentService and the standard health service.
func NewGRPCServer(ds *DocumentServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&DocumentServiceDesc, ds)

	hs := health.NewServer()
	hs.SetServingStatus(DocumentServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

func (s *DocumentServer) ListModels(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{"models": s.listModels()})
}

// CreateDocument expects {"model": ..., "document": {...}}.
func (s *DocumentServer) CreateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := s.createDocument(ctx, stringField(req, "model"), structField(req, "document"))
	if err != nil {
		return nil, grpcError(err)
	}
	return documentResponse(doc)
}

// GetDocument expects {"model": ..., "id": ...}.
func (s *DocumentServer) GetDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := s.getDocument(ctx, stringField(req, "model"), stringField(req, "id"))
	if err != nil {
		return nil, grpcError(err)
	}
	return documentResponse(doc)
}

// ListDocuments expects {"model": ...}.
func (s *DocumentServer) ListDocuments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	docs, err := s.listDocuments(ctx, stringField(req, "model"))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(map[string]any{"documents": docs, "total": len(docs)})
}

// SaveDocument expects {"model": ..., "id": ..., "document": {...}}.
func (s *DocumentServer) SaveDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := s.saveDocument(ctx, stringField(req, "model"), stringField(req, "id"), structField(req, "document"))
	if err != nil {
		return nil, grpcError(err)
	}
	return documentResponse(doc)
}

// UpdateDocument expects {"model": ..., "id": ..., "update": {"$set": {...}}}.
func (s *DocumentServer) UpdateDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := s.updateDocument(ctx, stringField(req, "model"), stringField(req, "id"), structField(req, "update"))
	if err != nil {
		return nil, grpcError(err)
	}
	return documentResponse(doc)
}

// DeleteDocument expects {"model": ..., "id": ...}.
func (s *DocumentServer) DeleteDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.deleteDocument(ctx, stringField(req, "model"), stringField(req, "id")); err != nil {
		return nil, grpcError(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

func documentResponse(doc *model.Document) (*structpb.Struct, error) {
	return toStruct(map[string]any{"document": doc})
}

func stringField(req *structpb.Struct, key string) string {
	if v, ok := req.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

// structField returns the object stored under key, or nil when it is absent
// or not an object.
func structField(req *structpb.Struct, key string) map[string]any {
	v, ok := req.GetFields()[key]
	if !ok {
		return nil
	}
	sv := v.GetStructValue()
	if sv == nil {
		return nil
	}
	return sv.AsMap()
}

// toStruct converts v to a Struct through its JSON encoding so documents
// keep their "_id" key.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return structpb.NewStruct(m)
}
