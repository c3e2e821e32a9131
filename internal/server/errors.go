package server

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/store"
)

// classify maps an error from the document operations to an HTTP status and
// a gRPC code. Order matters: a StoreError wrapping a malformed identifier is
// bad input, not a store outage.
func classify(err error) (int, codes.Code) {
	var (
		ie  inputError
		nfe notFoundError
		ve  *model.ValidationError
	)
	switch {
	case errors.As(err, &ie), errors.As(err, &ve):
		return http.StatusBadRequest, codes.InvalidArgument
	case errors.As(err, &nfe), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, codes.NotFound
	case errors.Is(err, model.ErrMissingReference):
		return http.StatusUnprocessableEntity, codes.FailedPrecondition
	case errors.Is(err, model.ErrModelNotFound):
		return http.StatusInternalServerError, codes.Internal
	case errors.Is(err, model.ErrMalformedID):
		return http.StatusBadRequest, codes.InvalidArgument
	case errors.Is(err, model.ErrStore):
		return http.StatusBadGateway, codes.Unavailable
	case errors.Is(err, store.ErrDuplicateID):
		return http.StatusConflict, codes.AlreadyExists
	}
	return http.StatusInternalServerError, codes.Internal
}

// writeErr writes err as a JSON error response with its mapped status.
func writeErr(w http.ResponseWriter, err error) {
	code, _ := classify(err)
	writeError(w, code, err.Error())
}

// grpcError converts err to a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	_, code := classify(err)
	return status.Error(code, err.Error())
}
