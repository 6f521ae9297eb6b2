package grpccas

import (
	"context"
	"log/slog"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/szdt/storage"
)

// Server exposes a storage.CAS over the CAS gRPC service.
type Server struct {
	UnimplementedCASServer
	CAS storage.CAS

	// Logger receives one record per failed request. Nil disables logging.
	Logger *slog.Logger
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	b := in.GetValue()
	id, err := s.CAS.Put(b)
	if err != nil {
		return nil, s.fail(ctx, "put", cid.Undef, err)
	}
	// The backend must honour the digest contract too.
	if !id.Equals(storage.CIDOf(b)) {
		return nil, s.fail(ctx, "put", id, storage.ErrCIDMismatch)
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, toStatus(storage.ErrInvalidCID)
	}
	b, err := s.CAS.Get(id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, toStatus(err)
		}
		return nil, s.fail(ctx, "get", id, err)
	}
	if err := storage.Verify(id, b); err != nil {
		return nil, s.fail(ctx, "get", id, err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	_ = ctx
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, toStatus(storage.ErrInvalidCID)
	}
	return wrapperspb.Bool(s.CAS.Has(id)), nil
}

func (s *Server) fail(ctx context.Context, op string, id cid.Cid, err error) error {
	if s.Logger != nil {
		attrs := []any{slog.String("op", op), slog.Any("err", err)}
		if id.Defined() {
			attrs = append(attrs, slog.String("cid", id.String()))
		}
		level := slog.LevelWarn
		if storage.IsIntegrity(err) {
			level = slog.LevelError
		}
		s.Logger.Log(ctx, level, "cas request failed", attrs...)
	}
	return toStatus(err)
}
