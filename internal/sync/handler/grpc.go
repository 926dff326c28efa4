// Package handler exposes the synchronization engine to realm administrators over gRPC.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"db-user-sync/internal/directory"
	"db-user-sync/internal/platform/rbac"
	"db-user-sync/internal/source"
	"db-user-sync/internal/sync/domain"
)

// Syncer is the part of the orchestrator the admin surface uses.
type Syncer interface {
	SyncUsername(ctx context.Context, p *domain.Provider, username string) (domain.Result, error)
	PoolMetrics(providerID string) (source.PoolMetrics, bool)
}

// ProviderLookup resolves the provider of a realm name.
type ProviderLookup interface {
	ForRealm(realm string) (*domain.Provider, error)
}

// Server implements AdminServiceServer. Every call requires the admin role of the caller's realm.
type Server struct {
	dir       directory.SessionFactory
	providers ProviderLookup
	syncer    Syncer
}

// NewServer returns a new admin gRPC server.
func NewServer(dir directory.SessionFactory, providers ProviderLookup, syncer Syncer) *Server {
	return &Server{dir: dir, providers: providers, syncer: syncer}
}

// provider authorizes the caller and returns the provider of its realm. The RBAC session is
// finished before returning so the sync can open its own directory sessions.
func (s *Server) provider(ctx context.Context) (*domain.Provider, error) {
	realm, _, err := rbac.RequireRealmAdmin(ctx, s.dir)
	if err != nil {
		return nil, err
	}
	p, err := s.providers.ForRealm(realm.Name)
	if err != nil {
		return nil, statusFromError(err)
	}
	return p, nil
}

// TriggerUserSync imports the source rows of one username and returns the counts.
// NotFound when no source row matched; Aborted when the matching row failed to import.
func (s *Server) TriggerUserSync(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	username := strings.TrimSpace(req.GetValue())
	if username == "" {
		return nil, status.Error(codes.InvalidArgument, "username is required")
	}
	p, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.syncer.SyncUsername(ctx, p, username)
	if err != nil {
		return nil, statusFromError(err)
	}
	if res.Total() == 0 {
		return nil, status.Error(codes.NotFound, domain.ErrUserNotFound.Error())
	}
	if res.Failed > 0 {
		return nil, status.Errorf(codes.Aborted, "%s: %s", domain.ErrUserSyncFailed, res)
	}
	return structpb.NewStruct(map[string]interface{}{
		"added":   res.Added,
		"updated": res.Updated,
		"failed":  res.Failed,
	})
}

// GetPoolMetrics returns the connection pool statistics of the caller's realm provider.
// A provider that has not synchronized yet reports active=false.
func (s *Server) GetPoolMetrics(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	p, err := s.provider(ctx)
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{"provider_id": p.ID}
	m, ok := s.syncer.PoolMetrics(p.ID)
	fields["active"] = ok
	if ok {
		b, err := json.Marshal(m)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		var stats map[string]interface{}
		if err := json.Unmarshal(b, &stats); err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		for k, v := range stats {
			fields[k] = v
		}
	}
	return structpb.NewStruct(fields)
}

// statusFromError maps engine errors to gRPC status codes.
func statusFromError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrDataSource):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, domain.ErrInvalidRecord):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
