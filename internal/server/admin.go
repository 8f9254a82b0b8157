package server

import (
	"context"
	"errors"
	"net/http"
	"tierbot/internal/domain"
	"tierbot/internal/middleware"
	"tierbot/internal/service"

	"connectrpc.com/connect"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const TierAdminPath = "/tierbot.v1.TierAdmin/"

const (
	GiveTierProcedure   = TierAdminPath + "GiveTier"
	RemoveTierProcedure = TierAdminPath + "RemoveTier"
	GetTierProcedure    = TierAdminPath + "GetTier"
	ListTiersProcedure  = TierAdminPath + "ListTiers"
	ReconcileProcedure  = TierAdminPath + "Reconcile"
)

// RosterSweeper runs an on-demand reconciliation pass.
type RosterSweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

type AdminServer struct {
	tierSvc *service.TierService
	sweeper RosterSweeper
}

func NewAdminServer(tierSvc *service.TierService, sweeper RosterSweeper) *AdminServer {
	return &AdminServer{tierSvc: tierSvc, sweeper: sweeper}
}

func (s *AdminServer) GiveTier(ctx context.Context, req *connect.Request[GiveTierRequest]) (*connect.Response[GiveTierResponse], error) {
	if req.Msg.MemberID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("member_id is required"))
	}
	rec, err := s.tierSvc.GiveTier(ctx, service.GiveTierRequest{
		Actor:    req.Msg.Actor,
		MemberID: req.Msg.MemberID,
		Tier:     req.Msg.Tier,
		Region:   req.Msg.Region,
		Username: req.Msg.Username,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GiveTierResponse{Record: toRecord(rec)}), nil
}

func (s *AdminServer) RemoveTier(ctx context.Context, req *connect.Request[RemoveTierRequest]) (*connect.Response[RemoveTierResponse], error) {
	if req.Msg.MemberID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("member_id is required"))
	}
	rec, err := s.tierSvc.RemoveTier(ctx, service.RemoveTierRequest{
		Actor:    req.Msg.Actor,
		MemberID: req.Msg.MemberID,
		Tier:     req.Msg.Tier,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &RemoveTierResponse{}
	if rec != nil {
		r := toRecord(*rec)
		resp.Record = &r
	}
	return connect.NewResponse(resp), nil
}

func (s *AdminServer) GetTier(ctx context.Context, req *connect.Request[GetTierRequest]) (*connect.Response[GetTierResponse], error) {
	rec, err := s.tierSvc.GetTier(ctx, req.Msg.MemberID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetTierResponse{Record: toRecord(rec)}), nil
}

func (s *AdminServer) ListTiers(ctx context.Context, req *connect.Request[ListTiersRequest]) (*connect.Response[ListTiersResponse], error) {
	var records []domain.TierRecord
	if req.Msg.Reconcile {
		var err error
		if records, err = s.tierSvc.Database(ctx); err != nil {
			return nil, toConnectError(err)
		}
	} else {
		records = s.tierSvc.Records()
	}

	resp := &ListTiersResponse{Records: make([]TierRecord, 0, len(records))}
	for _, r := range records {
		resp.Records = append(resp.Records, toRecord(r))
	}
	return connect.NewResponse(resp), nil
}

func (s *AdminServer) Reconcile(ctx context.Context, req *connect.Request[ReconcileRequest]) (*connect.Response[ReconcileResponse], error) {
	changed, err := s.sweeper.RunOnce(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ReconcileResponse{Changed: changed}), nil
}

// Handler mounts the admin procedures and a health check on one mux.
func (s *AdminServer) Handler(logger zerolog.Logger, adminToken string) http.Handler {
	opts := connect.WithCodec(JSONCodec{})

	rpc := http.NewServeMux()
	rpc.Handle(GiveTierProcedure, connect.NewUnaryHandler(GiveTierProcedure, s.GiveTier, opts))
	rpc.Handle(RemoveTierProcedure, connect.NewUnaryHandler(RemoveTierProcedure, s.RemoveTier, opts))
	rpc.Handle(GetTierProcedure, connect.NewUnaryHandler(GetTierProcedure, s.GetTier, opts))
	rpc.Handle(ListTiersProcedure, connect.NewUnaryHandler(ListTiersProcedure, s.ListTiers, opts))
	rpc.Handle(ReconcileProcedure, connect.NewUnaryHandler(ReconcileProcedure, s.Reconcile, opts))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	requestIDMiddleware := middleware.RequestID(logger)
	authMiddleware := middleware.BearerAuth(adminToken)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(TierAdminPath, c.Handler(requestIDMiddleware(authMiddleware(rpc))))
	return mux
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, domain.ErrRoleNotRecognized), errors.Is(err, domain.ErrRegionNotRecognized):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, domain.ErrMemberNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, domain.ErrRoleGrantFailed), errors.Is(err, domain.ErrRoleRevokeFailed):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
