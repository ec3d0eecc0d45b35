package server

import (
	"context"

	"engagement-engine/internal/domain"
	"engagement-engine/internal/service"

	"connectrpc.com/connect"
)

type AdminServer struct {
	admin    *service.AdminService
	progress *ProgressionServer
}

func NewAdminServer(admin *service.AdminService, progress *ProgressionServer) *AdminServer {
	return &AdminServer{admin: admin, progress: progress}
}

func (s *AdminServer) CorrectPoints(ctx context.Context, req *connect.Request[CorrectPointsRequest]) (*connect.Response[CorrectPointsResponse], error) {
	res, err := s.admin.CorrectPoints(ctx, req.Msg.UserID, req.Msg.Delta, req.Msg.Reason)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&CorrectPointsResponse{
		Progress:      s.progress.toProgress(res.Progress),
		PreviousLevel: res.PreviousLevel,
	}), nil
}

func (s *AdminServer) SetDepartment(ctx context.Context, req *connect.Request[SetDepartmentRequest]) (*connect.Response[SetDepartmentResponse], error) {
	if err := s.admin.SetDepartment(ctx, req.Msg.UserID, req.Msg.Department); err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&SetDepartmentResponse{}), nil
}

func (s *AdminServer) ClosePeriod(ctx context.Context, req *connect.Request[PeriodRequest]) (*connect.Response[PeriodResponse], error) {
	t, err := domain.ParseRankingType(req.Msg.Type)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	if req.Msg.At.IsZero() {
		return nil, toConnectError(ctx, domain.NewValidationError("at", "required"))
	}
	entries, err := s.admin.ClosePeriod(ctx, t, req.Msg.At, req.Msg.Department)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&PeriodResponse{Entries: entries}), nil
}

func (s *AdminServer) RecomputeRanking(ctx context.Context, req *connect.Request[PeriodRequest]) (*connect.Response[PeriodResponse], error) {
	t, err := domain.ParseRankingType(req.Msg.Type)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	if req.Msg.At.IsZero() {
		return nil, toConnectError(ctx, domain.NewValidationError("at", "required"))
	}
	entries, err := s.admin.RecomputeRanking(ctx, t, req.Msg.At, req.Msg.Department)
	if err != nil {
		return nil, toConnectError(ctx, err)
	}
	return connect.NewResponse(&PeriodResponse{Entries: entries}), nil
}
