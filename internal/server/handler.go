package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

const (
	ProgressionServicePath = "/progression.v1.ProgressionService/"
	AdminServicePath       = "/progression.v1.AdminService/"
)

const (
	ProgressionRegisterUserProcedure    = ProgressionServicePath + "RegisterUser"
	ProgressionSubmitEventProcedure     = ProgressionServicePath + "SubmitEvent"
	ProgressionGetProgressProcedure     = ProgressionServicePath + "GetProgress"
	ProgressionGetHistoryProcedure      = ProgressionServicePath + "GetHistory"
	ProgressionGetStreaksProcedure      = ProgressionServicePath + "GetStreaks"
	ProgressionGetCompanionProcedure    = ProgressionServicePath + "GetCompanion"
	ProgressionUnlockCompanionProcedure = ProgressionServicePath + "UnlockCompanion"
	ProgressionGetRankingProcedure      = ProgressionServicePath + "GetRanking"
	ProgressionGetUserRankProcedure     = ProgressionServicePath + "GetUserRank"
	ProgressionListLevelsProcedure      = ProgressionServicePath + "ListLevels"

	AdminCorrectPointsProcedure    = AdminServicePath + "CorrectPoints"
	AdminSetDepartmentProcedure    = AdminServicePath + "SetDepartment"
	AdminClosePeriodProcedure      = AdminServicePath + "ClosePeriod"
	AdminRecomputeRankingProcedure = AdminServicePath + "RecomputeRanking"
)

// ClientOptions returns the options a connect client needs to talk to these
// services.
func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{connect.WithCodec(jsonCodec{})}
}

type routes map[string]http.Handler

func (rt routes) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := rt[r.URL.Path]; ok {
		h.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func NewProgressionServiceHandler(srv *ProgressionServer, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	return ProgressionServicePath, routes{
		ProgressionRegisterUserProcedure:    connect.NewUnaryHandler(ProgressionRegisterUserProcedure, srv.RegisterUser, opts...),
		ProgressionSubmitEventProcedure:     connect.NewUnaryHandler(ProgressionSubmitEventProcedure, srv.SubmitEvent, opts...),
		ProgressionGetProgressProcedure:     connect.NewUnaryHandler(ProgressionGetProgressProcedure, srv.GetProgress, opts...),
		ProgressionGetHistoryProcedure:      connect.NewUnaryHandler(ProgressionGetHistoryProcedure, srv.GetHistory, opts...),
		ProgressionGetStreaksProcedure:      connect.NewUnaryHandler(ProgressionGetStreaksProcedure, srv.GetStreaks, opts...),
		ProgressionGetCompanionProcedure:    connect.NewUnaryHandler(ProgressionGetCompanionProcedure, srv.GetCompanion, opts...),
		ProgressionUnlockCompanionProcedure: connect.NewUnaryHandler(ProgressionUnlockCompanionProcedure, srv.UnlockCompanion, opts...),
		ProgressionGetRankingProcedure:      connect.NewUnaryHandler(ProgressionGetRankingProcedure, srv.GetRanking, opts...),
		ProgressionGetUserRankProcedure:     connect.NewUnaryHandler(ProgressionGetUserRankProcedure, srv.GetUserRank, opts...),
		ProgressionListLevelsProcedure:      connect.NewUnaryHandler(ProgressionListLevelsProcedure, srv.ListLevels, opts...),
	}
}

// NewAdminServiceHandler mounts the admin procedures behind a bearer token
// check. An empty token disables every admin procedure.
func NewAdminServiceHandler(srv *AdminServer, token string, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(NewAdminAuthInterceptor(token)),
	}, opts...)

	return AdminServicePath, routes{
		AdminCorrectPointsProcedure:    connect.NewUnaryHandler(AdminCorrectPointsProcedure, srv.CorrectPoints, opts...),
		AdminSetDepartmentProcedure:    connect.NewUnaryHandler(AdminSetDepartmentProcedure, srv.SetDepartment, opts...),
		AdminClosePeriodProcedure:      connect.NewUnaryHandler(AdminClosePeriodProcedure, srv.ClosePeriod, opts...),
		AdminRecomputeRankingProcedure: connect.NewUnaryHandler(AdminRecomputeRankingProcedure, srv.RecomputeRanking, opts...),
	}
}

var (
	errAdminDisabled = errors.New("admin api disabled")
	errBadToken      = errors.New("invalid admin token")
)

func NewAdminAuthInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token == "" {
				return nil, connect.NewError(connect.CodePermissionDenied, errAdminDisabled)
			}
			got, ok := strings.CutPrefix(req.Header().Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, errBadToken)
			}
			return next(ctx, req)
		}
	}
}
