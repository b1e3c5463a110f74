// ============================================================================
// backend/internal/rpc/desc.go
// Service descriptor for classroom.v1.Classroom. Every request and response
// travels as a google.protobuf.Struct holding the JSON form of the typed
// messages in messages.go.
// ============================================================================

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"classroom/backend/internal/shared"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "classroom.v1.Classroom"

// Method names
const (
	MethodLogin             = "Login"
	MethodLogout            = "Logout"
	MethodRegister          = "Register"
	MethodChangePassword    = "ChangePassword"
	MethodWhoAmI            = "WhoAmI"
	MethodCreateClass       = "CreateClass"
	MethodGetClass          = "GetClass"
	MethodListClasses       = "ListClasses"
	MethodJoinClass         = "JoinClass"
	MethodAddStudent        = "AddStudent"
	MethodRemoveStudents    = "RemoveStudents"
	MethodArchiveClass      = "ArchiveClass"
	MethodRestoreClass      = "RestoreClass"
	MethodRegenerateCode    = "RegenerateCode"
	MethodPublishAssignment = "PublishAssignment"
	MethodListAssignments   = "ListAssignments"
	MethodDeleteAssignment  = "DeleteAssignment"
	MethodSaveDraft         = "SaveDraft"
	MethodCommitGrade       = "CommitGrade"
	MethodReturnGrades      = "ReturnGrades"
	MethodSubmitAssignment  = "SubmitAssignment"
	MethodListGrades        = "ListGrades"
	MethodClassStatistics   = "ClassStatistics"
	MethodStudentSummary    = "StudentSummary"
	MethodWatchStatistics   = "WatchStatistics"
)

// FullMethod returns the wire name of a method
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ClassroomServer is the server API for the Classroom service
type ClassroomServer interface {
	classroomServer()
}

// ServiceDesc describes the Classroom service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClassroomServer)(nil),
	Methods: []grpc.MethodDesc{
		public(MethodLogin, (*Server).login),
		public(MethodRegister, (*Server).register),
		authed(MethodLogout, (*Server).logout),
		authed(MethodChangePassword, (*Server).changePassword),
		authed(MethodWhoAmI, (*Server).whoAmI),

		authed(MethodCreateClass, (*Server).createClass),
		authed(MethodGetClass, (*Server).getClass),
		authed(MethodListClasses, (*Server).listClasses),
		authed(MethodJoinClass, (*Server).joinClass),
		authed(MethodAddStudent, (*Server).addStudent),
		authed(MethodRemoveStudents, (*Server).removeStudents),
		authed(MethodArchiveClass, (*Server).archiveClass),
		authed(MethodRestoreClass, (*Server).restoreClass),
		authed(MethodRegenerateCode, (*Server).regenerateCode),

		authed(MethodPublishAssignment, (*Server).publishAssignment),
		authed(MethodListAssignments, (*Server).listAssignments),
		authed(MethodDeleteAssignment, (*Server).deleteAssignment),

		authed(MethodSaveDraft, (*Server).saveDraft),
		authed(MethodCommitGrade, (*Server).commitGrade),
		authed(MethodReturnGrades, (*Server).returnGrades),
		authed(MethodSubmitAssignment, (*Server).submitAssignment),
		authed(MethodListGrades, (*Server).listGrades),
		authed(MethodClassStatistics, (*Server).classStatistics),
		authed(MethodStudentSummary, (*Server).studentSummary),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatchStatistics,
			Handler:       watchStatisticsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "classroom/v1/classroom.proto",
}

// public builds a unary method that decodes the Struct into Req, runs fn
// and encodes the result
func public[Req, Resp any](method string, fn func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				msg := new(Req)
				if err := fromStruct(req.(*structpb.Struct), msg); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				resp, err := fn(srv.(*Server), ctx, msg)
				if err != nil {
					return nil, toStatus(err)
				}
				out, err := toStruct(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// authed is public with the caller resolved from the authorization metadata
func authed[Req, Resp any](method string, fn func(*Server, context.Context, shared.Principal, *Req) (*Resp, error)) grpc.MethodDesc {
	return public(method, func(s *Server, ctx context.Context, req *Req) (*Resp, error) {
		p, err := s.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return fn(s, ctx, p, req)
	})
}

func watchStatisticsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	var req StatisticsRequest
	if err := fromStruct(in, &req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return srv.(*Server).watchStatistics(&req, stream)
}
