// ============================================================================
// backend/internal/rpc/server.go
// Classroom gRPC server over the enrollment and gradebook services
// ============================================================================

package rpc

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"classroom/backend/internal/directory"
	"classroom/backend/internal/enrollment"
	"classroom/backend/internal/gradebook"
	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
)

// AuthorizationKey is the metadata key carrying "Bearer <token>"
const AuthorizationKey = "authorization"

// Server implements the Classroom service
type Server struct {
	enrollment *enrollment.Service
	gradebook  *gradebook.Service
	directory  directory.Directory
}

// NewServer creates a new Server instance
func NewServer(enrollmentService *enrollment.Service, gradebookService *gradebook.Service, dir directory.Directory) *Server {
	return &Server{enrollment: enrollmentService, gradebook: gradebookService, directory: dir}
}

func (s *Server) classroomServer() {}

// Register installs the service on a grpc.Server
func (s *Server) Register(gs grpc.ServiceRegistrar) {
	gs.RegisterService(&ServiceDesc, s)
}

// authenticate resolves the bearer token from the incoming metadata
func (s *Server) authenticate(ctx context.Context) (shared.Principal, error) {
	token := tokenFromContext(ctx)
	if token == "" {
		return shared.Principal{}, fmt.Errorf("%w: authorization token required", shared.ErrUnauthenticated)
	}
	return s.directory.Resolve(ctx, token)
}

func tokenFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(AuthorizationKey) {
		if token := directory.BearerToken(v); token != "" {
			return token
		}
	}
	return ""
}

// ============================================================================
// Auth
// ============================================================================

func (s *Server) login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	auth, ok := s.directory.(directory.Authenticator)
	if !ok {
		return nil, fmt.Errorf("%w: sign in with the identity provider", shared.ErrInvalidArgument)
	}
	res, err := auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// register creates a student account for anyone; other roles need an admin
func (s *Server) register(ctx context.Context, req *RegisterRequest) (*shared.Principal, error) {
	accounts, ok := s.directory.(directory.Accounts)
	if !ok {
		return nil, fmt.Errorf("%w: accounts are managed by the identity provider", shared.ErrInvalidArgument)
	}
	if req.Role == "" {
		req.Role = shared.RoleStudent
	}
	if req.Role != shared.RoleStudent {
		p, err := s.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		if !p.IsAdmin() {
			return nil, fmt.Errorf("%w: only admins create %s accounts", shared.ErrPermissionDenied, req.Role)
		}
	}
	user, err := accounts.CreateUser(ctx, req.Email, req.Password, req.Name, req.Role)
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: Registered %s account %s", user.Role, user.ID)
	return &shared.Principal{ID: user.ID, Role: user.Role, Name: user.Name, Email: user.Email}, nil
}

func (s *Server) logout(ctx context.Context, _ shared.Principal, _ *Empty) (*Ack, error) {
	if auth, ok := s.directory.(directory.Authenticator); ok {
		if err := auth.Logout(ctx, tokenFromContext(ctx)); err != nil {
			return nil, err
		}
	}
	return &Ack{Success: true, Message: "Logged out successfully"}, nil
}

func (s *Server) changePassword(ctx context.Context, p shared.Principal, req *ChangePasswordRequest) (*Ack, error) {
	accounts, ok := s.directory.(directory.Accounts)
	if !ok {
		return nil, fmt.Errorf("%w: accounts are managed by the identity provider", shared.ErrInvalidArgument)
	}
	if err := accounts.ChangePassword(ctx, p.ID, req.OldPassword, req.NewPassword); err != nil {
		return nil, err
	}
	return &Ack{Success: true, Message: "Password changed successfully. Please login again."}, nil
}

func (s *Server) whoAmI(_ context.Context, p shared.Principal, _ *Empty) (*shared.Principal, error) {
	return &p, nil
}

// ============================================================================
// Classes
// ============================================================================

func (s *Server) createClass(ctx context.Context, p shared.Principal, req *CreateClassRequest) (*ClassResponse, error) {
	class, err := s.enrollment.CreateClass(ctx, p, enrollment.NewClass{
		Name:        req.Name,
		Subject:     req.Subject,
		MaxStudents: req.MaxStudents,
		TeacherID:   req.TeacherID,
	})
	return classResponse(class, err)
}

func (s *Server) getClass(ctx context.Context, p shared.Principal, req *ClassRequest) (*ClassResponse, error) {
	return classResponse(s.enrollment.GetClass(ctx, p, req.ClassID))
}

func (s *Server) listClasses(ctx context.Context, p shared.Principal, _ *Empty) (*ListClassesResponse, error) {
	classes, err := s.enrollment.ListClasses(ctx, p)
	if err != nil {
		return nil, err
	}
	return &ListClassesResponse{Classes: classes}, nil
}

func (s *Server) joinClass(ctx context.Context, p shared.Principal, req *JoinClassRequest) (*ClassResponse, error) {
	return classResponse(s.enrollment.JoinByCode(ctx, p, req.Code))
}

func (s *Server) addStudent(ctx context.Context, p shared.Principal, req *StudentRequest) (*ClassResponse, error) {
	return classResponse(s.enrollment.AddStudent(ctx, p, req.ClassID, req.StudentID))
}

func (s *Server) removeStudents(ctx context.Context, p shared.Principal, req *RemoveStudentsRequest) (*RemoveStudentsResponse, error) {
	class, removed, err := s.enrollment.RemoveStudents(ctx, p, req.ClassID, req.StudentIDs...)
	if err != nil {
		return nil, err
	}
	return &RemoveStudentsResponse{Class: class, Removed: removed}, nil
}

func (s *Server) archiveClass(ctx context.Context, p shared.Principal, req *ClassRequest) (*ClassResponse, error) {
	return classResponse(s.enrollment.ArchiveClass(ctx, p, req.ClassID))
}

func (s *Server) restoreClass(ctx context.Context, p shared.Principal, req *ClassRequest) (*ClassResponse, error) {
	return classResponse(s.enrollment.RestoreClass(ctx, p, req.ClassID))
}

func (s *Server) regenerateCode(ctx context.Context, p shared.Principal, req *ClassRequest) (*ClassResponse, error) {
	return classResponse(s.enrollment.RegenerateCode(ctx, p, req.ClassID))
}

func classResponse(class shared.ClassModel, err error) (*ClassResponse, error) {
	if err != nil {
		return nil, err
	}
	return &ClassResponse{Class: class}, nil
}

// ============================================================================
// Assignments
// ============================================================================

func (s *Server) publishAssignment(ctx context.Context, p shared.Principal, req *PublishAssignmentRequest) (*AssignmentResponse, error) {
	a, err := s.gradebook.PublishAssignment(ctx, p, gradebook.NewAssignment{
		ClassID:        req.ClassID,
		Title:          req.Title,
		PointsPossible: req.PointsPossible,
		DueAt:          req.DueAt,
	})
	if err != nil {
		return nil, err
	}
	return &AssignmentResponse{Assignment: a}, nil
}

func (s *Server) listAssignments(ctx context.Context, p shared.Principal, req *ClassRequest) (*ListAssignmentsResponse, error) {
	list, err := s.gradebook.ListAssignments(ctx, p, req.ClassID)
	if err != nil {
		return nil, err
	}
	return &ListAssignmentsResponse{Assignments: list}, nil
}

func (s *Server) deleteAssignment(ctx context.Context, p shared.Principal, req *AssignmentRequest) (*DeleteAssignmentResponse, error) {
	deleted, err := s.gradebook.DeleteAssignment(ctx, p, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	return &DeleteAssignmentResponse{Deleted: deleted}, nil
}

// ============================================================================
// Grades
// ============================================================================

func (s *Server) saveDraft(ctx context.Context, p shared.Principal, req *GradeEntryRequest) (*GradeResponse, error) {
	return gradeResponse(s.gradebook.SaveDraft(ctx, p, req.RecordID, req.Points))
}

func (s *Server) commitGrade(ctx context.Context, p shared.Principal, req *GradeEntryRequest) (*GradeResponse, error) {
	return gradeResponse(s.gradebook.CommitGrade(ctx, p, req.RecordID, req.Points, req.Feedback))
}

func (s *Server) returnGrades(ctx context.Context, p shared.Principal, req *ReturnGradesRequest) (*GradesResponse, error) {
	return gradesResponse(s.gradebook.ReturnGrades(ctx, p, req.AssignmentID, req.StudentIDs...))
}

func (s *Server) submitAssignment(ctx context.Context, p shared.Principal, req *AssignmentRequest) (*GradeResponse, error) {
	return gradeResponse(s.gradebook.RecordSubmission(ctx, p, req.AssignmentID))
}

func (s *Server) listGrades(ctx context.Context, p shared.Principal, req *ListGradesRequest) (*GradesResponse, error) {
	return gradesResponse(s.gradebook.ListGrades(ctx, p, store.GradeQuery{
		ClassID:      req.ClassID,
		AssignmentID: req.AssignmentID,
		StudentID:    req.StudentID,
	}))
}

func (s *Server) classStatistics(ctx context.Context, p shared.Principal, req *StatisticsRequest) (*StatisticsResponse, error) {
	stats, err := s.gradebook.ClassStatistics(ctx, p, req.ClassID, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Server) studentSummary(ctx context.Context, p shared.Principal, req *StudentSummaryRequest) (*StudentSummaryResponse, error) {
	summary, err := s.gradebook.StudentSummary(ctx, p, req.ClassID, req.StudentID)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// watchStatistics streams class statistics until the client goes away
func (s *Server) watchStatistics(req *StatisticsRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	p, err := s.authenticate(ctx)
	if err != nil {
		return toStatus(err)
	}
	updates, err := s.gradebook.WatchStatistics(ctx, p, req.ClassID)
	if err != nil {
		return toStatus(err)
	}

	log.Printf("INFO: %s watching statistics of %s", p.ID, req.ClassID)
	for stats := range updates {
		out, err := toStruct(stats)
		if err != nil {
			return toStatus(err)
		}
		if err := stream.SendMsg(out); err != nil {
			return err
		}
	}
	return toStatus(ctx.Err())
}

func gradeResponse(rec shared.GradeRecord, err error) (*GradeResponse, error) {
	if err != nil {
		return nil, err
	}
	return &GradeResponse{Grade: rec}, nil
}

func gradesResponse(records []shared.GradeRecord, err error) (*GradesResponse, error) {
	if err != nil {
		return nil, err
	}
	return &GradesResponse{Grades: records}, nil
}

// TimeoutInterceptor bounds every unary call; d <= 0 leaves calls unbounded
func TimeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}
