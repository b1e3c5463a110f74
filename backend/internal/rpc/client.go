// ============================================================================
// backend/internal/rpc/client.go
// Typed client for the Classroom service
// ============================================================================

package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"classroom/backend/internal/shared"
)

// Client calls the Classroom service over any gRPC connection
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a new Client instance
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithToken attaches a bearer token to outgoing calls made with ctx
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, AuthorizationKey, "Bearer "+token)
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}, opts ...grpc.CallOption) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return err
	}
	return fromStruct(out, resp)
}

// ============================================================================
// Auth
// ============================================================================

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	resp := new(LoginResponse)
	err := c.invoke(ctx, MethodLogin, LoginRequest{Email: email, Password: password}, resp)
	return resp, err
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*shared.Principal, error) {
	resp := new(shared.Principal)
	err := c.invoke(ctx, MethodRegister, req, resp)
	return resp, err
}

func (c *Client) Logout(ctx context.Context) (*Ack, error) {
	resp := new(Ack)
	err := c.invoke(ctx, MethodLogout, Empty{}, resp)
	return resp, err
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) (*Ack, error) {
	resp := new(Ack)
	err := c.invoke(ctx, MethodChangePassword, ChangePasswordRequest{OldPassword: oldPassword, NewPassword: newPassword}, resp)
	return resp, err
}

func (c *Client) WhoAmI(ctx context.Context) (*shared.Principal, error) {
	resp := new(shared.Principal)
	err := c.invoke(ctx, MethodWhoAmI, Empty{}, resp)
	return resp, err
}

// ============================================================================
// Classes
// ============================================================================

func (c *Client) CreateClass(ctx context.Context, req CreateClassRequest) (*shared.ClassModel, error) {
	return c.class(ctx, MethodCreateClass, req)
}

func (c *Client) GetClass(ctx context.Context, classID string) (*shared.ClassModel, error) {
	return c.class(ctx, MethodGetClass, ClassRequest{ClassID: classID})
}

func (c *Client) ListClasses(ctx context.Context) ([]shared.ClassModel, error) {
	resp := new(ListClassesResponse)
	err := c.invoke(ctx, MethodListClasses, Empty{}, resp)
	return resp.Classes, err
}

func (c *Client) JoinClass(ctx context.Context, code string) (*shared.ClassModel, error) {
	return c.class(ctx, MethodJoinClass, JoinClassRequest{Code: code})
}

func (c *Client) AddStudent(ctx context.Context, classID, studentID string) (*shared.ClassModel, error) {
	return c.class(ctx, MethodAddStudent, StudentRequest{ClassID: classID, StudentID: studentID})
}

func (c *Client) RemoveStudents(ctx context.Context, classID string, studentIDs ...string) (*RemoveStudentsResponse, error) {
	resp := new(RemoveStudentsResponse)
	err := c.invoke(ctx, MethodRemoveStudents, RemoveStudentsRequest{ClassID: classID, StudentIDs: studentIDs}, resp)
	return resp, err
}

func (c *Client) ArchiveClass(ctx context.Context, classID string) (*shared.ClassModel, error) {
	return c.class(ctx, MethodArchiveClass, ClassRequest{ClassID: classID})
}

func (c *Client) RestoreClass(ctx context.Context, classID string) (*shared.ClassModel, error) {
	return c.class(ctx, MethodRestoreClass, ClassRequest{ClassID: classID})
}

func (c *Client) RegenerateCode(ctx context.Context, classID string) (*shared.ClassModel, error) {
	return c.class(ctx, MethodRegenerateCode, ClassRequest{ClassID: classID})
}

func (c *Client) class(ctx context.Context, method string, req interface{}) (*shared.ClassModel, error) {
	resp := new(ClassResponse)
	if err := c.invoke(ctx, method, req, resp); err != nil {
		return nil, err
	}
	return &resp.Class, nil
}

// ============================================================================
// Assignments
// ============================================================================

func (c *Client) PublishAssignment(ctx context.Context, req PublishAssignmentRequest) (*shared.Assignment, error) {
	resp := new(AssignmentResponse)
	if err := c.invoke(ctx, MethodPublishAssignment, req, resp); err != nil {
		return nil, err
	}
	return &resp.Assignment, nil
}

func (c *Client) ListAssignments(ctx context.Context, classID string) ([]shared.Assignment, error) {
	resp := new(ListAssignmentsResponse)
	err := c.invoke(ctx, MethodListAssignments, ClassRequest{ClassID: classID}, resp)
	return resp.Assignments, err
}

func (c *Client) DeleteAssignment(ctx context.Context, assignmentID string) (int64, error) {
	resp := new(DeleteAssignmentResponse)
	err := c.invoke(ctx, MethodDeleteAssignment, AssignmentRequest{AssignmentID: assignmentID}, resp)
	return resp.Deleted, err
}

// ============================================================================
// Grades
// ============================================================================

func (c *Client) SaveDraft(ctx context.Context, recordID string, points float64) (*shared.GradeRecord, error) {
	return c.grade(ctx, MethodSaveDraft, GradeEntryRequest{RecordID: recordID, Points: points})
}

func (c *Client) CommitGrade(ctx context.Context, recordID string, points float64, feedback string) (*shared.GradeRecord, error) {
	return c.grade(ctx, MethodCommitGrade, GradeEntryRequest{RecordID: recordID, Points: points, Feedback: feedback})
}

func (c *Client) SubmitAssignment(ctx context.Context, assignmentID string) (*shared.GradeRecord, error) {
	return c.grade(ctx, MethodSubmitAssignment, AssignmentRequest{AssignmentID: assignmentID})
}

func (c *Client) ReturnGrades(ctx context.Context, assignmentID string, studentIDs ...string) ([]shared.GradeRecord, error) {
	resp := new(GradesResponse)
	err := c.invoke(ctx, MethodReturnGrades, ReturnGradesRequest{AssignmentID: assignmentID, StudentIDs: studentIDs}, resp)
	return resp.Grades, err
}

func (c *Client) ListGrades(ctx context.Context, req ListGradesRequest) ([]shared.GradeRecord, error) {
	resp := new(GradesResponse)
	err := c.invoke(ctx, MethodListGrades, req, resp)
	return resp.Grades, err
}

func (c *Client) ClassStatistics(ctx context.Context, classID, assignmentID string) (*StatisticsResponse, error) {
	resp := new(StatisticsResponse)
	err := c.invoke(ctx, MethodClassStatistics, StatisticsRequest{ClassID: classID, AssignmentID: assignmentID}, resp)
	return resp, err
}

func (c *Client) StudentSummary(ctx context.Context, classID, studentID string) (*StudentSummaryResponse, error) {
	resp := new(StudentSummaryResponse)
	err := c.invoke(ctx, MethodStudentSummary, StudentSummaryRequest{ClassID: classID, StudentID: studentID}, resp)
	return resp, err
}

func (c *Client) grade(ctx context.Context, method string, req interface{}) (*shared.GradeRecord, error) {
	resp := new(GradeResponse)
	if err := c.invoke(ctx, method, req, resp); err != nil {
		return nil, err
	}
	return &resp.Grade, nil
}

// ============================================================================
// Streaming
// ============================================================================

// StatisticsStream receives live statistics for one class
type StatisticsStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next statistics update
func (s *StatisticsStream) Recv() (*StatisticsResponse, error) {
	out := new(structpb.Struct)
	if err := s.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	stats := new(StatisticsResponse)
	if err := fromStruct(out, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// WatchStatistics opens a statistics stream; cancel ctx to end it
func (c *Client) WatchStatistics(ctx context.Context, classID string) (*StatisticsStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod(MethodWatchStatistics))
	if err != nil {
		return nil, err
	}
	in, err := toStruct(StatisticsRequest{ClassID: classID})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &StatisticsStream{stream: stream}, nil
}
