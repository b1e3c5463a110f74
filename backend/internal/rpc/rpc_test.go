package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"classroom/backend/internal/directory"
	"classroom/backend/internal/enrollment"
	"classroom/backend/internal/gradebook"
	"classroom/backend/internal/metrics"
	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
	"classroom/backend/internal/store/memory"
)

type testEnv struct {
	client    *Client
	directory *directory.JWTDirectory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	records := store.NewRecords(memory.New())
	dir := directory.NewJWTDirectory(records, shared.SecurityConfig{
		JWTSecret:          "rpc-test-secret",
		JWTExpirationHours: 1,
		BCryptCost:         bcrypt.MinCost,
	})
	server := NewServer(
		enrollment.NewService(records, nil, nil),
		gradebook.NewService(records, nil),
		dir,
	)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.UnaryInterceptor(metrics.UnaryServerInterceptor()))
	server.Register(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testEnv{client: NewClient(conn), directory: dir}
}

// signIn creates an account directly in the directory and logs in over RPC
func (e *testEnv) signIn(t *testing.T, email, role string) context.Context {
	t.Helper()
	ctx := context.Background()
	if _, err := e.directory.CreateUser(ctx, email, "secret123", email, role); err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	res, err := e.client.Login(ctx, email, "secret123")
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return WithToken(ctx, res.Token)
}

func wantCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if got := status.Code(err); got != want {
		t.Errorf("code = %v, want %v (err: %v)", got, want, err)
	}
}

func TestClassroomWorkflow(t *testing.T) {
	env := newTestEnv(t)
	teacherCtx := env.signIn(t, "teacher@school.test", shared.RoleTeacher)

	class, err := env.client.CreateClass(teacherCtx, CreateClassRequest{Name: "Biology", MaxStudents: 30})
	if err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	if !enrollment.ValidCode(class.EnrollmentCode) {
		t.Fatalf("enrollment code %q is malformed", class.EnrollmentCode)
	}

	// Self-registration defaults to student
	if _, err := env.client.Register(context.Background(), RegisterRequest{
		Email: "pupil@school.test", Password: "secret123", Name: "Pupil",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	login, err := env.client.Login(context.Background(), "pupil@school.test", "secret123")
	if err != nil {
		t.Fatalf("student Login: %v", err)
	}
	studentCtx := WithToken(context.Background(), login.Token)

	joined, err := env.client.JoinClass(studentCtx, class.EnrollmentCode)
	if err != nil {
		t.Fatalf("JoinClass: %v", err)
	}
	if len(joined.StudentIDs) != 1 || joined.StudentIDs[0] != login.User.ID {
		t.Errorf("roster after join = %v", joined.StudentIDs)
	}

	a, err := env.client.PublishAssignment(teacherCtx, PublishAssignmentRequest{
		ClassID: class.ID, Title: "Lab report", PointsPossible: 40,
	})
	if err != nil {
		t.Fatalf("PublishAssignment: %v", err)
	}
	recordID := shared.GradeRecordID(a.ID, login.User.ID)

	graded, err := env.client.CommitGrade(teacherCtx, recordID, 34, "tidy work")
	if err != nil {
		t.Fatalf("CommitGrade: %v", err)
	}
	if graded.Percentage != 85 || graded.LetterGrade != "B" || graded.Status != shared.GradeGraded {
		t.Errorf("graded = %+v", graded)
	}

	grades, err := env.client.ListGrades(studentCtx, ListGradesRequest{ClassID: class.ID})
	if err != nil {
		t.Fatalf("student ListGrades: %v", err)
	}
	if len(grades) != 1 || grades[0].PointsEarned != 0 {
		t.Errorf("unreleased grade visible to student: %+v", grades)
	}

	if _, err := env.client.ReturnGrades(teacherCtx, a.ID); err != nil {
		t.Fatalf("ReturnGrades: %v", err)
	}
	grades, _ = env.client.ListGrades(studentCtx, ListGradesRequest{ClassID: class.ID})
	if len(grades) != 1 || grades[0].PointsEarned != 34 || grades[0].Feedback != "tidy work" {
		t.Errorf("returned grade = %+v", grades)
	}

	stats, err := env.client.ClassStatistics(teacherCtx, class.ID, "")
	if err != nil {
		t.Fatalf("ClassStatistics: %v", err)
	}
	if stats.Average != 85 || stats.TotalGrades != 1 || stats.StatusCounts[shared.GradeReturned] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	summary, err := env.client.StudentSummary(studentCtx, class.ID, "")
	if err != nil {
		t.Fatalf("StudentSummary: %v", err)
	}
	if summary.StudentID != login.User.ID || summary.Statistics.Average != 85 {
		t.Errorf("summary = %+v", summary)
	}

	me, err := env.client.WhoAmI(studentCtx)
	if err != nil || me.ID != login.User.ID || !me.IsStudent() {
		t.Errorf("WhoAmI = %+v, %v", me, err)
	}
}

func TestErrorCodes(t *testing.T) {
	env := newTestEnv(t)
	teacherCtx := env.signIn(t, "t@school.test", shared.RoleTeacher)
	studentCtx := env.signIn(t, "s@school.test", shared.RoleStudent)

	class, err := env.client.CreateClass(teacherCtx, CreateClassRequest{Name: "Chemistry", MaxStudents: 1})
	if err != nil {
		t.Fatalf("CreateClass: %v", err)
	}
	if _, err := env.client.JoinClass(studentCtx, class.EnrollmentCode); err != nil {
		t.Fatalf("JoinClass: %v", err)
	}
	a, _ := env.client.PublishAssignment(teacherCtx, PublishAssignmentRequest{ClassID: class.ID, Title: "Quiz", PointsPossible: 10})
	lateCtx := env.signIn(t, "late@school.test", shared.RoleStudent)

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"no token", func() error { _, err := env.client.ListClasses(context.Background()); return err }, codes.Unauthenticated},
		{"garbage token", func() error {
			_, err := env.client.ListClasses(WithToken(context.Background(), "not-a-jwt"))
			return err
		}, codes.Unauthenticated},
		{"bad credentials", func() error { _, err := env.client.Login(context.Background(), "t@school.test", "nope"); return err }, codes.Unauthenticated},
		{"student creates class", func() error {
			_, err := env.client.CreateClass(studentCtx, CreateClassRequest{Name: "Mine"})
			return err
		}, codes.PermissionDenied},
		{"unknown code", func() error { _, err := env.client.JoinClass(studentCtx, "ZZZZZZ"); return err }, codes.NotFound},
		{"malformed code", func() error { _, err := env.client.JoinClass(studentCtx, "abc"); return err }, codes.NotFound},
		{"already enrolled", func() error { _, err := env.client.JoinClass(studentCtx, class.EnrollmentCode); return err }, codes.AlreadyExists},
		{"class full", func() error { _, err := env.client.JoinClass(lateCtx, class.EnrollmentCode); return err }, codes.ResourceExhausted},
		{"unknown record", func() error {
			_, err := env.client.CommitGrade(teacherCtx, shared.GradeRecordID(a.ID, "nobody"), 5, "")
			return err
		}, codes.NotFound},
		{"over points possible", func() error {
			me, _ := env.client.WhoAmI(studentCtx)
			_, err := env.client.CommitGrade(teacherCtx, shared.GradeRecordID(a.ID, me.ID), 11, "")
			return err
		}, codes.InvalidArgument},
		{"teacher submits", func() error {
			me, _ := env.client.WhoAmI(studentCtx)
			if _, err := env.client.SaveDraft(teacherCtx, shared.GradeRecordID(a.ID, me.ID), 4); err != nil {
				return err
			}
			_, err := env.client.SubmitAssignment(teacherCtx, a.ID)
			return err
		}, codes.PermissionDenied},
		{"teacher registers teacher", func() error {
			_, err := env.client.Register(teacherCtx, RegisterRequest{Email: "x@school.test", Password: "secret123", Role: shared.RoleTeacher})
			return err
		}, codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, tt.call(), tt.want)
		})
	}

	if _, err := env.client.ArchiveClass(teacherCtx, class.ID); err != nil {
		t.Fatalf("ArchiveClass: %v", err)
	}
	_, err = env.client.PublishAssignment(teacherCtx, PublishAssignmentRequest{ClassID: class.ID, Title: "Late", PointsPossible: 5})
	wantCode(t, err, codes.FailedPrecondition)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.signIn(t, "t@school.test", shared.RoleTeacher)

	if _, err := env.client.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	_, err := env.client.ListClasses(ctx)
	wantCode(t, err, codes.Unauthenticated)
}

func TestWatchStatisticsStream(t *testing.T) {
	env := newTestEnv(t)
	teacherCtx := env.signIn(t, "t@school.test", shared.RoleTeacher)
	studentCtx := env.signIn(t, "s@school.test", shared.RoleStudent)

	class, _ := env.client.CreateClass(teacherCtx, CreateClassRequest{Name: "Physics"})
	env.client.JoinClass(studentCtx, class.EnrollmentCode)
	a, _ := env.client.PublishAssignment(teacherCtx, PublishAssignmentRequest{ClassID: class.ID, Title: "Forces", PointsPossible: 20})
	me, _ := env.client.WhoAmI(studentCtx)

	ctx, cancel := context.WithTimeout(teacherCtx, 5*time.Second)
	defer cancel()
	stream, err := env.client.WatchStatistics(ctx, class.ID)
	if err != nil {
		t.Fatalf("WatchStatistics: %v", err)
	}
	first, err := stream.Recv()
	if err != nil {
		t.Fatalf("first Recv: %v", err)
	}
	if first.TotalRecords != 1 || first.TotalGrades != 0 {
		t.Errorf("initial stats = %+v", first)
	}

	if _, err := env.client.CommitGrade(teacherCtx, shared.GradeRecordID(a.ID, me.ID), 15, ""); err != nil {
		t.Fatalf("CommitGrade: %v", err)
	}
	for {
		stats, err := stream.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if stats.TotalGrades == 1 {
			if stats.Average != 75 {
				t.Errorf("average = %v, want 75", stats.Average)
			}
			break
		}
	}

	denied, err := env.client.WatchStatistics(studentCtx, class.ID)
	if err == nil {
		_, err = denied.Recv()
	}
	wantCode(t, err, codes.PermissionDenied)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("wrap: %w", shared.ErrInvalidGradeValue), codes.InvalidArgument},
		{shared.ErrInvalidCode, codes.NotFound},
		{shared.ErrInvalidTransition, codes.FailedPrecondition},
		{shared.ErrCodeGenerationExhausted, codes.Unavailable},
		{store.ErrConflict, codes.Aborted},
		{store.MarkTransient(errors.New("socket closed")), codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.Unimplemented, "nope"), codes.Unimplemented},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := status.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}
