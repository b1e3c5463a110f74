package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"classroom/backend/internal/gateway/util"
	"classroom/backend/internal/rpc"
	"classroom/backend/internal/shared"
)

// GradeHandler serves assignments, grade records and statistics
type GradeHandler struct {
	Client *rpc.Client
}

// RESTPublishAssignmentRequest mirrors the JSON input for POST /classes/{id}/assignments
type RESTPublishAssignmentRequest struct {
	Title          string     `json:"title" validate:"required,max=200"`
	PointsPossible float64    `json:"points_possible" validate:"gt=0"`
	DueAt          *time.Time `json:"due_at"`
}

// RESTGradeEntry mirrors the JSON input for PUT /grades/{id} and /grades/{id}/draft
type RESTGradeEntry struct {
	Points   *float64 `json:"points" validate:"required,gte=0"`
	Feedback string   `json:"feedback" validate:"max=2000"`
}

// RESTReturnRequest mirrors the JSON input for POST /assignments/{id}/return.
// An empty list returns every graded record of the assignment.
type RESTReturnRequest struct {
	StudentIDs []string `json:"student_ids" validate:"dive,required"`
}

// ============================================================================
// Assignments
// ============================================================================

// PublishAssignment handles POST /classes/{id}/assignments
func (h *GradeHandler) PublishAssignment(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTPublishAssignmentRequest
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}
	req := rpc.PublishAssignmentRequest{
		ClassID:        chi.URLParam(r, "id"),
		Title:          reqBody.Title,
		PointsPossible: reqBody.PointsPossible,
	}
	if reqBody.DueAt != nil {
		req.DueAt = *reqBody.DueAt
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	a, err := h.Client.PublishAssignment(ctx, req)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"assignment": a,
	})
}

// ListAssignments handles GET /classes/{id}/assignments
func (h *GradeHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	list, err := h.Client.ListAssignments(ctx, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"assignments": list,
	})
}

// DeleteAssignment handles DELETE /assignments/{id}
func (h *GradeHandler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	deleted, err := h.Client.DeleteAssignment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"deleted_records": deleted,
	})
}

// Submit handles POST /assignments/{id}/submit (student)
func (h *GradeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	rec, err := h.Client.SubmitAssignment(ctx, chi.URLParam(r, "id"))
	writeGrade(w, rec, err)
}

// ReturnGrades handles POST /assignments/{id}/return (teacher)
func (h *GradeHandler) ReturnGrades(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTReturnRequest
	if r.ContentLength != 0 && !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	grades, err := h.Client.ReturnGrades(ctx, chi.URLParam(r, "id"), reqBody.StudentIDs...)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"returned": len(grades),
		"grades":   grades,
	})
}

// ============================================================================
// Grade Records
// ============================================================================

// SaveDraft handles PUT /grades/{id}/draft
func (h *GradeHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTGradeEntry
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	rec, err := h.Client.SaveDraft(ctx, chi.URLParam(r, "id"), *reqBody.Points)
	writeGrade(w, rec, err)
}

// CommitGrade handles PUT /grades/{id}
func (h *GradeHandler) CommitGrade(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTGradeEntry
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	rec, err := h.Client.CommitGrade(ctx, chi.URLParam(r, "id"), *reqBody.Points, reqBody.Feedback)
	writeGrade(w, rec, err)
}

// ListGrades handles GET /classes/{id}/grades
// Query Params: assignment_id, student_id (both optional)
func (h *GradeHandler) ListGrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ctx, cancel := rpcContext(r)
	defer cancel()

	grades, err := h.Client.ListGrades(ctx, rpc.ListGradesRequest{
		ClassID:      chi.URLParam(r, "id"),
		AssignmentID: q.Get("assignment_id"),
		StudentID:    q.Get("student_id"),
	})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"grades":  grades,
	})
}

// Statistics handles GET /classes/{id}/statistics
// Query Params: assignment_id (optional)
func (h *GradeHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	stats, err := h.Client.ClassStatistics(ctx, chi.URLParam(r, "id"), r.URL.Query().Get("assignment_id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"statistics": stats,
	})
}

// StudentSummary handles GET /classes/{id}/summary
// Query Params: student_id (teachers; students always get their own)
func (h *GradeHandler) StudentSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	summary, err := h.Client.StudentSummary(ctx, chi.URLParam(r, "id"), r.URL.Query().Get("student_id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"summary": summary,
	})
}

func writeGrade(w http.ResponseWriter, rec *shared.GradeRecord, err error) {
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"grade":   rec,
	})
}
