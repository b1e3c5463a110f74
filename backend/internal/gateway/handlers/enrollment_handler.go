package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"classroom/backend/internal/gateway/util"
	"classroom/backend/internal/rpc"
	"classroom/backend/internal/shared"
)

// ClassHandler serves classes and their rosters
type ClassHandler struct {
	Client *rpc.Client
}

// RESTCreateClassRequest mirrors the JSON input for POST /classes
type RESTCreateClassRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Subject     string `json:"subject" validate:"max=120"`
	MaxStudents int    `json:"max_students" validate:"gte=0"`
	TeacherID   string `json:"teacher_id"`
}

// RESTJoinRequest mirrors the JSON input for POST /classes/join
type RESTJoinRequest struct {
	Code string `json:"code" validate:"required"`
}

// RESTAddStudentRequest mirrors the JSON input for POST /classes/{id}/students
type RESTAddStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// RESTRemoveStudentsRequest mirrors the JSON input for DELETE /classes/{id}/students
type RESTRemoveStudentsRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required"`
}

// CreateClass handles POST /classes
func (h *ClassHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTCreateClassRequest
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	class, err := h.Client.CreateClass(ctx, rpc.CreateClassRequest{
		Name:        reqBody.Name,
		Subject:     reqBody.Subject,
		MaxStudents: reqBody.MaxStudents,
		TeacherID:   reqBody.TeacherID,
	})
	writeClass(w, http.StatusCreated, class, err)
}

// ListClasses handles GET /classes
// Teachers see classes they own, students the classes they joined, admins all.
func (h *ClassHandler) ListClasses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	classes, err := h.Client.ListClasses(ctx)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"classes": classes,
		"count":   len(classes),
	})
}

// GetClass handles GET /classes/{id}
func (h *ClassHandler) GetClass(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	class, err := h.Client.GetClass(ctx, chi.URLParam(r, "id"))
	writeClass(w, http.StatusOK, class, err)
}

// JoinClass handles POST /classes/join
func (h *ClassHandler) JoinClass(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTJoinRequest
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	class, err := h.Client.JoinClass(ctx, reqBody.Code)
	writeClass(w, http.StatusOK, class, err)
}

// AddStudent handles POST /classes/{id}/students
func (h *ClassHandler) AddStudent(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTAddStudentRequest
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	class, err := h.Client.AddStudent(ctx, chi.URLParam(r, "id"), reqBody.StudentID)
	writeClass(w, http.StatusOK, class, err)
}

// RemoveStudents handles DELETE /classes/{id}/students
func (h *ClassHandler) RemoveStudents(w http.ResponseWriter, r *http.Request) {
	var reqBody RESTRemoveStudentsRequest
	if !util.DecodeJSON(w, r, &reqBody) {
		return
	}

	ctx, cancel := rpcContext(r)
	defer cancel()

	res, err := h.Client.RemoveStudents(ctx, chi.URLParam(r, "id"), reqBody.StudentIDs...)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"class":   res.Class,
		"removed": res.Removed,
	})
}

// ArchiveClass handles POST /classes/{id}/archive
func (h *ClassHandler) ArchiveClass(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	class, err := h.Client.ArchiveClass(ctx, chi.URLParam(r, "id"))
	writeClass(w, http.StatusOK, class, err)
}

// RestoreClass handles POST /classes/{id}/restore
func (h *ClassHandler) RestoreClass(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	class, err := h.Client.RestoreClass(ctx, chi.URLParam(r, "id"))
	writeClass(w, http.StatusOK, class, err)
}

// RegenerateCode handles POST /classes/{id}/code
func (h *ClassHandler) RegenerateCode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := rpcContext(r)
	defer cancel()

	class, err := h.Client.RegenerateCode(ctx, chi.URLParam(r, "id"))
	writeClass(w, http.StatusOK, class, err)
}

func writeClass(w http.ResponseWriter, status int, class *shared.ClassModel, err error) {
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, status, map[string]interface{}{
		"success": true,
		"class":   class,
	})
}
