package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/chepyr/go-task-share/internal/tasks"
)

type taskResponse struct {
	*models.Task
	Status models.TaskStatus `json:"status"`
}

func sendTaskJSON(w http.ResponseWriter, status int, task *models.Task) {
	sendJSON(w, status, taskResponse{Task: task, Status: task.Status()})
}

func sendTasksJSON(w http.ResponseWriter, list []*models.Task) {
	body := make([]taskResponse, 0, len(list))
	for _, task := range list {
		body = append(body, taskResponse{Task: task, Status: task.Status()})
	}
	sendJSON(w, http.StatusOK, body)
}

// decodeBody rejects non-JSON content types and bodies over 1MB. A
// *models.ValidationError raised while decoding is sent as such.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !isJSONContentType(r) {
		sendError(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var validation *models.ValidationError
		if errors.As(err, &validation) {
			sendDomainError(w, err)
			return false
		}
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// decodePriority accepts a number, "none" or null. Range checks are left to
// the service.
func decodePriority(raw json.RawMessage) (*int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "none") {
			return nil, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, &models.ValidationError{Field: "priority", Reason: `must be a number or "none"`}
		}
		return &n, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, &models.ValidationError{Field: "priority", Reason: `must be an integer or "none"`}
	}
	return &n, nil
}

/*
routes:
- GET /tasks - tasks owned by or shared with the caller
- POST /tasks - create a task
*/
func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	list, err := h.Tasks.ListTasks(r.Context(), IdentityFromContext(r.Context()))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendTasksJSON(w, list)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Deadline    *models.Date    `json:"deadline"`
		Priority    json.RawMessage `json:"priority"`
		Category    string          `json:"category"`
		Reminder    bool            `json:"reminder"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	priority, err := decodePriority(input.Priority)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	task, err := h.Tasks.CreateTask(r.Context(), IdentityFromContext(r.Context()), tasks.CreateInput{
		Title:       input.Title,
		Description: input.Description,
		Deadline:    input.Deadline,
		Priority:    priority,
		Category:    input.Category,
		Reminder:    input.Reminder,
	})
	if err != nil {
		sendDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/tasks/"+url.PathEscape(task.Title))
	sendTaskJSON(w, http.StatusCreated, task)
}

/*
routes:
- GET /tasks/{title}
- PUT/PATCH /tasks/{title} - edit title, description, deadline, reminder
- DELETE /tasks/{title}
- POST /tasks/{title}/share, PUT /tasks/{title}/priority,
  PUT /tasks/{title}/category, POST /tasks/{title}/complete
*/
func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Tasks.FindTask(r.Context(), IdentityFromContext(r.Context()), r.PathValue("title"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendTaskJSON(w, http.StatusOK, task)
}

func (h *Handler) editTask(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Title       *string         `json:"title"`
		Description *string         `json:"description"`
		Deadline    json.RawMessage `json:"deadline"`
		Reminder    *bool           `json:"reminder"`
	}
	if !decodeBody(w, r, &input) {
		return
	}

	edit := tasks.EditInput{
		Title:       input.Title,
		Description: input.Description,
		Reminder:    input.Reminder,
	}
	switch raw := bytes.TrimSpace(input.Deadline); {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")):
		edit.ClearDeadline = true
	default:
		var deadline models.Date
		if err := json.Unmarshal(raw, &deadline); err != nil {
			sendDomainError(w, err)
			return
		}
		edit.Deadline = &deadline
	}

	task, err := h.Tasks.EditTask(r.Context(), IdentityFromContext(r.Context()), r.PathValue("title"), edit)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendTaskJSON(w, http.StatusOK, task)
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	err := h.Tasks.DeleteTask(r.Context(), IdentityFromContext(r.Context()), r.PathValue("title"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) shareTask(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	task, err := h.Tasks.ShareTask(r.Context(), IdentityFromContext(r.Context()), r.PathValue("title"), input.Username)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendTaskJSON(w, http.StatusOK, task)
}

func (h *Handler) setPriority(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Priority json.RawMessage `json:"priority"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	// clearing takes an explicit null or "none"
	if len(bytes.TrimSpace(input.Priority)) == 0 {
		sendDomainError(w, &models.ValidationError{Op: tasks.OpSetPriority, Field: "priority", Reason: "is required"})
		return
	}
	level, err := decodePriority(input.Priority)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	task, err := h.Tasks.SetPriority(r.Context(), IdentityFromContext(r.Context()), r.PathValue("title"), level)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendTaskJSON(w, http.StatusOK, task)
}

func (h *Handler) categorize(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Category string `json:"category"`
	}
	if !decodeBody(w, r, &input) {
		return
	}
	task, err := h.Tasks.Categorize(r.Context(), IdentityFromContext(r.Context()), r.PathValue("title"), input.Category)
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendTaskJSON(w, http.StatusOK, task)
}

func (h *Handler) markComplete(w http.ResponseWriter, r *http.Request) {
	task, err := h.Tasks.MarkComplete(r.Context(), IdentityFromContext(r.Context()), r.PathValue("title"))
	if err != nil {
		sendDomainError(w, err)
		return
	}
	sendTaskJSON(w, http.StatusOK, task)
}
