package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/promopulse/coupon-service/internal/domain"
	"github.com/promopulse/coupon-service/internal/usecase"
	"github.com/rs/zerolog"
)

type CreateCouponRequest struct {
	Code        string `json:"code"`
	CountryCode string `json:"country_code"`
	MaxUsage    int    `json:"max_usage"`
}

type UseCouponRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

type TaskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type Handler struct {
	gateway usecase.CouponGateway
	logger  zerolog.Logger
}

func NewHandler(gateway usecase.CouponGateway, logger zerolog.Logger) *Handler {
	return &Handler{gateway: gateway, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.CreateCoupon)
	r.Post("/use", h.UseCoupon)
	r.Get("/status/{taskID}", h.CreateTaskStatus)
	r.Get("/use/status/{taskID}", h.UseTaskStatus)
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "invalid request body"})
		return
	}

	if fieldErrs := domain.ValidateCreate(req.Code, req.CountryCode, req.MaxUsage); len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	result, err := h.gateway.SubmitCreate(r.Context(), req.Code, req.CountryCode, req.MaxUsage)
	if err != nil {
		h.logger.Error().Err(err).Str("code", req.Code).Msg("create coupon request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: "failed to process request"})
		return
	}

	writeJSON(w, createHTTPStatus(result.Status), taskResponse(result.TaskID, string(result.Status), result.Message))
}

func (h *Handler) UseCoupon(w http.ResponseWriter, r *http.Request) {
	var req UseCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "invalid request body"})
		return
	}

	if fieldErrs := domain.ValidateUse(req.Code, req.UserID); len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	result, err := h.gateway.SubmitUse(r.Context(), req.Code, req.UserID, clientIP(r))
	if err != nil {
		h.logger.Error().Err(err).Str("code", req.Code).Str("user_id", req.UserID).Msg("use coupon request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: "failed to process request"})
		return
	}

	writeJSON(w, useHTTPStatus(result.Status), taskResponse(result.TaskID, string(result.Status), result.Message))
}

func (h *Handler) CreateTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "invalid task id"})
		return
	}

	result, err := h.gateway.CreateTaskStatus(r.Context(), taskID)
	if err != nil {
		h.writeTaskError(w, taskID, err)
		return
	}

	writeJSON(w, createHTTPStatus(result.Status), taskResponse(result.TaskID, string(result.Status), result.Message))
}

func (h *Handler) UseTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: "invalid task id"})
		return
	}

	result, err := h.gateway.UseTaskStatus(r.Context(), taskID)
	if err != nil {
		h.writeTaskError(w, taskID, err)
		return
	}

	writeJSON(w, useHTTPStatus(result.Status), taskResponse(result.TaskID, string(result.Status), result.Message))
}

func (h *Handler) writeTaskError(w http.ResponseWriter, taskID uuid.UUID, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "Task not found",
			Message: "Task with ID " + taskID.String() + " not found",
		})
	case errors.Is(err, domain.ErrTaskTimeout):
		writeJSON(w, http.StatusRequestTimeout, ErrorResponse{
			Error:   "Task timeout",
			Message: "Task with ID " + taskID.String() + " timed out",
		})
	default:
		h.logger.Error().Err(err).Str("task_id", taskID.String()).Msg("task status lookup failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Message: "failed to process request"})
	}
}

func createHTTPStatus(status domain.CreateStatus) int {
	switch status {
	case domain.CreateCreated:
		return http.StatusCreated
	case domain.CreateAlreadyExists:
		return http.StatusConflict
	case domain.CreateFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusAccepted
	}
}

func useHTTPStatus(status domain.UseStatus) int {
	switch status {
	case domain.UseSuccess:
		return http.StatusOK
	case domain.UseLimitReached, domain.UseAlreadyUsed, domain.UseCountryNotSupported, domain.UseCountryError:
		return http.StatusBadRequest
	case domain.UseNotExists:
		return http.StatusNotFound
	case domain.UseFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusAccepted
	}
}

func taskResponse(taskID uuid.UUID, status, message string) TaskResponse {
	return TaskResponse{TaskID: taskID.String(), Status: status, Message: message}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP resolves the caller address, honoring the usual proxy headers.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
