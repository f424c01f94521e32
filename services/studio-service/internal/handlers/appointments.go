package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inkform/inkform/libs/auth"
	"github.com/inkform/inkform/services/studio-service/internal/intake"
	"github.com/inkform/inkform/services/studio-service/internal/lifecycle"
	"github.com/inkform/inkform/services/studio-service/internal/model"
	"github.com/inkform/inkform/services/studio-service/internal/sideeffects"
	"github.com/inkform/inkform/services/studio-service/internal/storage"
	"github.com/shopspring/decimal"
)

type Lifecycle interface {
	Book(ctx context.Context, studioID string, req lifecycle.BookRequest) (lifecycle.BookResult, error)
	CheckIn(ctx context.Context, studioID, id string, req lifecycle.CheckInRequest) error
	MarkPaid(ctx context.Context, studioID, id string) error
	MarkDepositPaid(ctx context.Context, studioID, id string) error
	Cancel(ctx context.Context, studioID, id string, notifyClient bool) (lifecycle.CancelResult, error)
	SendReminder(ctx context.Context, studioID, id string) (sideeffects.Report, error)
	Get(ctx context.Context, studioID, id string) (model.Appointment, error)
	List(ctx context.Context, studioID string, f storage.ListFilter) ([]model.Appointment, error)
	Intake(ctx context.Context, studioID, id string) (model.IntakeForm, error)
}

type AppointmentHandler struct {
	lc     Lifecycle
	logger *slog.Logger
}

func NewAppointmentHandler(lc Lifecycle, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{lc: lc, logger: logger}
}

// Register mounts the studio routes behind requireStudio, which must put
// auth claims on the request context.
func (h *AppointmentHandler) Register(mux *http.ServeMux, requireStudio func(http.Handler) http.Handler) {
	routes := map[string]http.HandlerFunc{
		"POST /api/v1/appointments":                   h.Book,
		"GET /api/v1/appointments":                    h.List,
		"GET /api/v1/appointments/{id}":               h.Get,
		"POST /api/v1/appointments/{id}/check-in":     h.CheckIn,
		"GET /api/v1/appointments/{id}/intake":        h.Intake,
		"POST /api/v1/appointments/{id}/mark-paid":    h.MarkPaid,
		"POST /api/v1/appointments/{id}/deposit-paid": h.MarkDepositPaid,
		"POST /api/v1/appointments/{id}/cancel":       h.Cancel,
		"POST /api/v1/appointments/{id}/remind":       h.Remind,
	}
	for pattern, fn := range routes {
		mux.Handle(pattern, requireStudio(fn))
	}
}

func studioID(r *http.Request) (string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return "", false
	}
	return claims.StudioID, claims.StudioID != ""
}

type bookRequest struct {
	ClientName      string              `json:"client_name"`
	ClientEmail     string              `json:"client_email"`
	AppointmentDate string              `json:"appointment_date"`
	Description     string              `json:"description"`
	Price           decimal.NullDecimal `json:"price"`
	Deposit         decimal.NullDecimal `json:"deposit"`
	DepositPaid     bool                `json:"deposit_paid"`
	AddToCalendar   bool                `json:"add_to_calendar"`
	SendEmail       bool                `json:"send_email"`
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	sid, ok := studioID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	var when time.Time
	if strings.TrimSpace(req.AppointmentDate) != "" {
		t, err := time.Parse(time.RFC3339, req.AppointmentDate)
		if err != nil {
			writeError(w, r, h.logger, &lifecycle.ValidationError{Code: lifecycle.InvalidDate, Field: "appointment_date"})
			return
		}
		when = t
	}

	res, err := h.lc.Book(r.Context(), sid, lifecycle.BookRequest{
		ClientName:      req.ClientName,
		ClientEmail:     req.ClientEmail,
		AppointmentDate: when,
		Description:     req.Description,
		Price:           req.Price,
		Deposit:         req.Deposit,
		DepositPaid:     req.DepositPaid,
		AddToCalendar:   req.AddToCalendar,
		SendEmail:       req.SendEmail,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	sid, ok := studioID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	var f storage.ListFilter
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid "+key, http.StatusBadRequest)
			return
		}
		*dst = t
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		f.Status = model.Status(raw)
		if !f.Status.Valid() {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	appts, err := h.lc.List(r.Context(), sid, f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		items = append(items, toView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	sid, ok := studioID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	appt, err := h.lc.Get(r.Context(), sid, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(appt))
}

type checkInRequest struct {
	Answers               map[string]*intake.Answer `json:"answers"`
	Details               map[string]string         `json:"details"`
	Place                 string                    `json:"place"`
	ClientSignature       string                    `json:"client_signature"`
	PractitionerSignature string                    `json:"practitioner_signature"`
}

func (h *AppointmentHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	sid, ok := studioID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	raw := intake.RawAnswers{
		Answers: make(map[model.Question]*intake.Answer, len(req.Answers)),
		Details: make(map[model.Question]string, len(req.Details)),
	}
	for k, v := range req.Answers {
		raw.Answers[model.Question(k)] = v
	}
	for k, v := range req.Details {
		raw.Details[model.Question(k)] = v
	}

	id := r.PathValue("id")
	err := h.lc.CheckIn(r.Context(), sid, id, lifecycle.CheckInRequest{
		Answers:               raw,
		ClientSignature:       req.ClientSignature,
		PractitionerSignature: req.PractitionerSignature,
		Place:                 req.Place,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment_id": id, "status": model.StatusCheckedIn})
}

func (h *AppointmentHandler) Intake(w http.ResponseWriter, r *http.Request) {
	sid, ok := studioID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	form, err := h.lc.Intake(r.Context(), sid, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toIntakeView(form))
}

func (h *AppointmentHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.payment(w, r, h.lc.MarkPaid, model.PaymentFullyPaid)
}

func (h *AppointmentHandler) MarkDepositPaid(w http.ResponseWriter, r *http.Request) {
	h.payment(w, r, h.lc.MarkDepositPaid, model.PaymentDepositPaid)
}

func (h *AppointmentHandler) payment(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, string) error, status model.PaymentStatus) {
	sid, ok := studioID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if err := apply(r.Context(), sid, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment_id": id, "payment_status": status})
}

type cancelRequest struct {
	NotifyClient bool `json:"notify_client"`
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sid, ok := studioID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	res, err := h.lc.Cancel(r.Context(), sid, r.PathValue("id"), req.NotifyClient)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *AppointmentHandler) Remind(w http.ResponseWriter, r *http.Request) {
	sid, ok := studioID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	report, err := h.lc.SendReminder(r.Context(), sid, r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"side_effects": report})
}
