package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Yulya9904/cars-insurance/internal/api/middleware"
	"github.com/Yulya9904/cars-insurance/internal/application/services"
	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

// maxUploadSize bounds an attachment upload
const maxUploadSize = 10 << 20

// anonymousActor is recorded when a request carries no actor header
const anonymousActor = "anonymous"

// InsuranceHandler handles insurance-related requests
type InsuranceHandler struct {
	service *services.InsuranceService
}

// NewInsuranceHandler creates a new insurance handler
func NewInsuranceHandler(service *services.InsuranceService) *InsuranceHandler {
	return &InsuranceHandler{service: service}
}

// insuranceView is the JSON shape of a policy
type insuranceView struct {
	ID               int64              `json:"id"`
	VehicleID        int64              `json:"vehicle_id"`
	VehicleModel     string             `json:"vehicle_model"`
	StateNumber      string             `json:"state_number"`
	DistrictName     string             `json:"district_name"`
	InsurerName      string             `json:"insurer_name"`
	StartDate        string             `json:"start_date"`
	EndDate          string             `json:"end_date"`
	Cost             string             `json:"cost"`
	CreatedAt        time.Time          `json:"created_at"`
	Freshness        entities.Freshness `json:"freshness"`
	AttachmentFolder string             `json:"attachment_folder,omitempty"`
	AttachmentNames  []string           `json:"attachment_names"`
}

func newInsuranceView(ins *entities.Insurance, today time.Time) insuranceView {
	names := ins.AttachmentNames
	if names == nil {
		names = []string{}
	}
	return insuranceView{
		ID:               ins.ID,
		VehicleID:        ins.VehicleID,
		VehicleModel:     ins.VehicleModel,
		StateNumber:      ins.StateNumber,
		DistrictName:     ins.DistrictName,
		InsurerName:      ins.InsurerName,
		StartDate:        entities.FormatDate(ins.StartDate),
		EndDate:          entities.FormatDate(ins.EndDate),
		Cost:             ins.Cost.StringFixed(2),
		CreatedAt:        ins.CreatedAt,
		Freshness:        ins.Classify(today),
		AttachmentFolder: ins.AttachmentFolder,
		AttachmentNames:  names,
	}
}

// ListInsurances handles GET /api/insurances, optionally filtered by ?car_id=
func (h *InsuranceHandler) ListInsurances(w http.ResponseWriter, r *http.Request) {
	var vehicleID *int64
	if raw := r.URL.Query().Get("car_id"); raw != "" {
		id, ok := parseID(w, raw, "car_id")
		if !ok {
			return
		}
		vehicleID = &id
	}
	h.list(w, r, vehicleID)
}

// ListVehicleInsurances handles GET /api/vehicles/{car_id}/insurances
func (h *InsuranceHandler) ListVehicleInsurances(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := parseID(w, r.PathValue("car_id"), "car_id")
	if !ok {
		return
	}
	h.list(w, r, &vehicleID)
}

func (h *InsuranceHandler) list(w http.ResponseWriter, r *http.Request, vehicleID *int64) {
	insurances, err := h.service.ListInsurances(r.Context(), vehicleID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	today := h.service.Today()
	views := make([]insuranceView, 0, len(insurances))
	for _, ins := range insurances {
		views = append(views, newInsuranceView(ins, today))
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"insurances": views,
		"count":      len(views),
	})
}

// GetActiveInsurance handles GET /api/vehicles/{car_id}/insurances/active
func (h *InsuranceHandler) GetActiveInsurance(w http.ResponseWriter, r *http.Request) {
	vehicleID, ok := parseID(w, r.PathValue("car_id"), "car_id")
	if !ok {
		return
	}

	ins, err := h.service.GetActiveInsurance(r.Context(), vehicleID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	var view *insuranceView
	if ins != nil {
		v := newInsuranceView(ins, h.service.Today())
		view = &v
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"insurance": view})
}

// GetInsurance handles GET /api/insurances/{id}
func (h *InsuranceHandler) GetInsurance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("id"), "id")
	if !ok {
		return
	}

	ins, err := h.service.GetInsurance(r.Context(), id)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newInsuranceView(ins, h.service.Today()))
}

// VehicleOptions handles GET /api/vehicles/options
func (h *InsuranceHandler) VehicleOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.VehicleOptions(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"vehicles": options,
		"count":    len(options),
	})
}

// CreateInsurance handles POST /api/insurances
func (h *InsuranceHandler) CreateInsurance(w http.ResponseWriter, r *http.Request) {
	form, ok := decodeForm(w, r)
	if !ok {
		return
	}
	result := h.service.AddInsurance(r.Context(), actorOf(r), form)
	respondWithResult(w, r, http.StatusCreated, result)
}

// UpdateInsurance handles PUT /api/insurances/{id}
func (h *InsuranceHandler) UpdateInsurance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("id"), "id")
	if !ok {
		return
	}
	form, ok := decodeForm(w, r)
	if !ok {
		return
	}
	result := h.service.EditInsurance(r.Context(), actorOf(r), id, form)
	respondWithResult(w, r, http.StatusOK, result)
}

// DeleteInsurance handles DELETE /api/insurances/{id}
func (h *InsuranceHandler) DeleteInsurance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("id"), "id")
	if !ok {
		return
	}
	result := h.service.DeleteInsurance(r.Context(), actorOf(r), id)
	respondWithResult(w, r, http.StatusOK, result)
}

// UploadAttachment handles POST /api/insurances/{id}/attachments with a
// multipart "file" field
func (h *InsuranceHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("id"), "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "attachment is too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	name, err := h.service.AddAttachment(r.Context(), actorOf(r), id, header.Filename, file)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"name": name})
}

// DeleteAttachment handles DELETE /api/insurances/{id}/attachments/{name}
func (h *InsuranceHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r.PathValue("id"), "id")
	if !ok {
		return
	}

	if err := h.service.RemoveAttachment(r.Context(), actorOf(r), id, r.PathValue("name")); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actorOf(r *http.Request) string {
	if actor := r.Header.Get(middleware.ActorHeader); actor != "" {
		return actor
	}
	return anonymousActor
}

func parseID(w http.ResponseWriter, raw, name string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeForm(w http.ResponseWriter, r *http.Request) (entities.InsuranceForm, bool) {
	var form entities.InsuranceForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return form, false
	}
	return form, true
}

func respondWithResult(w http.ResponseWriter, r *http.Request, status int, result services.MutationResult) {
	if !result.OK() {
		respondWithAppError(w, r, result.Err)
		return
	}
	respondWithJSON(w, status, map[string]int64{"id": result.ID})
}

// statusFor maps an error type to its HTTP status
func statusFor(t apperrors.ErrorType) int {
	switch t {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Msg("unhandled error")
		respondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := statusFor(appErr.Type)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().Err(appErr).Msg("request failed")
	}

	body := map[string]string{"error": appErr.Message}
	if appErr.Field != "" {
		body["field"] = appErr.Field
	}
	respondWithJSON(w, status, body)
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.GetLogger().Warn().Err(err).Msg("failed to write response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
