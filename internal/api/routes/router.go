package routes

import (
	"net/http"

	"github.com/Yulya9904/cars-insurance/internal/api/handlers"
	"github.com/Yulya9904/cars-insurance/internal/api/middleware"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	insuranceHandler *handlers.InsuranceHandler
	healthHandler    *handlers.HealthHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	insuranceHandler *handlers.InsuranceHandler,
	healthHandler *handlers.HealthHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:              http.NewServeMux(),
		insuranceHandler: insuranceHandler,
		healthHandler:    healthHandler,
		allowedOrigins:   allowedOrigins,
		metrics:          metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Insurance endpoints
	r.mux.HandleFunc("GET /api/insurances", r.insuranceHandler.ListInsurances)
	r.mux.HandleFunc("POST /api/insurances", r.insuranceHandler.CreateInsurance)
	r.mux.HandleFunc("GET /api/insurances/{id}", r.insuranceHandler.GetInsurance)
	r.mux.HandleFunc("PUT /api/insurances/{id}", r.insuranceHandler.UpdateInsurance)
	r.mux.HandleFunc("DELETE /api/insurances/{id}", r.insuranceHandler.DeleteInsurance)

	// Attachment endpoints
	r.mux.HandleFunc("POST /api/insurances/{id}/attachments", r.insuranceHandler.UploadAttachment)
	r.mux.HandleFunc("DELETE /api/insurances/{id}/attachments/{name}", r.insuranceHandler.DeleteAttachment)

	// Vehicle endpoints
	r.mux.HandleFunc("GET /api/vehicles/options", r.insuranceHandler.VehicleOptions)
	r.mux.HandleFunc("GET /api/vehicles/{car_id}/insurances", r.insuranceHandler.ListVehicleInsurances)
	r.mux.HandleFunc("GET /api/vehicles/{car_id}/insurances/active", r.insuranceHandler.GetActiveInsurance)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)

	// CORS wraps everything so preflights never reach the mux
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
