package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/grooming-scheduler/internal/appointment"
	"github.com/hackgods/grooming-scheduler/internal/scheduling"
)

type CreateAppointmentRequest struct {
	PetID       string    `json:"pet_id"`
	GroomerID   string    `json:"groomer_id"`
	ServiceType string    `json:"service_type"`
	StartTime   time.Time `json:"start_time"`
}

// RescheduleAppointmentRequest leaves pet_id optional; omitted keeps the
// appointment's current pet.
type RescheduleAppointmentRequest struct {
	PetID       string    `json:"pet_id,omitempty"`
	GroomerID   string    `json:"groomer_id"`
	ServiceType string    `json:"service_type"`
	StartTime   time.Time `json:"start_time"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	PetID           uuid.UUID `json:"pet_id"`
	GroomerID       uuid.UUID `json:"groomer_id"`
	ServiceType     string    `json:"service_type"`
	DurationMinutes int       `json:"duration_minutes"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type OwnerAppointmentsResponse struct {
	Upcoming []AppointmentResponse `json:"upcoming"`
	Past     []AppointmentResponse `json:"past"`
}

type SlotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type GroomerResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty *string   `json:"specialty,omitempty"`
}

type ModifiableResponse struct {
	Modifiable bool `json:"modifiable"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		OwnerID:         a.OwnerID,
		PetID:           a.PetID,
		GroomerID:       a.GroomerID,
		ServiceType:     string(a.ServiceType),
		DurationMinutes: int(a.EndTime.Sub(a.StartTime) / time.Minute),
		StartTime:       a.StartTime.UTC(),
		EndTime:         a.EndTime.UTC(),
		Status:          string(a.Status),
		CreatedAt:       a.CreatedAt.UTC(),
	}
}

func toAppointmentResponses(in []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(in))
	for i, a := range in {
		out[i] = toAppointmentResponse(a)
	}
	return out
}

func toSlotResponses(in []scheduling.Slot) []SlotResponse {
	out := make([]SlotResponse, len(in))
	for i, s := range in {
		out[i] = SlotResponse{Start: s.Start.UTC(), End: s.End.UTC()}
	}
	return out
}

func toGroomerResponse(g appointment.Groomer) GroomerResponse {
	return GroomerResponse{ID: g.ID, Name: g.Name, Specialty: g.Specialty}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
