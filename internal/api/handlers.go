package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/grooming-scheduler/internal/appointment"
)

// OwnerHeader carries the authenticated owner id set by the upstream auth
// layer.
const OwnerHeader = "X-Owner-ID"

func availabilityHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groomerID, ok := pathUUID(w, r, "invalid_groomer_id")
		if !ok {
			return
		}

		q := r.URL.Query()
		rawDate, rawType := strings.TrimSpace(q.Get("date")), strings.TrimSpace(q.Get("service_type"))
		if rawDate == "" || rawType == "" {
			// Incomplete selection in the booking form: nothing to offer yet.
			writeJSON(w, http.StatusOK, []SlotResponse{})
			return
		}

		date, err := svc.Policy().ParseDate(rawDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		serviceType, err := appointment.ParseServiceType(rawType)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		slots, err := svc.Availability(r.Context(), groomerID, date, serviceType)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func createAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		petID, err := uuid.Parse(req.PetID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pet_id", "pet_id must be a valid UUID")
			return
		}
		groomerID, err := uuid.Parse(req.GroomerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_groomer_id", "groomer_id must be a valid UUID")
			return
		}
		serviceType, err := appointment.ParseServiceType(req.ServiceType)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), appointment.CreateInput{
			OwnerID:     ownerID,
			PetID:       petID,
			GroomerID:   groomerID,
			ServiceType: serviceType,
			StartTime:   req.StartTime,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var petID uuid.UUID
		if req.PetID != "" {
			parsed, err := uuid.Parse(req.PetID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_pet_id", "pet_id must be a valid UUID")
				return
			}
			petID = parsed
		}
		groomerID, err := uuid.Parse(req.GroomerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_groomer_id", "groomer_id must be a valid UUID")
			return
		}
		serviceType, err := appointment.ParseServiceType(req.ServiceType)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		appt, err := svc.RescheduleAppointment(r.Context(), appointment.RescheduleInput{
			AppointmentID: id,
			OwnerID:       ownerID,
			PetID:         petID,
			GroomerID:     groomerID,
			ServiceType:   serviceType,
			StartTime:     req.StartTime,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		if _, err := svc.CancelAppointment(r.Context(), id, ownerID); err != nil {
			handleServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id, ownerID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func modifiableHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		can, err := svc.CanModify(r.Context(), id, ownerID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, ModifiableResponse{Modifiable: can})
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := requireOwner(w, r)
		if !ok {
			return
		}

		res, err := svc.ListAppointmentsByOwner(r.Context(), ownerID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, OwnerAppointmentsResponse{
			Upcoming: toAppointmentResponses(res.Upcoming),
			Past:     toAppointmentResponses(res.Past),
		})
	}
}

func groomerScheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groomerID, ok := pathUUID(w, r, "invalid_groomer_id")
		if !ok {
			return
		}

		date, err := svc.Policy().ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appts, err := svc.GroomerSchedule(r.Context(), groomerID, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func listGroomersHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groomers, err := svc.ListGroomers(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		out := make([]GroomerResponse, len(groomers))
		for i, g := range groomers {
			out[i] = toGroomerResponse(g)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getGroomerHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "invalid_groomer_id")
		if !ok {
			return
		}

		g, err := svc.GetGroomer(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toGroomerResponse(*g))
	}
}

func requireOwner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing_owner", OwnerHeader+" header is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_owner", OwnerHeader+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "groomer schedule is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrModificationWindowExpired):
		writeError(w, http.StatusForbidden, "modification_window_expired", err.Error())
	case errors.Is(err, appointment.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrGroomerNotFound):
		writeError(w, http.StatusNotFound, "groomer_not_found", err.Error())
	case errors.Is(err, appointment.ErrPetNotFound):
		writeError(w, http.StatusNotFound, "pet_not_found", err.Error())
	case errors.Is(err, appointment.ErrOwnerNotFound):
		writeError(w, http.StatusNotFound, "owner_not_found", err.Error())
	default:
		loggerFrom(r.Context()).ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
