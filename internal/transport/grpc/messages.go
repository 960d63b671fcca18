package grpc

import "slotbook/backend/internal/domain"

// Messages travel as JSON over the "json" content-subtype. Dates are
// YYYY-MM-DD, times HH:MM or HH:MM:SS, ids canonical UUID strings.

type ListFreeSlotsRequest struct {
	ProviderID int64  `json:"provider_id,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
	StartTime  string `json:"start_time,omitempty"`
	EndTime    string `json:"end_time,omitempty"`
}

type ListFreeSlotsResponse struct {
	Availabilities []domain.Slot `json:"availabilities"`
}

type FindChainsRequest struct {
	ServiceID int64  `json:"service_id"`
	Date      string `json:"date"`
}

type FindChainsResponse struct {
	Chains []domain.Chain `json:"chains"`
}

type CreateAppointmentRequest struct {
	ClientID       int64    `json:"client_id"`
	ServiceID      int64    `json:"service_id"`
	Availabilities []string `json:"availabilities"`
	ClientNote     string   `json:"client_note,omitempty"`
}

type CreateAppointmentResponse struct {
	Appointment domain.AppointmentView `json:"appointment"`
}

type UpdateAppointmentRequest struct {
	AppointmentID string  `json:"appointment_id"`
	ServiceID     *int64  `json:"service_id,omitempty"`
	ClientNote    *string `json:"client_note,omitempty"`
	Status        *string `json:"status,omitempty"`
}

type UpdateAppointmentResponse struct {
	Appointment domain.AppointmentView `json:"appointment"`
}

type CancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type CancelAppointmentResponse struct {
	Cancellation domain.Cancellation `json:"cancellation"`
}

type DeleteSlotRequest struct {
	AvailabilityID string `json:"availability_id"`
}

type DeleteSlotResponse struct{}

type InsertSlotsRequest struct {
	ProviderID     int64              `json:"provider_id"`
	Availabilities []domain.SlotEntry `json:"availabilities"`
}

type InsertSlotsResponse struct {
	Availabilities []domain.Slot `json:"availabilities"`
}

type ListAppointmentsRequest struct {
	AppointmentID string `json:"appointment_id,omitempty"`
	ClientID      int64  `json:"client_id,omitempty"`
	ServiceID     int64  `json:"service_id,omitempty"`
	ProviderID    int64  `json:"provider_id,omitempty"`
	StartDate     string `json:"start_date,omitempty"`
	EndDate       string `json:"end_date,omitempty"`
	Status        string `json:"status,omitempty"`
}

type ListAppointmentsResponse struct {
	Appointments []domain.AppointmentView `json:"appointments"`
}
