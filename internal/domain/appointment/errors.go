package appointment

import "errors"

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrAppointmentConflict     = errors.New("doctor already has an appointment at this time")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrStatusChanged           = errors.New("appointment status changed concurrently")
	ErrScheduledInPast         = errors.New("cannot schedule appointment in the past")
	ErrOutsideBusinessHours    = errors.New("appointments are only available during clinic hours")
	ErrUnknownDoctor           = errors.New("doctor not found or not a doctor account")
	ErrUnknownDepartment       = errors.New("unknown department")
)
