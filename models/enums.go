package models

import "errors"

// MaxMeasurement bounds every count field. Values outside [0, MaxMeasurement]
// are rejected, never clamped.
const MaxMeasurement = 999

type UserRole string

const (
	UserRoleAdmin UserRole = "A"
	UserRoleStaff UserRole = "C"
)

// MilkSessionStatus is the current phase of a milk count session.
// It only ever moves forward through milkPhaseOrder; Completed is terminal.
type MilkSessionStatus string

const (
	MilkStatusFrontCount    MilkSessionStatus = "FrontCount"
	MilkStatusBackCount     MilkSessionStatus = "BackCount"
	MilkStatusDeliveryCount MilkSessionStatus = "DeliveryCount"
	MilkStatusOnOrder       MilkSessionStatus = "OnOrder"
	MilkStatusCompleted     MilkSessionStatus = "Completed"
)

var milkPhaseOrder = []MilkSessionStatus{
	MilkStatusFrontCount,
	MilkStatusBackCount,
	MilkStatusDeliveryCount,
	MilkStatusOnOrder,
	MilkStatusCompleted,
}

// PhaseIndex returns the position of s in the phase chain, or -1.
func (s MilkSessionStatus) PhaseIndex() int {
	for i, p := range milkPhaseOrder {
		if p == s {
			return i
		}
	}
	return -1
}

func (s MilkSessionStatus) IsTerminal() bool {
	return s == MilkStatusCompleted
}

// Next returns the status after saving phase s.
func (s MilkSessionStatus) Next() (MilkSessionStatus, error) {
	i := s.PhaseIndex()
	if i < 0 || s.IsTerminal() {
		return s, errors.New("no next phase")
	}
	return milkPhaseOrder[i+1], nil
}

// MilkPhases lists the savable phases in order (terminal excluded).
func MilkPhases() []MilkSessionStatus {
	return milkPhaseOrder[:len(milkPhaseOrder)-1]
}

// DeliveryMethod selects which of the two algebraically related delivery
// inputs the user entered. Only the entered field is persisted; the other
// is always derived.
type DeliveryMethod string

const (
	DeliveryMethodCount     DeliveryMethod = "count"     // user entered the post-delivery current count
	DeliveryMethodDelivered DeliveryMethod = "delivered" // user entered the delivered amount
)

func (m DeliveryMethod) Valid() bool {
	return m == DeliveryMethodCount || m == DeliveryMethodDelivered
}

// RestockSessionStatus is the phase of a display restock session.
// Purge-policy sessions are deleted on completion, so no terminal value
// is ever persisted.
type RestockSessionStatus string

const (
	RestockStatusCounting RestockSessionStatus = "Counting"
	RestockStatusPulling  RestockSessionStatus = "Pulling"
)

// SessionResult classifies a historical session for listing.
type SessionResult string

const (
	SessionResultCompleted  SessionResult = "completed"
	SessionResultMissed     SessionResult = "missed"
	SessionResultInProgress SessionResult = "in_progress"
)

// Session event actions published through the outbox.
const (
	SessionEventMilkCompleted    = "milk_count.completed"
	SessionEventRestockCompleted = "display_restock.completed"
)

// Session types for outbox records and audit rows.
const (
	SessionTypeMilk    = "MilkSession"
	SessionTypeRestock = "RestockSession"
)
