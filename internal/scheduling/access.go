package scheduling

import (
	"signbridge-server/internal/apperr"
	"signbridge-server/internal/identity"
	"signbridge-server/internal/models"
)

// scopeFor maps a caller to the party column their listing is limited to.
func scopeFor(caller identity.Caller) (Scope, error) {
	switch caller.Role {
	case models.RolePatient:
		return Scope{PatientID: caller.UserID}, nil
	case models.RoleProvider:
		return Scope{ProviderID: caller.UserID}, nil
	case models.RoleInterpreter:
		return Scope{InterpreterID: caller.UserID}, nil
	case models.RoleAdmin:
		return Scope{}, nil
	}
	return Scope{}, apperr.AccessDenied("unknown role")
}

// visibleTo applies the same rule as scopeFor to a single appointment.
func visibleTo(caller identity.Caller, apt *models.Appointment) bool {
	switch caller.Role {
	case models.RoleAdmin:
		return true
	case models.RolePatient:
		return apt.PatientID == caller.UserID
	case models.RoleProvider:
		return apt.ProviderID == caller.UserID
	case models.RoleInterpreter:
		return apt.InterpreterID != nil && *apt.InterpreterID == caller.UserID
	}
	return false
}

// mayChange decides whether a caller who can see apt may modify it.
// Interpreters never modify appointments; patients only when the operation
// is open to them.
func mayChange(caller identity.Caller, apt *models.Appointment, patientAllowed bool) error {
	switch caller.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleProvider:
		if apt.ProviderID == caller.UserID {
			return nil
		}
	case models.RolePatient:
		if patientAllowed && apt.PatientID == caller.UserID {
			return nil
		}
	}
	return apperr.AccessDenied("you are not allowed to change this appointment")
}
