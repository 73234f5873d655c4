package interview

import "fmt"

// InvalidStateError is returned when an operation is not valid in the session's current status.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Op, e.Status)
}

// EmptyAnswerError is returned when a blank response is submitted.
type EmptyAnswerError struct {
	Question string
}

func (e *EmptyAnswerError) Error() string {
	return fmt.Sprintf("empty answer for question %q, please try again", e.Question)
}

// CatalogMismatchError reports that a session was reset because its question catalog changed.
// It is informational and is never surfaced to the patient.
type CatalogMismatchError struct {
	SessionID string
	Previous  string
	Current   string
	Discarded int
}

func (e *CatalogMismatchError) Error() string {
	return fmt.Sprintf("question catalog changed for session %s (%.8s -> %.8s), discarded %d answers",
		e.SessionID, e.Previous, e.Current, e.Discarded)
}

// SessionNotFoundError is returned when a session id is unknown to the manager.
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}
