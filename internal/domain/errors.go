package domain

import "errors"

var (
	// ErrNoQuestions is returned when the catalog is empty.
	ErrNoQuestions = errors.New("question catalog is empty")
	// ErrNotEnoughQuestions is returned when a topic has no questions to quiz on.
	ErrNotEnoughQuestions = errors.New("not enough questions for topic")
	// ErrInvalidState indicates an operation not allowed in the current session state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrPlayerNotFound is returned when a device has no active play context.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrUnknownHistoryKind is returned for an unsupported history collection.
	ErrUnknownHistoryKind = errors.New("unknown history kind")
	// ErrIdentityConflict is returned when a request names a different user than the
	// client currently playing on the device.
	ErrIdentityConflict = errors.New("device is in use by another user")
	// ErrInvalidQuestionTime rejects a per-question countdown shorter than a second.
	ErrInvalidQuestionTime = errors.New("question time must be at least one second")
	// ErrInvalidFocusDuration rejects a focus timer phase shorter than a minute.
	ErrInvalidFocusDuration = errors.New("focus timer phases must be at least one minute")
	// ErrCatalogNotFound indicates the question catalog could not be loaded.
	ErrCatalogNotFound = errors.New("question catalog not found")
)
