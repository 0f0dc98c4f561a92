package services

import "errors"

var (
	// ErrNotSignedIn is returned when an operation needs a signed-in identity
	ErrNotSignedIn = errors.New("not signed in")

	// ErrProjectNotFound is returned when no visible project matches
	ErrProjectNotFound = errors.New("project not found")

	// ErrJoinFailed is returned when the membership write didn't apply
	ErrJoinFailed = errors.New("join failed")

	// ErrNoActiveProject is returned when a mutation needs an active project
	ErrNoActiveProject = errors.New("no active project")

	// ErrForecastUnavailable is returned when the provider failed or had no entry for the day
	ErrForecastUnavailable = errors.New("forecast unavailable")

	// ErrNoLocation is returned when the project has no scene to take a coordinate from
	ErrNoLocation = errors.New("no scene location to forecast")
)
