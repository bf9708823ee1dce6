package pause

import "errors"

var (
	// ErrNoTeam is returned when a user without a team tries to start a pause.
	ErrNoTeam = errors.New("pause: user has no team")

	// ErrAlreadyActive is returned when the user already has an active pause.
	ErrAlreadyActive = errors.New("pause: already on pause")

	// ErrTeamAtCapacity is returned when the team's concurrent pause cap is
	// reached. This is an admission decision, not a failure.
	ErrTeamAtCapacity = errors.New("pause: team pause limit reached")

	// ErrNoActiveSession is returned when ending a pause that does not exist.
	ErrNoActiveSession = errors.New("pause: no active pause session")

	// ErrInvalidCategory is returned for unknown break categories.
	ErrInvalidCategory = errors.New("pause: invalid category")
)
