package domain

import "errors"

var (
	// ErrMemberNotFound is returned by member stores for unregistered players.
	ErrMemberNotFound = errors.New("member not found")
	// ErrNoQuestions indicates the question store has nothing to draw.
	ErrNoQuestions = errors.New("no questions available")
	// ErrPartyInProgress rejects a party start while one runs in the channel.
	ErrPartyInProgress = errors.New("a quiz party is already running in this channel")
	// ErrRoundInProgress rejects a single question while the channel is busy.
	ErrRoundInProgress = errors.New("a quiz question is already running in this channel")
	// ErrRoundNotActive is returned when a round is driven out of order.
	ErrRoundNotActive = errors.New("round is not active")
	// ErrAuthoringTimeout aborts a question authoring flow.
	ErrAuthoringTimeout = errors.New("question authoring timed out")
	// ErrMalformedQuestion indicates a submission without exactly one marked answer.
	ErrMalformedQuestion = errors.New("malformed question submission")
	// ErrGatewayUnavailable is returned when no chat bridge is connected.
	ErrGatewayUnavailable = errors.New("chat gateway unavailable")
)
