package swarm

import "errors"

var (
	// ErrCancelled resolves pending awaits when a role is stopped.
	ErrCancelled = errors.New("swarm: cancelled")
	// ErrRoleInactive is returned by operations on a role that is not running.
	ErrRoleInactive = errors.New("swarm: role not active")
	// ErrAborted is returned once an ERROR escalation has aborted the cycle.
	ErrAborted = errors.New("swarm: cycle aborted")
	// ErrInvalidTransition is returned when the cycle cannot move to the
	// requested state.
	ErrInvalidTransition = errors.New("swarm: invalid cycle transition")
	// ErrNoExecutor is returned by RunExecution without an ActionExecutor.
	ErrNoExecutor = errors.New("swarm: no action executor configured")
)

// ErrorCode classifies the failure carried by an ERROR message.
type ErrorCode string

const (
	// -- Role lifecycle --
	ErrCodeRoleStartFailed ErrorCode = "ROLE_START_FAILED"
	ErrCodeRoleStopFailed  ErrorCode = "ROLE_STOP_FAILED"

	// -- Execution --
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	ErrCodeApprovalTimeout  ErrorCode = "APPROVAL_TIMEOUT"

	// -- Messaging --
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	ErrCodePublishFailed  ErrorCode = "PUBLISH_FAILED"
)
