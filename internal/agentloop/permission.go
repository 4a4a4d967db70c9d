package agentloop

import (
	"context"

	"github.com/agentcore/runtime/pkg/models"
)

// PermissionOutcome is the result of a permission check on a single tool
// call (spec §4.4's Allow/Deny/NeedsConfirmation contract).
type PermissionOutcome int

const (
	// PermissionAllow executes the call immediately.
	PermissionAllow PermissionOutcome = iota
	// PermissionDeny refuses the call; Reason becomes the ToolResult content.
	PermissionDeny
	// PermissionNeedsConfirmation requires a synchronous host decision
	// before the call can run (see ConfirmFunc).
	PermissionNeedsConfirmation
)

// PermissionResult is returned by a PermissionFunc for one tool call.
type PermissionResult struct {
	Outcome PermissionOutcome
	Reason  string
}

// PermissionFunc classifies a single tool call before it executes. The
// agent loop calls it once per pending call, sequentially, as one of the
// loop's three await points.
type PermissionFunc func(ctx context.Context, call models.ToolCall) PermissionResult

// ConfirmFunc resolves a PermissionNeedsConfirmation outcome to a final
// yes/no, blocking until the host responds. If nil, NeedsConfirmation is
// treated as Deny — a safety-first default when no interactive resolver is
// wired up.
type ConfirmFunc func(ctx context.Context, call models.ToolCall, reason string) bool
