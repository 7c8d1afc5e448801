package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Ledger errors
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Purchase errors
	ErrItemNotFound       = errors.New("item not in catalog")
	ErrMissingPermissions = errors.New("bot lacks required permissions")
	ErrPromptTimeout      = errors.New("interactive prompt timed out")
	ErrInvalidSelection   = errors.New("invalid target selection")
	ErrNoTargets          = errors.New("no eligible targets available")
	ErrNoPrivateChannel   = errors.New("no active private channel")
	ErrAlreadyInvited     = errors.New("user already invited")

	// Platform errors
	ErrDMBlocked = errors.New("recipient does not accept direct messages")
	ErrNotFound  = errors.New("referenced resource no longer exists")
)
