package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/platform"
)

// ErrPermissionDenied is returned when the invoker lacks the command's capability.
var ErrPermissionDenied = errors.New("permission denied")

// CapabilityChecker reports whether a member holds a capability.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, guildID, userID snowflake.ID, capability platform.Capability) (bool, error)
}

// Gate checks platform capabilities before a command is dispatched.
type Gate struct {
	checker CapabilityChecker
}

// NewGate creates a permission gate.
func NewGate(checker CapabilityChecker) *Gate {
	return &Gate{checker: checker}
}

// Authorize returns nil when the invoker may run the command.
func (g *Gate) Authorize(ctx context.Context, inv Invocation) error {
	required := inv.Definition.Capability
	if required == platform.CapabilityNone {
		return nil
	}

	ok, err := g.checker.HasCapability(ctx, inv.GuildID, inv.Author.ID, required)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", required, err)
	}

	if !ok {
		return fmt.Errorf("%w: %s requires %s", ErrPermissionDenied, inv.Definition.Name, required)
	}

	return nil
}
