package muterole

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robalyx/warden/internal/platform"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// RoleName is the fixed name of the mute role.
const RoleName = "Muted"

// DeniedPermissions are the permissions the mute role loses on every channel.
const DeniedPermissions = platform.PermissionSendMessages | platform.PermissionSpeak

// ErrOverwriteFailed is joined into the returned error for each channel whose overwrite could not be set.
var ErrOverwriteFailed = errors.New("failed to apply mute overwrite")

// Provisioner makes sure each guild has exactly one mute role.
type Provisioner struct {
	platform    platform.Platform
	logger      *zap.Logger
	concurrency int
	locks       *xsync.MapOf[snowflake.ID, *sync.Mutex]
}

// New creates a provisioner. concurrency bounds parallel overwrite calls; values below one mean one.
func New(p platform.Platform, concurrency int, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		platform:    p,
		logger:      logger.Named("mute_role"),
		concurrency: max(concurrency, 1),
		locks:       xsync.NewMapOf[snowflake.ID, *sync.Mutex](),
	}
}

// Lookup returns the guild's mute role without creating it.
func (p *Provisioner) Lookup(ctx context.Context, guildID snowflake.ID) (platform.Role, bool, error) {
	roles, err := p.platform.Roles(ctx, guildID)
	if err != nil {
		return platform.Role{}, false, fmt.Errorf("failed to list roles: %w", err)
	}

	role, ok := platform.FindRole(roles, RoleName)

	return role, ok, nil
}

// Ensure returns the guild's mute role, creating it when absent.
// A new role gets a deny overwrite on every channel that exists right now. An existing role is
// returned as is. When some overwrites fail the role is still returned together with the error.
func (p *Provisioner) Ensure(ctx context.Context, guildID snowflake.ID) (platform.Role, error) {
	lock, _ := p.locks.LoadOrCompute(guildID, func() *sync.Mutex {
		return &sync.Mutex{}
	})

	// Held across lookup and create so concurrent first calls make one role
	lock.Lock()
	defer lock.Unlock()

	role, ok, err := p.Lookup(ctx, guildID)
	if err != nil {
		return platform.Role{}, err
	}

	if ok {
		return role, nil
	}

	role, err = p.platform.CreateRole(ctx, guildID, RoleName)
	if err != nil {
		return platform.Role{}, fmt.Errorf("failed to create mute role: %w", err)
	}

	p.logger.Info("Created mute role",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("roleID", uint64(role.ID)))

	return role, p.applyOverwrites(ctx, guildID, role)
}

// applyOverwrites denies the mute permissions for role on every current channel.
func (p *Provisioner) applyOverwrites(ctx context.Context, guildID snowflake.ID, role platform.Role) error {
	channels, err := p.platform.Channels(ctx, guildID)
	if err != nil {
		return fmt.Errorf("%w: failed to list channels: %w", ErrOverwriteFailed, err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)

	workers := pool.New().WithMaxGoroutines(p.concurrency)

	for _, channel := range channels {
		workers.Go(func() {
			if err := p.platform.DenyChannelPermissions(ctx, channel.ID, role.ID, DeniedPermissions); err != nil {
				p.logger.Warn("Failed to apply mute overwrite",
					zap.Uint64("guildID", uint64(guildID)),
					zap.Uint64("channelID", uint64(channel.ID)),
					zap.String("channel", channel.Name),
					zap.Error(err))

				mu.Lock()
				errs = append(errs, fmt.Errorf("%w on #%s: %w", ErrOverwriteFailed, channel.Name, err))
				mu.Unlock()
			}
		})
	}

	workers.Wait()

	p.logger.Debug("Applied mute overwrites",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Int("channels", len(channels)),
		zap.Int("failed", len(errs)))

	return errors.Join(errs...)
}
