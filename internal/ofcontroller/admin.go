package ofcontroller

import "github.com/ofcore/ofcore/internal/ofadmin"

// newAdminRunner constructs the admin/introspection server bound to c's
// observability bus and health, used only when AdminListen is configured.
func newAdminRunner(c *Controller) *ofadmin.Server {
	return ofadmin.New(c.cfg.AdminListen, c.bus, func() bool {
		return c.Phase() == PhaseStart
	}, c.logger)
}
