package domain

// CommandConfig is the fully resolved permission config for one command
type CommandConfig struct {
	AdminOnly            bool     `json:"adminOnly"`
	RequiredCapabilities []string `json:"requiredCapabilities,omitempty"`
	RequiredRoles        []string `json:"requiredRoles,omitempty"`
	AdminRoles           []string `json:"adminRoles,omitempty"`

	// MaxUsesPerHour is the per-user sliding window quota, 0 = unlimited
	MaxUsesPerHour int `json:"maxUsesPerHour"`

	// CooldownSec spaces successive uses by the same user, 0 = none
	CooldownSec int `json:"cooldownSec"`
}

// CommandOverride overlays a guild's tweaks onto the default config.
// Nil fields inherit, non-nil fields replace
type CommandOverride struct {
	AdminOnly            *bool    `json:"adminOnly,omitempty"`
	RequiredCapabilities []string `json:"requiredCapabilities,omitempty"`
	RequiredRoles        []string `json:"requiredRoles,omitempty"`
	AdminRoles           []string `json:"adminRoles,omitempty"`
	MaxUsesPerHour       *int     `json:"maxUsesPerHour,omitempty"`
	CooldownSec          *int     `json:"cooldownSec,omitempty"`
}

// Apply overlays o onto c and returns the result
func (c CommandConfig) Apply(o CommandOverride) CommandConfig {
	if o.AdminOnly != nil {
		c.AdminOnly = *o.AdminOnly
	}
	if o.RequiredCapabilities != nil {
		c.RequiredCapabilities = o.RequiredCapabilities
	}
	if o.RequiredRoles != nil {
		c.RequiredRoles = o.RequiredRoles
	}
	if o.AdminRoles != nil {
		c.AdminRoles = o.AdminRoles
	}
	if o.MaxUsesPerHour != nil {
		c.MaxUsesPerHour = *o.MaxUsesPerHour
	}
	if o.CooldownSec != nil {
		c.CooldownSec = *o.CooldownSec
	}
	return c
}
