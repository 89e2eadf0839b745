package instance

import "github.com/zaavg/storefront/pkg/env"

// GetID names this process in logs. Platform-injected ids win over the
// container hostname.
func GetID() string {
	return env.FirstOf("local", "STOREFRONT_INSTANCE_ID", "DYNO", "HOSTNAME")
}
