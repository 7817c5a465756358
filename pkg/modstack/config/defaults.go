// Package config provides configuration management for modstack.
package config

import "time"

// Default configuration values.
const (
	// DefaultPlatform is the deployment target when none is configured.
	DefaultPlatform = "switch"

	// DefaultDeployMethod is how a finished output is transferred.
	DefaultDeployMethod = "copy"

	// DefaultOrphanMethod is how orphaned output files are removed.
	DefaultOrphanMethod = "delete"

	// DefaultRetentionDays is how long apply history is kept.
	DefaultRetentionDays = 30

	// DefaultCacheIdleTimeout evicts resources untouched for this long.
	DefaultCacheIdleTimeout = 5 * time.Minute
)

// DeployMethods are the accepted values of deploy.method.
var DeployMethods = []string{"copy", "hardlink", "symlink"}
