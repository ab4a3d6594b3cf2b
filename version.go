// Package promote holds the release version of the promotion workflow.
package promote

// Version is the current release of promote.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
