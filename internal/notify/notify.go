// Package notify defines the job-completion summary type and the sink
// interface implementations deliver it through.
package notify

import "context"

// Summary describes one completed job run, the payload every Notifier
// implementation renders into its own message format.
type Summary struct {
	Job         string
	Platform    string
	Total       int
	FailedCount int
	NewProjects []ProjectLine
	Tag         string
}

// ProjectLine is one "name(id): versionCount" entry in a summary's detail
// block.
type ProjectLine struct {
	Name         string
	ID           string
	VersionCount int
}

// Notifier delivers a Summary somewhere. Implementations must not block
// the caller's job goroutine indefinitely; ctx governs the delivery
// attempt's deadline.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}
