// Package imagestore fetches display frames from the coordinator's
// object store.
//
// The store starts unconfigured; credentials arrive with the
// registration acknowledgment (or from pre-seeded config) and can be
// swapped at any time when the coordinator re-issues them. Fetches are
// bounded by a small semaphore so a burst of commands cannot pile up
// concurrent downloads on a Pi Zero class device.
package imagestore
