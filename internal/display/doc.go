// Package display abstracts the e-ink panel behind a small interface.
//
// Two implementations exist: Panel drives real Inky hardware through
// the vendor refresh helper binary, and Mock keeps the last frame in
// memory for development and tests. Both enforce that submitted images
// match the panel dimensions exactly; the agent never scales or crops.
package display
