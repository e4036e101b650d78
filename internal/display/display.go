package display

import (
	"context"
	"fmt"
	"image"

	"github.com/oakdene/inky-agent/internal/infrastructure/config"
)

// Display is the panel surface the agent renders to.
//
// Implementations are used from a single dispatch goroutine; they do
// not need to be safe for concurrent use. A refresh that has started
// is never interrupted, so Show implementations may ignore ctx once
// the panel update begins.
type Display interface {
	// Width returns the panel width in pixels.
	Width() int

	// Height returns the panel height in pixels.
	Height() int

	// Model returns the panel model identifier.
	Model() string

	// Show renders the image to the panel. The image dimensions must
	// match the panel dimensions exactly.
	Show(ctx context.Context, img image.Image, saturation float64) error

	// Clear blanks the panel. Clearing an already blank panel succeeds.
	Clear(ctx context.Context) error

	// Close releases panel resources.
	Close() error
}

// New creates the display selected by configuration: a mock when
// cfg.Mock is set, otherwise the hardware panel behind the refresh
// helper.
//
// Parameters:
//   - cfg: Display configuration
//
// Returns:
//   - Display: Ready display with dimensions discovered
//   - error: If hardware discovery fails
func New(cfg config.DisplayConfig) (Display, error) {
	if cfg.Mock {
		return NewMock(cfg.MockWidth, cfg.MockHeight), nil
	}
	return NewPanel(cfg.Helper)
}

// checkSize verifies an image matches the panel dimensions.
//
// The error names both sizes so the coordinator operator can see at a
// glance which side is wrong.
func checkSize(img image.Image, width, height int) error {
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		return fmt.Errorf("image size %dx%d does not match display size %dx%d",
			bounds.Dx(), bounds.Dy(), width, height)
	}
	return nil
}
