package display

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// queryTimeout bounds the initial hardware discovery call.
const queryTimeout = 10 * time.Second

// Panel drives real Inky hardware through the vendor refresh helper, a
// small binary that owns the SPI transaction with the panel. The helper
// exposes three subcommands:
//
//	query    print panel dimensions and model as JSON
//	show     read a PNG frame from stdin and refresh the panel
//	clear    blank the panel
//
// E-ink refreshes take tens of seconds and must not be interrupted
// half-way (the panel is left in an undefined state), so show and clear
// run to completion regardless of context cancellation.
type Panel struct {
	helper string
	width  int
	height int
	model  string

	// refreshMu serializes panel access; the hardware cannot service
	// two SPI transactions at once.
	refreshMu sync.Mutex
}

// panelInfo is the helper's query output.
type panelInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Model  string `json:"model"`
}

// NewPanel discovers the attached panel through the helper binary.
//
// Parameters:
//   - helper: Path to the refresh helper binary
//
// Returns:
//   - *Panel: Panel with discovered dimensions
//   - error: If the helper fails or reports nonsense dimensions
func NewPanel(helper string) (*Panel, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, helper, "query").Output()
	if err != nil {
		return nil, fmt.Errorf("querying panel via %s: %w", helper, err)
	}

	var info panelInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parsing panel query output: %w", err)
	}
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("panel reported invalid dimensions %dx%d", info.Width, info.Height)
	}

	return &Panel{
		helper: helper,
		width:  info.Width,
		height: info.Height,
		model:  info.Model,
	}, nil
}

// Width returns the discovered panel width.
func (p *Panel) Width() int { return p.width }

// Height returns the discovered panel height.
func (p *Panel) Height() int { return p.height }

// Model returns the discovered panel model.
func (p *Panel) Model() string { return p.model }

// Show encodes the frame as PNG and streams it to the helper.
//
// The refresh runs to completion once started; ctx only gates the
// decision to start.
func (p *Panel) Show(ctx context.Context, img image.Image, saturation float64) error {
	if err := checkSize(img, p.width, p.height); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var frame bytes.Buffer
	if err := png.Encode(&frame, img); err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	cmd := exec.Command(p.helper, "show",
		"--saturation", strconv.FormatFloat(saturation, 'f', 2, 64))
	cmd.Stdin = &frame
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("panel refresh failed: %w: %s", err, bytes.TrimSpace(out))
	}

	return nil
}

// Clear blanks the panel. Like Show, a started clear runs to
// completion.
func (p *Panel) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	if out, err := exec.Command(p.helper, "clear").CombinedOutput(); err != nil {
		return fmt.Errorf("panel clear failed: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// Close releases nothing; the helper holds the panel only per-call.
func (p *Panel) Close() error { return nil }
