package display

import (
	"context"
	"image"
	"sync"
)

// Mock is an in-memory display for development machines and tests.
// It records the last frame shown so tests can assert on it.
type Mock struct {
	width  int
	height int

	mu     sync.Mutex
	frame  image.Image // nil when blank
	shows  int
	clears int
}

// NewMock creates a mock display with the given dimensions.
func NewMock(width, height int) *Mock {
	return &Mock{width: width, height: height}
}

// Width returns the configured mock width.
func (m *Mock) Width() int { return m.width }

// Height returns the configured mock height.
func (m *Mock) Height() int { return m.height }

// Model identifies the mock panel.
func (m *Mock) Model() string { return "mock" }

// Show stores the frame after validating its dimensions.
func (m *Mock) Show(_ context.Context, img image.Image, _ float64) error {
	if err := checkSize(img, m.width, m.height); err != nil {
		return err
	}

	m.mu.Lock()
	m.frame = img
	m.shows++
	m.mu.Unlock()
	return nil
}

// Clear blanks the mock. Clearing a blank panel is a no-op success.
func (m *Mock) Clear(_ context.Context) error {
	m.mu.Lock()
	m.frame = nil
	m.clears++
	m.mu.Unlock()
	return nil
}

// Close releases nothing; the mock holds no resources.
func (m *Mock) Close() error { return nil }

// Frame returns the currently displayed image, or nil when blank.
func (m *Mock) Frame() image.Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frame
}

// ShowCount returns how many frames were shown.
func (m *Mock) ShowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shows
}

// ClearCount returns how many clears were requested.
func (m *Mock) ClearCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}
