package display

import (
	"context"
	"image"
	"strings"
	"testing"

	"github.com/oakdene/inky-agent/internal/infrastructure/config"
)

func TestNewSelectsMock(t *testing.T) {
	d, err := New(config.DisplayConfig{Mock: true, MockWidth: 800, MockHeight: 480})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer d.Close()

	if _, ok := d.(*Mock); !ok {
		t.Errorf("New() returned %T, want *Mock", d)
	}
	if d.Width() != 800 || d.Height() != 480 {
		t.Errorf("dimensions = %dx%d", d.Width(), d.Height())
	}
	if d.Model() != "mock" {
		t.Errorf("Model() = %q", d.Model())
	}
}

func TestMockShowStoresFrame(t *testing.T) {
	m := NewMock(100, 50)
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))

	if err := m.Show(context.Background(), img, 0.5); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	if m.Frame() == nil {
		t.Error("Frame() = nil after Show")
	}
	if m.ShowCount() != 1 {
		t.Errorf("ShowCount() = %d", m.ShowCount())
	}
}

func TestMockShowRejectsWrongSize(t *testing.T) {
	m := NewMock(1600, 1200)
	img := image.NewRGBA(image.Rect(0, 0, 800, 600))

	err := m.Show(context.Background(), img, 0.5)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}

	// Both sizes must be named so the operator sees which side is wrong.
	if !strings.Contains(err.Error(), "800x600") {
		t.Errorf("error missing image size: %v", err)
	}
	if !strings.Contains(err.Error(), "1600x1200") {
		t.Errorf("error missing display size: %v", err)
	}
	if m.Frame() != nil {
		t.Error("rejected frame was stored")
	}
}

func TestMockClearIdempotent(t *testing.T) {
	m := NewMock(100, 50)

	// Clearing an already blank panel succeeds.
	if err := m.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() on blank panel error = %v", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	if err := m.Show(context.Background(), img, 0.5); err != nil {
		t.Fatalf("Show() error = %v", err)
	}

	if err := m.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if m.Frame() != nil {
		t.Error("Frame() != nil after Clear")
	}
	if m.ClearCount() != 2 {
		t.Errorf("ClearCount() = %d, want 2", m.ClearCount())
	}
}

func TestCheckSizeMatch(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 400))
	if err := checkSize(img, 640, 400); err != nil {
		t.Errorf("checkSize() error = %v, want nil", err)
	}
}
