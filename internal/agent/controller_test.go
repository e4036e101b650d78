package agent

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oakdene/inky-agent/internal/bus"
	"github.com/oakdene/inky-agent/internal/display"
	"github.com/oakdene/inky-agent/internal/imagestore"
	"github.com/oakdene/inky-agent/internal/infrastructure/config"
)

// fakeSession implements Session for tests.
type fakeSession struct {
	mu            sync.Mutex
	registrations []bus.RegistrationRequest
	acks          []bus.Acknowledgment
	registerErr   error
}

func (f *fakeSession) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSession) PublishRegistration(_ context.Context, req bus.RegistrationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registrations = append(f.registrations, req)
	return nil
}

func (f *fakeSession) PublishAcknowledge(_ context.Context, ack bus.Acknowledgment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, ack)
	return nil
}

func (f *fakeSession) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acks)
}

func (f *fakeSession) registrationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registrations)
}

// fakeStore implements ImageSource for tests.
type fakeStore struct {
	mu         sync.Mutex
	configured bool
	applied    []imagestore.Credentials
	images     map[string]image.Image
	fetches    int
}

func (f *fakeStore) Configure(creds imagestore.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = true
	f.applied = append(f.applied, creds)
	return nil
}

func (f *fakeStore) Configured() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configured
}

func (f *fakeStore) Fetch(_ context.Context, path string) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if !f.configured {
		return nil, imagestore.ErrNotConfigured
	}
	img, ok := f.images[path]
	if !ok {
		return nil, fmt.Errorf("fetching object %q: not found", path)
	}
	return img, nil
}

type testEnv struct {
	ctrl    *Controller
	session *fakeSession
	store   *fakeStore
	mock    *display.Mock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Device.ID = "dev1"
	cfg.Display.Mock = true

	session := &fakeSession{}
	store := &fakeStore{images: map[string]image.Image{}}
	mock := display.NewMock(1600, 1200)

	ctrl := New(Options{
		Config:  cfg,
		Display: mock,
		Store:   store,
		NewSession: func(bus.Handlers) Session {
			return session
		},
	})

	return &testEnv{ctrl: ctrl, session: session, store: store, mock: mock}
}

// configureStore marks the store as holding credentials and seeds a
// panel-sized image at the given path.
func (e *testEnv) configureStore(t *testing.T, path string) {
	t.Helper()
	if err := e.store.Configure(imagestore.Credentials{Endpoint: "minio:9000", Bucket: "b"}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	e.store.images[path] = image.NewRGBA(image.Rect(0, 0, 1600, 1200))
}

func TestProcessDisplaySuccess(t *testing.T) {
	env := newTestEnv(t)
	env.configureStore(t, "dev1/sunset.png")

	ack := env.ctrl.process(context.Background(), bus.Command{
		Action:    bus.ActionDisplay,
		ImagePath: "dev1/sunset.png",
		ImageID:   "img-1",
	})

	if !ack.Success {
		t.Fatalf("ack.Success = false, error = %v", ack.Error)
	}
	if ack.DeviceID != "dev1" {
		t.Errorf("DeviceID = %q", ack.DeviceID)
	}
	if ack.ImageID == nil || *ack.ImageID != "img-1" {
		t.Errorf("ImageID = %v, want img-1", ack.ImageID)
	}
	if ack.Error != nil {
		t.Errorf("Error = %v, want nil", *ack.Error)
	}
	if env.mock.Frame() == nil {
		t.Error("panel not refreshed")
	}
}

func TestProcessDisplayMissingFields(t *testing.T) {
	tests := []struct {
		name string
		cmd  bus.Command
		want string
	}{
		{
			name: "missing image_path",
			cmd:  bus.Command{Action: bus.ActionDisplay, ImageID: "img-1"},
			want: "image_path",
		},
		{
			name: "missing image_id",
			cmd:  bus.Command{Action: bus.ActionDisplay, ImagePath: "p/i.png"},
			want: "image_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.configureStore(t, "p/i.png")

			ack := env.ctrl.process(context.Background(), tt.cmd)
			if ack.Success {
				t.Fatal("ack.Success = true for invalid command")
			}
			if ack.Error == nil || !strings.Contains(*ack.Error, tt.want) {
				t.Errorf("Error = %v, want mention of %q", ack.Error, tt.want)
			}
			if env.mock.ShowCount() != 0 {
				t.Error("panel refreshed for invalid command")
			}
		})
	}
}

func TestProcessDisplayBeforeRegistration(t *testing.T) {
	env := newTestEnv(t)

	ack := env.ctrl.process(context.Background(), bus.Command{
		Action:    bus.ActionDisplay,
		ImagePath: "p/i.png",
		ImageID:   "img-1",
	})

	if ack.Success {
		t.Fatal("ack.Success = true before store configuration")
	}
	if ack.Error == nil || !strings.Contains(*ack.Error, "not configured") {
		t.Errorf("Error = %v, want mention of not configured", ack.Error)
	}
	if ack.ImageID != nil {
		t.Errorf("ImageID = %v, want nil on blank panel", *ack.ImageID)
	}
}

func TestProcessDisplayDimensionMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.configureStore(t, "p/good.png")
	env.store.images["p/small.png"] = image.NewRGBA(image.Rect(0, 0, 800, 600))

	// Establish a current image first.
	if ack := env.ctrl.process(context.Background(), bus.Command{
		Action: bus.ActionDisplay, ImagePath: "p/good.png", ImageID: "img-good",
	}); !ack.Success {
		t.Fatalf("setup display failed: %v", ack.Error)
	}

	ack := env.ctrl.process(context.Background(), bus.Command{
		Action: bus.ActionDisplay, ImagePath: "p/small.png", ImageID: "img-small",
	})

	if ack.Success {
		t.Fatal("ack.Success = true for mismatched image")
	}
	if ack.Error == nil || !strings.Contains(*ack.Error, "800x600") || !strings.Contains(*ack.Error, "1600x1200") {
		t.Errorf("Error = %v, want both sizes named", ack.Error)
	}

	// The failed refresh must not change the reported current image.
	if ack.ImageID == nil || *ack.ImageID != "img-good" {
		t.Errorf("ImageID = %v, want img-good", ack.ImageID)
	}
}

func TestProcessUnknownAction(t *testing.T) {
	env := newTestEnv(t)

	ack := env.ctrl.process(context.Background(), bus.Command{Action: "bogus"})
	if ack.Success {
		t.Fatal("ack.Success = true for unknown action")
	}
	if ack.Error == nil || !strings.Contains(*ack.Error, `unknown action "bogus"`) {
		t.Errorf("Error = %v", ack.Error)
	}
}

func TestProcessClear(t *testing.T) {
	env := newTestEnv(t)
	env.configureStore(t, "p/i.png")

	// Clear on an already blank panel succeeds.
	ack := env.ctrl.process(context.Background(), bus.Command{Action: bus.ActionClear})
	if !ack.Success {
		t.Fatalf("Clear on blank panel failed: %v", ack.Error)
	}
	if ack.ImageID != nil {
		t.Errorf("ImageID = %v, want nil", *ack.ImageID)
	}

	// Display then clear resets the current image.
	if ack := env.ctrl.process(context.Background(), bus.Command{
		Action: bus.ActionDisplay, ImagePath: "p/i.png", ImageID: "img-1",
	}); !ack.Success {
		t.Fatalf("display failed: %v", ack.Error)
	}

	ack = env.ctrl.process(context.Background(), bus.Command{Action: bus.ActionClear})
	if !ack.Success {
		t.Fatalf("Clear failed: %v", ack.Error)
	}
	if ack.ImageID != nil {
		t.Errorf("ImageID = %v after clear, want nil", *ack.ImageID)
	}
	if env.mock.Frame() != nil {
		t.Error("panel not blank after clear")
	}
}

func TestProcessStatusReportsStateWithoutIO(t *testing.T) {
	env := newTestEnv(t)
	env.configureStore(t, "p/i.png")

	if ack := env.ctrl.process(context.Background(), bus.Command{
		Action: bus.ActionDisplay, ImagePath: "p/i.png", ImageID: "img-1",
	}); !ack.Success {
		t.Fatalf("display failed: %v", ack.Error)
	}
	fetchesBefore := env.store.fetches
	showsBefore := env.mock.ShowCount()

	ack := env.ctrl.process(context.Background(), bus.Command{Action: bus.ActionStatus})
	if !ack.Success {
		t.Fatalf("status failed: %v", ack.Error)
	}
	if ack.ImageID == nil || *ack.ImageID != "img-1" {
		t.Errorf("ImageID = %v, want img-1", ack.ImageID)
	}

	if env.store.fetches != fetchesBefore {
		t.Error("status command fetched from store")
	}
	if env.mock.ShowCount() != showsBefore {
		t.Error("status command touched the panel")
	}
}

// panicDisplay panics on Show to exercise dispatch recovery.
type panicDisplay struct {
	*display.Mock
}

func (p *panicDisplay) Show(context.Context, image.Image, float64) error {
	panic("panel driver crashed")
}

func TestProcessRecoversFromPanic(t *testing.T) {
	env := newTestEnv(t)
	env.configureStore(t, "p/i.png")
	env.ctrl.disp = &panicDisplay{Mock: env.mock}

	ack := env.ctrl.process(context.Background(), bus.Command{
		Action: bus.ActionDisplay, ImagePath: "p/i.png", ImageID: "img-1",
	})

	if ack.Success {
		t.Fatal("ack.Success = true after handler panic")
	}
	if ack.Error == nil || !strings.Contains(*ack.Error, "internal error") {
		t.Errorf("Error = %v", ack.Error)
	}
}

func TestDispatchLoopAcksEveryCommand(t *testing.T) {
	env := newTestEnv(t)
	env.configureStore(t, "p/i.png")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.ctrl.dispatchLoop(ctx) }()

	commands := []bus.Command{
		{Action: bus.ActionDisplay, ImagePath: "p/i.png", ImageID: "img-1"},
		{Action: "bogus"},
		{Action: bus.ActionClear},
		{Action: bus.ActionStatus},
	}
	for _, cmd := range commands {
		env.ctrl.enqueueCommand(cmd)
	}

	waitFor(t, func() bool { return env.session.ackCount() == len(commands) })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("dispatchLoop() error = %v", err)
	}

	env.session.mu.Lock()
	defer env.session.mu.Unlock()
	if env.session.acks[0].Success != true || env.session.acks[1].Success != false {
		t.Errorf("ack outcomes = %+v", env.session.acks)
	}
}

func TestApplyRegistrationIdempotent(t *testing.T) {
	env := newTestEnv(t)

	ack := bus.RegistrationAck{
		Status:         bus.StatusRegistered,
		StoreEndpoint:  "minio:9000",
		StoreBucket:    "images",
		StoreAccessKey: "ak",
		StoreSecretKey: "sk",
	}
	env.ctrl.applyRegistration(ack)
	if !env.ctrl.Registered() {
		t.Fatal("Registered() = false after ack")
	}

	// A duplicate ack replaces credentials without error.
	ack.Status = bus.StatusUpdated
	ack.StoreAccessKey = "ak2"
	env.ctrl.applyRegistration(ack)

	env.store.mu.Lock()
	defer env.store.mu.Unlock()
	if len(env.store.applied) != 2 {
		t.Fatalf("credentials applied %d times, want 2", len(env.store.applied))
	}
	if env.store.applied[1].AccessKey != "ak2" {
		t.Errorf("second credentials = %+v", env.store.applied[1])
	}
}

func TestRegisterLoopStopsAfterAck(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.ctrl.registerLoop(ctx) }()

	waitFor(t, func() bool { return env.session.registrationCount() == 1 })

	env.session.mu.Lock()
	req := env.session.registrations[0]
	env.session.mu.Unlock()
	if req.DeviceID != "dev1" {
		t.Errorf("DeviceID = %q", req.DeviceID)
	}
	if req.Display.Width != 1600 || req.Display.Height != 1200 {
		t.Errorf("capabilities = %+v", req.Display)
	}
	if req.Room != nil {
		t.Errorf("Room = %v, want nil when unconfigured", *req.Room)
	}

	env.ctrl.applyRegistration(bus.RegistrationAck{Status: bus.StatusRegistered})

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("registerLoop() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("registerLoop did not exit after acknowledgment")
	}

	if env.session.registrationCount() != 1 {
		t.Errorf("registrations = %d after ack, want 1", env.session.registrationCount())
	}
}

func TestRegisterLoopBackoffSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.session.registerErr = errors.New("broker gone")

	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}

	var mu sync.Mutex
	var delays []time.Duration
	env.ctrl.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, d)
		if len(delays) >= len(want) {
			return context.Canceled
		}
		return nil
	}

	err := env.ctrl.registerLoop(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("registerLoop() error = %v, want context.Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delays) != len(want) {
		t.Fatalf("recorded %d delays (%v), want %d", len(delays), delays, len(want))
	}
	for i, w := range want {
		if delays[i] != w {
			t.Errorf("delay #%d = %v, want %v", i, delays[i], w)
		}
		if i > 0 && delays[i] < delays[i-1] {
			t.Errorf("delay #%d = %v decreased from %v", i, delays[i], delays[i-1])
		}
	}
}

func TestRegisterLoopCancelled(t *testing.T) {
	env := newTestEnv(t)
	env.session.registerErr = errors.New("broker gone")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.ctrl.registerLoop(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("registerLoop() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("registerLoop did not return after cancellation")
	}
}

func TestRunCleanShutdown(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.ctrl.Run(ctx) }()

	waitFor(t, func() bool { return env.session.registrationCount() >= 1 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRoomIncludedWhenConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.ctrl.cfg.Device.Room = "kitchen"

	req := env.ctrl.buildRegistrationRequest()
	if req.Room == nil || *req.Room != "kitchen" {
		t.Errorf("Room = %v, want kitchen", req.Room)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
