package agent

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oakdene/inky-agent/internal/bus"
	"github.com/oakdene/inky-agent/internal/display"
	"github.com/oakdene/inky-agent/internal/history"
	"github.com/oakdene/inky-agent/internal/imagestore"
	"github.com/oakdene/inky-agent/internal/infrastructure/config"
	"github.com/oakdene/inky-agent/internal/telemetry"
)

// commandQueueSize buffers commands between the broker delivery path
// and the dispatch loop. The enqueue blocks when full, which applies
// backpressure to broker delivery instead of dropping commands.
const commandQueueSize = 16

// Session is the bus surface the controller needs. Satisfied by
// *bus.Session, which closes itself when its Run returns.
type Session interface {
	Run(ctx context.Context) error
	PublishRegistration(ctx context.Context, req bus.RegistrationRequest) error
	PublishAcknowledge(ctx context.Context, ack bus.Acknowledgment) error
}

// ImageSource is the object-store surface the controller needs.
// Satisfied by *imagestore.Store.
type ImageSource interface {
	Configure(creds imagestore.Credentials) error
	Configured() bool
	Fetch(ctx context.Context, path string) (image.Image, error)
}

// Logger is the logging interface for the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SessionFactory builds the bus session once the controller's inbound
// handlers exist. Breaks the construction cycle between the two.
type SessionFactory func(handlers bus.Handlers) Session

// Options carries the controller's dependencies.
type Options struct {
	Config     *config.Config
	Display    display.Display
	Store      ImageSource
	NewSession SessionFactory

	// Telemetry and History are optional; nil disables them.
	Telemetry *telemetry.Client
	History   *history.Log

	Logger Logger
}

// Controller is the agent's core: it owns the registration state, the
// command queue, and the single dispatch loop that drives the panel.
type Controller struct {
	cfg     *config.Config
	session Session
	disp    display.Display
	store   ImageSource
	metrics *telemetry.Client
	log     *history.Log
	logger  Logger

	commands   chan bus.Command
	registered *latch

	// currentImageID is the image the panel is showing, nil when blank.
	// Touched only from the dispatch loop.
	currentImageID *string

	// done closes when Run exits, releasing blocked enqueues.
	done chan struct{}

	// sleep is overridable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates the controller and its bus session.
func New(opts Options) *Controller {
	c := &Controller{
		cfg:        opts.Config,
		disp:       opts.Display,
		store:      opts.Store,
		metrics:    opts.Telemetry,
		log:        opts.History,
		logger:     opts.Logger,
		commands:   make(chan bus.Command, commandQueueSize),
		registered: newLatch(),
		done:       make(chan struct{}),
		sleep:      sleepContext,
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}

	c.session = opts.NewSession(bus.Handlers{
		OnCommand:         c.enqueueCommand,
		OnRegistrationAck: c.applyRegistration,
	})

	return c
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Run starts the bus session, the registration loop, and the dispatch
// loop, and blocks until ctx is cancelled or one of them fails.
//
// Context cancellation is a clean shutdown, not a fault; Run returns
// nil in that case.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.session.Run(ctx)
	})
	g.Go(func() error {
		return c.registerLoop(ctx)
	})
	g.Go(func() error {
		return c.dispatchLoop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Registered reports whether the coordinator has acknowledged this
// device.
func (c *Controller) Registered() bool {
	return c.registered.isSet()
}

// enqueueCommand hands an inbound command to the dispatch loop. Runs on
// the broker delivery path; blocks when the queue is full so commands
// are never dropped, and bails out on shutdown.
func (c *Controller) enqueueCommand(cmd bus.Command) {
	select {
	case c.commands <- cmd:
	case <-c.done:
		c.logger.Warn("command received during shutdown, discarding",
			"action", cmd.Action,
		)
	}
}

// applyRegistration handles a registration acknowledgment. Duplicates
// are applied idempotently: the store credentials are simply replaced.
func (c *Controller) applyRegistration(ack bus.RegistrationAck) {
	err := c.store.Configure(imagestore.Credentials{
		Endpoint:  ack.StoreEndpoint,
		Bucket:    ack.StoreBucket,
		AccessKey: ack.StoreAccessKey,
		SecretKey: ack.StoreSecretKey,
		Secure:    ack.StoreSecure,
	})
	if err != nil {
		c.logger.Error("applying store credentials failed",
			"status", ack.Status,
			"endpoint", ack.StoreEndpoint,
			"error", err,
		)
		return
	}

	c.registered.set()
	c.logger.Info("registration acknowledged",
		"status", ack.Status,
		"endpoint", ack.StoreEndpoint,
		"bucket", ack.StoreBucket,
	)
}

// dispatchLoop processes commands strictly one at a time in arrival
// order. Every command produces exactly one acknowledgment.
func (c *Controller) dispatchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.commands:
			ack := c.process(ctx, cmd)
			if err := c.session.PublishAcknowledge(ctx, ack); err != nil {
				c.logger.Warn("acknowledgment publish failed",
					"action", cmd.Action,
					"error", err,
				)
			}
		}
	}
}

// process executes one command and builds its acknowledgment. A panic
// in command handling is converted into a failure acknowledgment so a
// poisoned command cannot take the dispatch loop down.
func (c *Controller) process(ctx context.Context, cmd bus.Command) (ack bus.Acknowledgment) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("command handler panic recovered",
				"action", cmd.Action,
				"panic", r,
			)
			ack = c.buildAck(fmt.Errorf("internal error processing %q command", cmd.Action))
		}
		c.metrics.RecordCommand(cmd.Action, ack.Success, time.Since(start))
		c.recordHistory(ctx, cmd, ack)
	}()

	if cmd.Title != "" {
		c.logger.Info("processing command", "action", cmd.Action, "title", cmd.Title)
	} else {
		c.logger.Info("processing command", "action", cmd.Action)
	}

	var err error
	switch cmd.Action {
	case bus.ActionDisplay:
		err = c.handleDisplay(ctx, cmd)
	case bus.ActionClear:
		err = c.handleClear(ctx)
	case bus.ActionStatus:
		// Status reports current state; no panel or network I/O.
	default:
		err = fmt.Errorf("%w: unknown action %q", ErrValidation, cmd.Action)
	}

	if err != nil {
		c.logger.Warn("command failed", "action", cmd.Action, "error", err)
	}
	return c.buildAck(err)
}

// handleDisplay fetches the image and refreshes the panel. The current
// image changes only after a successful refresh.
func (c *Controller) handleDisplay(ctx context.Context, cmd bus.Command) error {
	if cmd.ImagePath == "" {
		return fmt.Errorf("%w: display command missing image_path", ErrValidation)
	}
	if cmd.ImageID == "" {
		return fmt.Errorf("%w: display command missing image_id", ErrValidation)
	}

	if !c.store.Configured() {
		return fmt.Errorf("%w: %w", ErrCommunication, imagestore.ErrNotConfigured)
	}

	img, err := c.store.Fetch(ctx, cmd.ImagePath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommunication, err)
	}

	refreshStart := time.Now()
	if err := c.disp.Show(ctx, img, c.cfg.Display.Saturation); err != nil {
		return fmt.Errorf("%w: %w", ErrDisplay, err)
	}
	c.metrics.RecordRefresh(time.Since(refreshStart))

	imageID := cmd.ImageID
	c.currentImageID = &imageID
	return nil
}

// handleClear blanks the panel. Clearing an already blank panel is a
// success.
func (c *Controller) handleClear(ctx context.Context) error {
	if err := c.disp.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDisplay, err)
	}
	c.currentImageID = nil
	return nil
}

// buildAck builds the acknowledgment from the current panel state.
func (c *Controller) buildAck(err error) bus.Acknowledgment {
	ack := bus.Acknowledgment{
		DeviceID: c.cfg.Device.ID,
		ImageID:  c.currentImageID,
		Success:  err == nil,
	}
	if err != nil {
		msg := err.Error()
		ack.Error = &msg
	}
	return ack
}

// recordHistory appends the command outcome to the local log.
func (c *Controller) recordHistory(ctx context.Context, cmd bus.Command, ack bus.Acknowledgment) {
	var imageID *string
	if cmd.ImageID != "" {
		id := cmd.ImageID
		imageID = &id
	}

	err := c.log.Record(ctx, history.Entry{
		ReceivedAt: time.Now(),
		Action:     cmd.Action,
		ImageID:    imageID,
		Success:    ack.Success,
		Error:      ack.Error,
	})
	if err != nil {
		c.logger.Warn("command history write failed", "error", err)
	}
}
