package agent

import (
	"context"
	"time"

	"github.com/oakdene/inky-agent/internal/bus"
)

// Registration timing. The request is cheap to resend, so the backoff
// starts higher than the connection backoff and the ack wait matches
// the bus publish wait.
const (
	registrationAckWait        = 30 * time.Second
	registrationInitialBackoff = 10 * time.Second
	registrationMaxBackoff     = 60 * time.Second
)

// registerLoop announces the device until the coordinator acknowledges
// it, then exits. The request is built once and resent verbatim; the
// coordinator deduplicates on device_id.
//
// Late or duplicate acknowledgments after the loop exits are still
// applied by the ack handler, so a coordinator restart that re-issues
// credentials is picked up without re-announcing.
func (c *Controller) registerLoop(ctx context.Context) error {
	req := c.buildRegistrationRequest()
	backoff := registrationInitialBackoff

	for {
		if err := c.session.PublishRegistration(ctx, req); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("registration publish failed",
				"error", err,
				"retry_in", backoff.String(),
			)
		} else {
			c.logger.Info("registration announced",
				"device_id", req.DeviceID,
				"width", req.Display.Width,
				"height", req.Display.Height,
			)
			if c.registered.wait(ctx, registrationAckWait) {
				c.logger.Info("registration complete", "device_id", req.DeviceID)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("registration not acknowledged",
				"waited", registrationAckWait.String(),
				"retry_in", backoff.String(),
			)
		}

		if err := c.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff *= 2
		if backoff > registrationMaxBackoff {
			backoff = registrationMaxBackoff
		}
	}
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// buildRegistrationRequest captures the device identity and panel
// capabilities. Room is null when not configured.
func (c *Controller) buildRegistrationRequest() bus.RegistrationRequest {
	var room *string
	if c.cfg.Device.Room != "" {
		r := c.cfg.Device.Room
		room = &r
	}

	return bus.RegistrationRequest{
		DeviceID: c.cfg.Device.ID,
		Display: bus.DisplayCapabilities{
			Width:       c.disp.Width(),
			Height:      c.disp.Height(),
			Orientation: c.cfg.Display.Orientation,
			Model:       c.disp.Model(),
		},
		Room: room,
	}
}
