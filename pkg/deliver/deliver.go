// Package deliver routes the day's rendered TV variants to the configured
// delivery mode: usb exchange image, network art-mode upload, or disabled.
package deliver

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"bingwall/pkg/config"
)

// Mode is the configured TV delivery transport.
type Mode string

const (
	ModeUSB      Mode = "usb"
	ModeNetwork  Mode = "network"
	ModeDisabled Mode = "disabled"
)

// ModeFor maps the ftv config toggles to a delivery mode.
func ModeFor(ftv config.FTV) Mode {
	switch {
	case !ftv.Enabled:
		return ModeDisabled
	case ftv.USBMode:
		return ModeUSB
	default:
		return ModeNetwork
	}
}

// Error is a delivery failure tagged with the mode it occurred under.
// Delivery errors are recoverable; the next cycle retries them.
type Error struct {
	Mode Mode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Mode, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TVUploader pushes the day's images to the configured Frame TVs.
type TVUploader interface {
	ChangeDailyImages(ctx context.Context, files []string) (int, error)
}

// Dispatcher hands staged files to the transport for the active mode.
type Dispatcher struct {
	mode Mode
	usb  *USB
	tv   TVUploader
	log  *logrus.Entry
}

func New(mode Mode, usb *USB, tv TVUploader, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{mode: mode, usb: usb, tv: tv, log: log}
}

// Mode returns the dispatcher's active delivery mode.
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// Deliver routes the staged files. Disabled mode is a no-op with no side
// effects. Success in usb mode means a verified copy into the exchange
// image, not that the TV has consumed it.
func (d *Dispatcher) Deliver(ctx context.Context, files []string) error {
	switch d.mode {
	case ModeDisabled:
		return nil
	case ModeUSB:
		if err := d.usb.Deliver(ctx, files); err != nil {
			return &Error{Mode: ModeUSB, Err: err}
		}
		d.log.WithField("files", len(files)).Info("delivered images to usb exchange")
		return nil
	case ModeNetwork:
		count, err := d.tv.ChangeDailyImages(ctx, files)
		if err != nil {
			return &Error{Mode: ModeNetwork, Err: err}
		}
		d.log.WithFields(logrus.Fields{"files": len(files), "tvs": count}).Info("delivered images to frame TVs")
		return nil
	default:
		return &Error{Mode: d.mode, Err: fmt.Errorf("unknown delivery mode %q", d.mode)}
	}
}
