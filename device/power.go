package device

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ardnew/eisusb/device/hal"
	"github.com/ardnew/eisusb/pkg"
)

// LinkPower tracks bus suspend and drives resume and remote wakeup.
//
// All methods except RequestWakeup and Suspended must be called from the
// controller loop.
type LinkPower struct {
	t hal.Transport

	suspended atomic.Bool
	wakeup    atomic.Bool

	wakeupTimeout time.Duration
	resumeTimeout time.Duration
	pollInterval  time.Duration
}

func newLinkPower(t hal.Transport, opts *options) *LinkPower {
	return &LinkPower{
		t:             t,
		wakeupTimeout: opts.wakeupTimeout,
		resumeTimeout: opts.resumeTimeout,
		pollInterval:  opts.pollInterval,
	}
}

// Suspended reports whether the bus is suspended. Safe for concurrent use.
func (l *LinkPower) Suspended() bool {
	return l.suspended.Load()
}

// RequestWakeup latches a remote-wakeup request. It is honored on the next
// resume check while suspended, if the host enabled remote wakeup. Safe for
// concurrent use.
func (l *LinkPower) RequestWakeup() {
	l.wakeup.Store(true)
}

// WakeupPending reports whether a remote-wakeup request is latched.
func (l *LinkPower) WakeupPending() bool {
	return l.wakeup.Load()
}

// suspend handles the suspend interrupt.
func (l *LinkPower) suspend() error {
	if err := l.t.WriteRegister(hal.RegUSBIRQ, hal.BitSUSP|hal.BitBUSACT); err != nil {
		return err
	}
	l.suspended.Store(true)
	pkg.LogInfo(pkg.ComponentLink, "bus suspended")
	return nil
}

// reset handles bus-reset completion.
func (l *LinkPower) reset() {
	l.suspended.Store(false)
}

// CheckResume runs one resume check while suspended: renewed bus activity
// returns the link to Active and reports hostResumed, otherwise a latched
// wakeup request is signaled when allowed. Bounded waits fail with
// [*pkg.TimeoutError].
func (l *LinkPower) CheckResume(ctx context.Context, remoteWakeup bool) (hostResumed bool, err error) {
	if !l.Suspended() {
		return false, nil
	}
	irq, err := l.t.ReadRegister(hal.RegUSBIRQ)
	if err != nil {
		return false, err
	}
	if irq&hal.BitBUSACT != 0 {
		l.suspended.Store(false)
		pkg.LogInfo(pkg.ComponentLink, "bus resumed by host")
		return true, nil
	}
	if !l.wakeup.Load() {
		return false, nil
	}
	l.wakeup.Store(false)
	if !remoteWakeup {
		pkg.LogDebug(pkg.ComponentLink, "wakeup request ignored, remote wakeup disabled by host")
		return false, nil
	}
	return false, l.signalWakeup(ctx)
}

func (l *LinkPower) signalWakeup(ctx context.Context) error {
	pkg.LogInfo(pkg.ComponentLink, "signaling remote wakeup")
	if err := hal.SetBits(l.t, hal.RegUSBCTL, hal.BitSIGRWU); err != nil {
		return err
	}
	if err := waitFor(ctx, l.t, hal.RegUSBIRQ, hal.BitRWUDN, l.wakeupTimeout, l.pollInterval, "remote wakeup signaling"); err != nil {
		_ = hal.ClearBits(l.t, hal.RegUSBCTL, hal.BitSIGRWU)
		return err
	}
	if err := hal.ClearBits(l.t, hal.RegUSBCTL, hal.BitSIGRWU); err != nil {
		return err
	}
	if err := l.t.WriteRegister(hal.RegUSBIRQ, hal.BitRWUDN); err != nil {
		return err
	}
	if err := sleep(ctx, wakeupSettle); err != nil {
		return err
	}
	if err := l.t.WriteRegister(hal.RegUSBIRQ, hal.BitBUSACT); err != nil {
		return err
	}
	if err := waitFor(ctx, l.t, hal.RegUSBIRQ, hal.BitBUSACT, l.resumeTimeout, l.pollInterval, "host resume"); err != nil {
		return err
	}
	l.suspended.Store(false)
	pkg.LogInfo(pkg.ComponentLink, "bus resumed after remote wakeup")
	return nil
}

// waitFor polls reg until any bit of mask is set, limit elapses, or ctx ends.
func waitFor(ctx context.Context, t hal.Transport, reg hal.Register, mask byte, limit, interval time.Duration, op string) error {
	deadline := time.Now().Add(limit)
	for {
		v, err := t.ReadRegister(reg)
		if err != nil {
			return err
		}
		if v&mask != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return &pkg.TimeoutError{Op: op, After: limit}
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
