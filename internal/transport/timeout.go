package transport

import "time"

// slidingTimer is an inactivity deadline that is pushed to "now + d" on every
// qualifying activity event rather than being fixed at turn start. It starts
// disarmed; Arm starts the countdown and Touch rearms it.
type slidingTimer struct {
	d     time.Duration
	timer *time.Timer
	armed bool
}

func newSlidingTimer(d time.Duration) *slidingTimer {
	return &slidingTimer{d: d}
}

// Arm starts the countdown. Arming an armed timer restarts it.
func (s *slidingTimer) Arm() {
	if s.d <= 0 {
		return
	}
	if s.timer == nil {
		s.timer = time.NewTimer(s.d)
		s.armed = true
		return
	}
	s.stopAndDrain()
	s.timer.Reset(s.d)
	s.armed = true
}

// Touch rearms the countdown. A touch before Arm is a no-op.
func (s *slidingTimer) Touch() {
	if !s.armed {
		return
	}
	s.stopAndDrain()
	s.timer.Reset(s.d)
}

// Stop disarms the timer.
func (s *slidingTimer) Stop() {
	if s.timer == nil {
		return
	}
	s.stopAndDrain()
	s.armed = false
}

// C returns the expiry channel; nil (never ready) while disarmed.
func (s *slidingTimer) C() <-chan time.Time {
	if !s.armed {
		return nil
	}
	return s.timer.C
}

func (s *slidingTimer) stopAndDrain() {
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
}
