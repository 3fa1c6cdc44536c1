package game

import "time"

// Scheduler runs delayed callbacks. Sessions never sleep; every suspension
// goes through here so tests can drive time by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

type Timer interface {
	Stop() bool
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (realScheduler) Now() time.Time                          { return time.Now() }

// RealScheduler is backed by time.AfterFunc.
func RealScheduler() Scheduler { return realScheduler{} }

type timerKey string

const (
	timerComputer  timerKey = "computer"
	timerShutdown  timerKey = "shutdown"
	timerStartup   timerKey = "startup"
	timerBroadcast timerKey = "broadcast"
	timerSkip      timerKey = "skip"
)

type pendingTimer struct {
	gen   uint64
	timer Timer
}

// scheduleLocked replaces any pending task with the same key. The callback
// runs under s.mu and is dropped if the session was destroyed or the task
// was cancelled or replaced in the meantime.
func (s *Session) scheduleLocked(key timerKey, d time.Duration, fn func()) {
	s.cancelLocked(key)
	s.timerGen++
	gen := s.timerGen
	t := s.sched.AfterFunc(d, func() { s.fire(key, gen, fn) })
	s.timers[key] = pendingTimer{gen: gen, timer: t}
}

func (s *Session) cancelLocked(key timerKey) {
	if p, ok := s.timers[key]; ok {
		p.timer.Stop()
		delete(s.timers, key)
	}
}

func (s *Session) cancelAllLocked() {
	for k := range s.timers {
		s.cancelLocked(k)
	}
}

func (s *Session) pendingLocked(key timerKey) bool {
	_, ok := s.timers[key]
	return ok
}

func (s *Session) fire(key timerKey, gen uint64, fn func()) {
	s.mu.Lock()
	defer s.unlock()
	if s.destroyed {
		return
	}
	p, ok := s.timers[key]
	if !ok || p.gen != gen {
		return
	}
	delete(s.timers, key)
	fn()
}
