package router

import "time"

// timerKey identifies one scheduled timer: the circuit slot it belongs to
// (0 for router-wide timers not tied to any one circuit) and which of
// that owner's timers it is. Re-scheduling an existing key replaces it;
// this is how a circuit's single recall timer, or its single DR-hello
// timer, stays a single timer no matter how many times its owner
// re-arms it.
type timerKey struct {
	slot int
	kind string
}

const (
	keyDRDelay     = "dr-delay"
	keyDRHello     = "dr-hello"
	keyRouterHello = "router-hello"
	keyRecall      = "recall"
	keyDdcmpLink   = "ddcmp-link"
	keyT1          = "t1"
	keyBCT1        = "bct1"
	keyUpdate      = "update"
	keyPurge       = "purge"
)

type timerEntry struct {
	key    timerKey
	expiry time.Time
	fire   func()
}

// scheduler is the router's timer wheel: a flat list of pending timers,
// found and fired by linear scan. Every EthInit/DdcmpInit/DdcmpLine
// schedule hook funnels through schedule; every matching cancel hook
// funnels through cancel, which schedule also reaches via the
// negative-seconds sentinel (scheduling a timer with seconds < 0 is
// exactly equivalent to cancelling it — no timer with a non-negative
// expiry ever needs that path, so it is reserved for cancellation).
// There is no global process-wide clock this package's tests can fix:
// now is an overridable field, matching adjacency.Table.Now.
type scheduler struct {
	now     func() time.Time
	entries []timerEntry
}

func newScheduler() *scheduler {
	return &scheduler{now: time.Now}
}

// schedule arms fire to run seconds from now under key, replacing
// whatever was previously scheduled under the same key. seconds < 0
// cancels key instead of scheduling anything.
func (s *scheduler) schedule(key timerKey, seconds int, fire func()) {
	s.cancel(key)
	if seconds < 0 {
		return
	}
	s.entries = append(s.entries, timerEntry{
		key:    key,
		expiry: s.now().Add(time.Duration(seconds) * time.Second),
		fire:   fire,
	})
}

// cancel removes key's timer, if any, linear-scanning the entry list.
func (s *scheduler) cancel(key timerKey) {
	for i, e := range s.entries {
		if e.key == key {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// tick fires and removes every entry whose expiry has passed. Firing
// happens after the entry list has been pruned, so a fire callback that
// re-schedules its own key (the common case for a periodic timer) never
// observes or disturbs the list mid-scan.
func (s *scheduler) tick() {
	now := s.now()
	due := s.entries[:0:0]
	remaining := s.entries[:0]
	for _, e := range s.entries {
		if now.Before(e.expiry) {
			remaining = append(remaining, e)
		} else {
			due = append(due, e)
		}
	}
	s.entries = remaining
	for _, e := range due {
		if e.fire != nil {
			e.fire()
		}
	}
}

// armRecurring arms a self-rearming periodic timer under key: fire runs,
// then key is rescheduled seconds out to run fire again, until something
// else cancels key.
func (s *scheduler) armRecurring(key timerKey, seconds int, fire func()) {
	var rearm func()
	rearm = func() {
		fire()
		s.schedule(key, seconds, rearm)
	}
	s.schedule(key, seconds, rearm)
}
