package cache

import "time"

// run owns the passive cleanup timer. Instead of polling at a fixed fine
// interval it sleeps until the earliest entry is due for eviction, bounded
// by the configured floor and ceiling.
func (s *Store) run() {
	defer s.waitGroup.Done()
	timer := time.NewTimer(s.schedule())
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.nudge:
			timer.Reset(s.schedule())
		case <-timer.C:
			s.sweep()
			timer.Reset(s.schedule())
		}
	}
}

// wake asks the cleanup goroutine to recompute its deadline.
func (s *Store) wake() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// schedule computes the delay until the next sweep and records its deadline.
func (s *Store) schedule() time.Duration {
	now := s.cfg.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	delay := s.cfg.cleanupInterval
	if s.order.Len() > 0 {
		var earliest time.Time
		for el := s.order.Front(); el != nil; el = el.Next() {
			at := el.Value.(*item).entry.evictAt()
			if earliest.IsZero() || at.Before(earliest) {
				earliest = at
			}
		}
		delay = earliest.Sub(now)
		if delay < s.cfg.cleanupFloor {
			delay = s.cfg.cleanupFloor
		}
		if delay > s.cfg.cleanupCeiling {
			delay = s.cfg.cleanupCeiling
		}
	}
	s.nextSweep = now.Add(delay)
	return delay
}

// sweep removes every entry past its cacheTime.
func (s *Store) sweep() int {
	now := s.cfg.now()
	s.mu.Lock()
	var pending []notification
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		it := el.Value.(*item)
		if it.entry.ShouldEvictAt(now) {
			s.unlinkLocked(el)
			s.expirations++
			pending = append(pending, s.pendingLocked(it.key, nil))
		}
		el = next
	}
	s.mu.Unlock()
	for range pending {
		s.cfg.metrics.Expire()
	}
	if len(pending) > 0 {
		s.logger.Debug("swept %d expired entries", len(pending))
	}
	s.notify(pending...)
	return len(pending)
}
