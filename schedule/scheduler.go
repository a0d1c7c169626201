// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package schedule

import (
	"sync"

	"github.com/luxfi/optionpool/calibration"
)

// Scheduler owns at most one Schedule for one pool. It is safe for
// concurrent use.
type Scheduler struct {
	mu       sync.RWMutex
	initial  calibration.Weights
	schedule *Schedule
}

// New returns an idle scheduler that reports initial until a schedule is
// installed.
func New(initial calibration.Weights) (*Scheduler, error) {
	if err := initial.Validate(); err != nil {
		return nil, ErrInvalidWeights
	}
	return &Scheduler{initial: initial}, nil
}

// Install replaces any existing schedule.
func (s *Scheduler) Install(begin, final calibration.Weights, beginBlock, finalBlock uint64) error {
	next := Schedule{
		Begin:      begin,
		Final:      final,
		BeginBlock: beginBlock,
		FinalBlock: finalBlock,
	}
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = &next
	return nil
}

// Restore reinstalls a previously persisted schedule.
func (s *Scheduler) Restore(sched Schedule) error {
	return s.Install(sched.Begin, sched.Final, sched.BeginBlock, sched.FinalBlock)
}

// Current returns the weights at block now.
func (s *Scheduler) Current(now uint64) calibration.Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.schedule == nil {
		return s.initial
	}
	return s.schedule.At(now)
}

// State reports Scheduled while now is before the final block.
func (s *Scheduler) State(now uint64) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.schedule == nil || now >= s.schedule.FinalBlock {
		return Idle
	}
	return Scheduled
}

// Active returns the installed schedule, if any.
func (s *Scheduler) Active() (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.schedule == nil {
		return Schedule{}, false
	}
	return *s.schedule, true
}

// Initial returns the weights reported before any schedule.
func (s *Scheduler) Initial() calibration.Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initial
}
