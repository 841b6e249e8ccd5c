package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/rogov-ks/integrator/rwlock"
	"gitlab.com/rogov-ks/integrator/task"
	"gitlab.com/rogov-ks/integrator/throttle"
)

// sharedSlot hands tasks over through task.State guarded by rwlock.RWLock.
type sharedSlot struct {
	*env
	lock  *rwlock.RWLock
	state *task.State
}

func newSharedSlot(e *env) (*sharedSlot, error) {
	state, err := task.NewState(e.opts.TaskCount)
	if err != nil {
		return nil, err
	}
	return &sharedSlot{env: e, lock: rwlock.New(), state: state}, nil
}

func (s *sharedSlot) progress(ctx context.Context) (task.Counts, error) {
	var counts task.Counts
	err := s.lock.WithRead(ctx, func() error {
		counts = s.state.Counts()
		return nil
	})
	return counts, err
}

func (s *sharedSlot) generate(ctx context.Context) error {
	log := s.log.Named("generator")
	pacer, err := throttle.NewPacer(s.clock, s.opts.GenerateInterval)
	if err != nil {
		return err
	}
	src := newParamSource(s.opts.Seed)
	total := s.state.TaskCount()
	log.Debug("generator started", zap.Int("total", total), zap.Duration("interval", pacer.Interval()))

	for seq := 1; seq <= total; seq++ {
		if err := ctx.Err(); err != nil {
			s.stopped(log, "generator", err)
			return nil
		}

		// параметры считаем без блокировки
		p, err := src.next(seq)
		if err != nil {
			return err
		}

		var generated int
		err = s.lock.WithWrite(ctx, func() error {
			n, err := s.state.IncrementGenerated()
			if err != nil {
				return err
			}
			s.state.SetParams(p)
			generated = n
			return nil
		})
		if err != nil {
			if errors.Is(err, rwlock.ErrLockCancelled) {
				s.stopped(log, "generator", err)
			} else {
				s.reportViolation(log, err)
			}
			return nil
		}
		s.metrics.taskGenerated()
		log.Debug("task published",
			zap.Int("generated", generated),
			zap.Int("total", total),
			zap.Float64("left", p.Left),
			zap.Float64("right", p.Right),
			zap.Float64("step", p.Step),
		)

		if seq == total {
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			s.stopped(log, "generator", err)
			return nil
		}
	}
	log.Info("all tasks generated", zap.Int("total", total))
	return nil
}

func (s *sharedSlot) consume(ctx context.Context) error {
	log := s.log.Named("integrator")
	pacer, err := throttle.NewPacer(s.clock, s.opts.IntegrateInterval)
	if err != nil {
		return err
	}
	idle, err := throttle.NewBackoff(s.clock, s.opts.IdleBackoff, s.opts.IdleBackoffMax)
	if err != nil {
		return err
	}
	total := s.state.TaskCount()
	log.Debug("integrator started", zap.Int("total", total), zap.Duration("interval", pacer.Interval()))

	// сколько заданий взяли в работу, независимо от общего счётчика
	processedSoFar := 0
	for processedSoFar < total {
		if err := ctx.Err(); err != nil {
			s.stopped(log, "integrator", err)
			return nil
		}

		var (
			p     task.Params
			ready bool
		)
		err := s.lock.WithRead(ctx, func() error {
			if s.state.Generated() <= processedSoFar {
				return nil
			}
			p = s.state.Params()
			ready = true
			return nil
		})
		if err != nil {
			s.stopped(log, "integrator", err)
			return nil
		}
		if !ready {
			if err := idle.Wait(ctx); err != nil {
				s.stopped(log, "integrator", err)
				return nil
			}
			continue
		}
		idle.Reset()

		s.integrateTask(log, p)

		err = s.lock.WithWrite(ctx, func() error {
			processedSoFar++
			n, err := s.state.IncrementProcessed()
			if err != nil {
				return err
			}
			if n != processedSoFar {
				return &task.InvariantError{
					Reason: fmt.Sprintf("shared processed count %d differs from local %d", n, processedSoFar),
					Counts: s.state.Counts(),
				}
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, rwlock.ErrLockCancelled) {
				s.stopped(log, "integrator", err)
				return nil
			}
			s.reportViolation(log, err)
		} else {
			s.metrics.taskProcessed()
		}

		if processedSoFar == total {
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			s.stopped(log, "integrator", err)
			return nil
		}
	}
	log.Info("all tasks processed", zap.Int("total", total))
	return nil
}
