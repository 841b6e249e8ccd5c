package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gitlab.com/rogov-ks/integrator/task"
	"gitlab.com/rogov-ks/integrator/throttle"
)

// channelRun passes immutable task snapshots over a buffered channel.
// Nothing is overwritten, so every generated task gets processed.
type channelRun struct {
	*env
	tasks chan task.Params

	mu     sync.RWMutex
	counts task.Counts
}

func newChannelRun(e *env) *channelRun {
	return &channelRun{
		env:    e,
		tasks:  make(chan task.Params, 1),
		counts: task.Counts{Total: e.opts.TaskCount},
	}
}

func (c *channelRun) progress(ctx context.Context) (task.Counts, error) {
	if err := ctx.Err(); err != nil {
		return task.Counts{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts, nil
}

// markGenerated raises the generated counter to seq. Both workers call it:
// the integrator may receive a task before the generator gets to count it.
func (c *channelRun) markGenerated(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts.Generated = max(c.counts.Generated, seq)
}

func (c *channelRun) markProcessed() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts.Processed >= c.counts.Generated {
		return 0, &task.InvariantError{
			Reason: fmt.Sprintf("processed would exceed generated %d", c.counts.Generated),
			Counts: c.counts,
		}
	}
	c.counts.Processed++
	return c.counts.Processed, nil
}

func (c *channelRun) generate(ctx context.Context) error {
	defer close(c.tasks)

	log := c.log.Named("generator")
	pacer, err := throttle.NewPacer(c.clock, c.opts.GenerateInterval)
	if err != nil {
		return err
	}
	src := newParamSource(c.opts.Seed)
	total := c.opts.TaskCount
	log.Debug("generator started", zap.Int("total", total), zap.Duration("interval", pacer.Interval()))

	for seq := 1; seq <= total; seq++ {
		if err := ctx.Err(); err != nil {
			c.stopped(log, "generator", err)
			return nil
		}
		p, err := src.next(seq)
		if err != nil {
			return err
		}

		select {
		case c.tasks <- p:
		case <-ctx.Done():
			c.stopped(log, "generator", ctx.Err())
			return nil
		}
		c.markGenerated(seq)
		c.metrics.taskGenerated()
		log.Debug("task sent", zap.Int("seq", seq), zap.Int("total", total))

		if seq == total {
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			c.stopped(log, "generator", err)
			return nil
		}
	}
	log.Info("all tasks generated", zap.Int("total", total))
	return nil
}

func (c *channelRun) consume(ctx context.Context) error {
	log := c.log.Named("integrator")
	pacer, err := throttle.NewPacer(c.clock, c.opts.IntegrateInterval)
	if err != nil {
		return err
	}
	total := c.opts.TaskCount
	log.Debug("integrator started", zap.Int("total", total), zap.Duration("interval", pacer.Interval()))

	for processed := 0; processed < total; {
		if err := ctx.Err(); err != nil {
			c.stopped(log, "integrator", err)
			return nil
		}

		var p task.Params
		select {
		case next, ok := <-c.tasks:
			if !ok {
				log.Info("generator finished early", zap.Int("processed", processed))
				return nil
			}
			p = next
		case <-ctx.Done():
			c.stopped(log, "integrator", ctx.Err())
			return nil
		}
		c.markGenerated(p.Seq)

		c.integrateTask(log, p)

		n, err := c.markProcessed()
		if err != nil {
			c.reportViolation(log, err)
		} else {
			processed = n
			c.metrics.taskProcessed()
		}
		if processed == total {
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			c.stopped(log, "integrator", err)
			return nil
		}
	}
	log.Info("all tasks processed", zap.Int("total", total))
	return nil
}
