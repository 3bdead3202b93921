package session

import (
	"time"

	"github.com/pierky/nat64d/internal/nat64/logging"
)

// Sweeper periodically removes expired sessions from a Table: a
// ticker-driven goroutine with a stop channel and a done channel the
// caller can wait on, generalized from a single flat flow timeout to the
// table's per-protocol deadline heaps. The interval is retuned after
// every pass to wake up again close to the next actual deadline instead of
// polling at a constant cadence.
type Sweeper struct {
	table  *Table
	logger *logging.Logger

	minInterval time.Duration
	maxInterval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSweeper builds a Sweeper over table. minInterval is the shortest sleep
// between passes, even when a deadline is already due; maxInterval is the
// longest, used when the table is empty or the next deadline is further off.
func NewSweeper(table *Table, logger *logging.Logger, minInterval, maxInterval time.Duration) *Sweeper {
	return &Sweeper{
		table:       table,
		logger:      logger,
		minInterval: minInterval,
		maxInterval: maxInterval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start runs the sweeper loop in its own goroutine.
func (sw *Sweeper) Start() {
	go sw.run()
}

// Stop signals the loop to exit and blocks until it has.
func (sw *Sweeper) Stop() {
	select {
	case <-sw.stopCh:
	default:
		close(sw.stopCh)
	}
	<-sw.doneCh
}

func (sw *Sweeper) run() {
	defer close(sw.doneCh)

	timer := time.NewTimer(sw.minInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			n := sw.table.Sweep(time.Now())
			if n > 0 {
				sw.logger.Debug("swept expired sessions", "count", n)
			}
			timer.Reset(sw.nextInterval())
		case <-sw.stopCh:
			return
		}
	}
}

// nextInterval picks how long to sleep until the next sweep pass, based on
// the earliest deadline currently pending across all protocols.
func (sw *Sweeper) nextInterval() time.Duration {
	earliest, ok := sw.table.earliestDeadline()
	if !ok {
		return sw.maxInterval
	}

	d := time.Until(earliest)
	if d < sw.minInterval {
		return sw.minInterval
	}
	if d > sw.maxInterval {
		return sw.maxInterval
	}
	return d
}
