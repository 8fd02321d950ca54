package dmx

import (
	"math"
	"time"
)

// Stats is a snapshot of the engine counters.
type Stats struct {
	FPS           float64 `json:"fps"`
	FramesSent    uint64  `json:"framesSent"`
	FramesShort   uint64  `json:"framesShort"`
	BusyWaitTicks uint64  `json:"busyWaitTicks"` // µs spent waiting for the previous frame
}

// Stats returns the current counters. Values may lag by one stats interval.
func (e *Engine) Stats() Stats {
	return Stats{
		FPS:           e.FPS(),
		FramesSent:    e.framesSent.Load(),
		FramesShort:   e.framesShort.Load(),
		BusyWaitTicks: e.busyWait.Load(),
	}
}

// FPS returns the frame rate measured over the last stats interval.
func (e *Engine) FPS() float64 {
	return math.Float64frombits(e.fpsBits.Load())
}

func (e *Engine) resetStats() {
	e.framesSent.Store(0)
	e.framesShort.Store(0)
	e.busyWait.Store(0)
	e.fpsBits.Store(0)
}

// fpsMeter turns a monotonically increasing frame counter into a rate.
type fpsMeter struct {
	interval time.Duration
	mark     uint64
}

// sample returns frames per second since the previous sample. With no new
// frames it reports 0 and keeps the mark where it was.
func (m *fpsMeter) sample(count uint64) float64 {
	if count < m.mark {
		// Counters were reset underneath us.
		m.mark = 0
	}
	delta := count - m.mark
	if delta == 0 {
		return 0
	}
	m.mark = count
	return float64(delta) / m.interval.Seconds()
}

func (e *Engine) statsLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	meter := fpsMeter{interval: e.cfg.StatsInterval}
	ticker := time.NewTicker(e.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fps := meter.sample(e.framesSent.Load())
			e.fpsBits.Store(math.Float64bits(fps))
			if e.cfg.OnStats != nil {
				e.cfg.OnStats(e.Stats())
			}
		}
	}
}
