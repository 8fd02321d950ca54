package dmx

import (
	"math"
	"testing"
	"time"
)

func TestFPSMeter(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		counts   []uint64
		want     []float64
	}{
		{
			name:     "steady 44 fps",
			interval: 2 * time.Second,
			counts:   []uint64{88, 176, 264},
			want:     []float64{44, 44, 44},
		},
		{
			name:     "idle reports zero",
			interval: 2 * time.Second,
			counts:   []uint64{0, 0, 0},
			want:     []float64{0, 0, 0},
		},
		{
			name:     "resume after idle",
			interval: 2 * time.Second,
			counts:   []uint64{88, 88, 88, 100},
			want:     []float64{44, 0, 0, 6},
		},
		{
			name:     "counter reset rebases mark",
			interval: time.Second,
			counts:   []uint64{500, 20},
			want:     []float64{500, 20},
		},
		{
			name:     "fractional interval",
			interval: 500 * time.Millisecond,
			counts:   []uint64{11},
			want:     []float64{22},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fpsMeter{interval: tt.interval}
			for i, count := range tt.counts {
				got := m.sample(count)
				if math.Abs(got-tt.want[i]) > 1e-9 {
					t.Errorf("sample %d (count %d) = %v, want %v", i, count, got, tt.want[i])
				}
			}
		})
	}
}

func TestFPSMeter_IdleKeepsMark(t *testing.T) {
	m := fpsMeter{interval: 2 * time.Second}
	m.sample(88)
	if m.mark != 88 {
		t.Fatalf("mark = %d, want 88", m.mark)
	}
	m.sample(88)
	if m.mark != 88 {
		t.Errorf("idle sample moved mark to %d", m.mark)
	}
}

func TestStatsLoop_PublishesSnapshots(t *testing.T) {
	got := make(chan Stats, 4)
	e, err := NewEngine(Config{
		StatsInterval: 20 * time.Millisecond,
		OnStats:       func(s Stats) { got <- s },
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	e.framesSent.Store(10)
	stop := make(chan struct{})
	done := make(chan struct{})
	go e.statsLoop(stop, done)

	select {
	case s := <-got:
		if s.FramesSent != 10 {
			t.Errorf("FramesSent = %d, want 10", s.FramesSent)
		}
		if math.Abs(s.FPS-500) > 1e-9 {
			t.Errorf("FPS = %v, want 500", s.FPS)
		}
	case <-time.After(time.Second):
		t.Fatal("no stats published")
	}

	close(stop)
	<-done
}
