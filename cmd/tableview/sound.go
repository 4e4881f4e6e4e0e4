package main

import (
	"math"
	"sort"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.com/playpool/billiards/internal/physics"
)

const (
	sampleRate     = beep.SampleRate(44100)
	clickDuration  = 40 * time.Millisecond
	maxClicksFrame = 3
)

// clicker turns impact magnitudes into short tones: high for ball on ball,
// low for cushions, louder for harder hits.
type clicker struct {
	mixer    *beep.Mixer
	maxSpeed float64
	enabled  bool
}

func newClicker(p physics.Params) *clicker {
	return &clicker{mixer: &beep.Mixer{}, maxSpeed: p.MaxShotSpeed}
}

func (c *clicker) init() error {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return err
	}
	speaker.Play(c.mixer)
	c.enabled = true
	return nil
}

func (c *clicker) close() {
	if !c.enabled {
		return
	}
	speaker.Lock()
	c.mixer.Clear()
	speaker.Unlock()
	c.enabled = false
}

// play sounds the hardest few impacts of a frame.
func (c *clicker) play(impacts []physics.Impact) {
	if !c.enabled || len(impacts) == 0 {
		return
	}
	hits := append([]physics.Impact(nil), impacts...)
	sort.Slice(hits, func(i, j int) bool { return hits[i].Magnitude > hits[j].Magnitude })
	if len(hits) > maxClicksFrame {
		hits = hits[:maxClicksFrame]
	}

	speaker.Lock()
	defer speaker.Unlock()
	for _, h := range hits {
		if s := c.tone(h); s != nil {
			c.mixer.Add(s)
		}
	}
}

func (c *clicker) tone(h physics.Impact) beep.Streamer {
	freq := 1200.0
	if h.Kind == physics.ImpactCushion {
		freq = 240
	}
	sine, err := generators.SineTone(sampleRate, freq)
	if err != nil {
		return nil
	}
	vol := clickVolume(h.Magnitude, c.maxSpeed)
	if vol <= 0 {
		return nil
	}
	return &effects.Volume{
		Streamer: beep.Take(sampleRate.N(clickDuration), sine),
		Base:     2,
		Volume:   math.Log2(vol),
	}
}

// clickVolume maps an impact speed to a linear gain in (0, 0.5].
func clickVolume(magnitude, maxSpeed float64) float64 {
	if magnitude <= 0 || maxSpeed <= 0 {
		return 0
	}
	return 0.5 * math.Min(1, magnitude/maxSpeed)
}
