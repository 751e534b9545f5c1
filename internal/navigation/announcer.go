package navigation

import (
	"math"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/routing"
)

// Guidance defaults.
const (
	DefaultPreviewMinMeters = 260
	DefaultPreviewMaxMeters = 340
	DefaultExecuteMeters    = 40
	DefaultMinSpeechGap     = 3500 * time.Millisecond
	DefaultPreviewRounding  = 50
)

// AnnouncerConfig tunes when instructions are spoken.
type AnnouncerConfig struct {
	// PreviewMinMeters and PreviewMaxMeters bound the pre-announcement band
	// (default: 260 to 340).
	PreviewMinMeters float64
	PreviewMaxMeters float64
	// ExecuteMeters is the distance at or below which the instruction itself
	// is spoken (default: 40).
	ExecuteMeters float64
	// MinInterval is the minimum time between two announcements of any step
	// (default: 3.5s).
	MinInterval time.Duration
	// PreviewRoundingMeters rounds the distance spoken in pre-announcements
	// (default: 50).
	PreviewRoundingMeters float64
	// PreviewFormat renders a pre-announcement from a rounded distance and an
	// instruction. Defaults to "In 300 meters, turn right".
	PreviewFormat func(meters int, instruction string) string
}

func (c AnnouncerConfig) withDefaults() AnnouncerConfig {
	if c.PreviewMinMeters <= 0 {
		c.PreviewMinMeters = DefaultPreviewMinMeters
	}
	if c.PreviewMaxMeters <= c.PreviewMinMeters {
		c.PreviewMaxMeters = math.Max(DefaultPreviewMaxMeters, c.PreviewMinMeters+1)
	}
	if c.ExecuteMeters <= 0 {
		c.ExecuteMeters = DefaultExecuteMeters
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinSpeechGap
	}
	if c.PreviewRoundingMeters <= 0 {
		c.PreviewRoundingMeters = DefaultPreviewRounding
	}
	if c.PreviewFormat == nil {
		c.PreviewFormat = englishPreview
	}
	return c
}

func englishPreview(meters int, instruction string) string {
	return "In " + strconv.Itoa(meters) + " meters, " + lowerFirst(instruction)
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// stepKey identifies a step across route replacements.
type stepKey struct {
	index       int
	anchor      geometry.Coordinate
	instruction string
}

type stepMemory struct {
	preAnnounced   bool
	finalAnnounced bool
	lastDistance   float64
	seen           bool
}

// Announcer decides which instruction to speak for each position. It is not
// safe for concurrent use.
type Announcer struct {
	cfg    AnnouncerConfig
	memory map[stepKey]*stepMemory
	// retiredBelow is the lowest step index still eligible.
	retiredBelow int
	lastSpoken   time.Time
}

// NewAnnouncer creates an announcer.
func NewAnnouncer(cfg AnnouncerConfig) *Announcer {
	return &Announcer{
		cfg:    cfg.withDefaults(),
		memory: make(map[stepKey]*stepMemory),
	}
}

// Reset forgets every step. It is called whenever the route is replaced.
// The inter-announcement interval still applies across a reset.
func (a *Announcer) Reset() {
	a.memory = make(map[stepKey]*stepMemory)
	a.retiredBelow = 0
}

// Evaluate returns the announcement due at position, if any. Steps before
// activeStep are retired and never spoken again. Among the remaining steps
// not yet finally announced, the one whose anchor is nearest is considered.
//
// A pre-announcement fires once when the distance to that anchor is inside
// the preview band and closer than the previous sample. The final announcement
// fires once at or below the execute distance. Announcements suppressed by the
// minimum interval stay pending and may fire on a later sample.
func (a *Announcer) Evaluate(steps []routing.Step, activeStep int, position geometry.Coordinate, now time.Time) (Announcement, bool) {
	if activeStep < 0 || activeStep >= len(steps) {
		return Announcement{}, false
	}
	a.retire(steps, activeStep)

	idx, dist := -1, math.Inf(1)
	for i := max(activeStep, a.retiredBelow); i < len(steps); i++ {
		if m, ok := a.memory[keyOf(i, steps[i])]; ok && m.finalAnnounced {
			continue
		}
		if d := geometry.Haversine(position, steps[i].Anchor); d < dist {
			idx, dist = i, d
		}
	}
	if idx < 0 {
		return Announcement{}, false
	}

	step := steps[idx]
	mem := a.remember(keyOf(idx, step))
	defer func() {
		mem.lastDistance, mem.seen = dist, true
	}()

	throttled := !a.lastSpoken.IsZero() && now.Sub(a.lastSpoken) < a.cfg.MinInterval

	switch {
	case dist <= a.cfg.ExecuteMeters:
		if throttled {
			return Announcement{}, false
		}
		mem.finalAnnounced, mem.preAnnounced = true, true
		a.lastSpoken = now
		return Announcement{Kind: AnnouncementExecute, StepIndex: idx, Text: step.Instruction, At: now}, true

	case dist >= a.cfg.PreviewMinMeters && dist <= a.cfg.PreviewMaxMeters:
		approaching := !mem.seen || dist < mem.lastDistance
		if mem.preAnnounced || !approaching || throttled {
			return Announcement{}, false
		}
		mem.preAnnounced = true
		a.lastSpoken = now
		return Announcement{
			Kind:      AnnouncementPreview,
			StepIndex: idx,
			Text:      a.cfg.PreviewFormat(a.roundedDistance(dist), step.Instruction),
			At:        now,
		}, true
	}

	return Announcement{}, false
}

func (a *Announcer) roundedDistance(d float64) int {
	r := a.cfg.PreviewRoundingMeters
	return int(math.Round(d/r) * r)
}

// retire drops memory for steps the position has moved past.
func (a *Announcer) retire(steps []routing.Step, activeStep int) {
	if activeStep <= a.retiredBelow {
		return
	}
	for i := a.retiredBelow; i < activeStep && i < len(steps); i++ {
		delete(a.memory, keyOf(i, steps[i]))
	}
	a.retiredBelow = activeStep
}

func (a *Announcer) remember(k stepKey) *stepMemory {
	m, ok := a.memory[k]
	if !ok {
		m = &stepMemory{}
		a.memory[k] = m
	}
	return m
}

func keyOf(i int, s routing.Step) stepKey {
	return stepKey{index: i, anchor: s.Anchor, instruction: s.Instruction}
}
