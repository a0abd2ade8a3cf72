// Package lighting implements the LED safety and sequencing engine (C4):
// per-zone PWM duty control with a hard, non-bypassable 0.90 duty ceiling
// and redundant-write suppression.
package lighting

import (
	"log"
	"sync"
)

// hardDutyCeiling is the absolute maximum duty cycle any zone may ever be
// commanded to; it cannot be raised by configuration.
const hardDutyCeiling = 0.90

// redundantWriteThreshold: a write within this distance of the current
// duty is suppressed, except across the on/off boundary, which is always
// honoured.
const redundantWriteThreshold = 0.01

// onThreshold: a zone is considered "on" when its duty exceeds this value.
const onThreshold = 0.01

// PWMWriter is the hardware seam: one zone's PWM output. The production
// implementation wraps a periph.io/x/periph/conn/gpio.PinIO; a simulation
// implementation keeps a ledger with no hardware I/O.
type PWMWriter interface {
	SetDuty(duty float64) error
}

// Zone holds one LED zone's configuration and live state.
type Zone struct {
	ID           string
	MaxDutyCycle float64 // hard-capped to <= 0.90 at construction
	CurrentDuty  float64
	IsOn         bool
	LastUpdateNs int64
	writer       PWMWriter
}

// EventPublisher is the minimal bus surface the lighting controller needs.
type EventPublisher interface {
	Publish(kind string, data interface{})
}

// Controller owns every PWM zone; all writes are serialised through a
// single mutex so no two writes can overlap and no read-modify-write on
// zone state can race, with the redundant-write check performed inside
// the same lock.
type Controller struct {
	mu    sync.Mutex
	zones map[string]*Zone
	bus   EventPublisher
	log   *log.Logger
}

// NewController constructs a lighting controller. Any zone whose
// configured MaxDutyCycle exceeds the hard ceiling is clamped down to it
// at construction time — the clamp happens once, at config time, never at
// write time, where violations are always refused rather than clamped.
func NewController(zones map[string]PWMWriter, maxDuty map[string]float64, bus EventPublisher, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	c := &Controller{zones: make(map[string]*Zone, len(zones)), bus: bus, log: logger}
	for id, w := range zones {
		m := maxDuty[id]
		if m > hardDutyCeiling {
			m = hardDutyCeiling
		}
		c.zones[id] = &Zone{ID: id, MaxDutyCycle: m, writer: w}
	}
	return c
}

func (c *Controller) publish(kind string, data interface{}) {
	if c.bus != nil {
		c.bus.Publish(kind, data)
	}
}

// SetBrightness sets one zone's duty cycle. Rejected with a *SafetyError
// if duty exceeds the zone's max or the 0.90 hard ceiling; the hardware is
// never touched in that case. A write within 1% of the current duty is
// suppressed unless it crosses the on/off boundary, which is always
// honoured.
func (c *Controller) SetBrightness(zone string, duty float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[zone]
	if !ok {
		return &ZoneNotFoundError{Zone: zone}
	}
	if duty > hardDutyCeiling {
		c.publish("lighting.safety_violation", map[string]interface{}{"zone": zone, "duty": duty, "limit": hardDutyCeiling})
		return &SafetyError{Zone: zone, Duty: duty, Limit: hardDutyCeiling}
	}
	if duty > z.MaxDutyCycle {
		c.publish("lighting.safety_violation", map[string]interface{}{"zone": zone, "duty": duty, "limit": z.MaxDutyCycle})
		return &SafetyError{Zone: zone, Duty: duty, Limit: z.MaxDutyCycle}
	}

	wasOn := z.IsOn
	willBeOn := duty > onThreshold
	crossesBoundary := wasOn != willBeOn
	diff := duty - z.CurrentDuty
	if diff < 0 {
		diff = -diff
	}
	if !crossesBoundary && diff < redundantWriteThreshold {
		return nil
	}

	if err := z.writer.SetDuty(duty); err != nil {
		return err
	}
	z.CurrentDuty = duty
	z.IsOn = willBeOn
	return nil
}

// SetAll applies the same duty to every configured zone.
func (c *Controller) SetAll(duty float64) error {
	var firstErr error
	// intentionally iterates under the controller's own per-call locking in
	// SetBrightness rather than a single outer lock, matching the
	// serialised-per-write discipline the spec requires even for a
	// scan-wide broadcast.
	for id := range c.zones {
		if err := c.SetBrightness(id, duty); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Flash is the legacy timed-flash convenience: set, hold, return to zero.
// It is only used in legacy timed-flash mode; the orchestrator's
// per-point flash regime drives SetBrightness directly.
func (c *Controller) Flash(zones []string, duty float64, holdFunc func()) error {
	for _, z := range zones {
		if err := c.SetBrightness(z, duty); err != nil {
			return err
		}
	}
	if holdFunc != nil {
		holdFunc()
	}
	for _, z := range zones {
		if err := c.SetBrightness(z, 0); err != nil {
			return err
		}
	}
	return nil
}

// TurnOffAll sets every zone to zero duty.
func (c *Controller) TurnOffAll() error {
	return c.SetAll(0)
}

// EmergencyShutdown forces every channel to zero regardless of cached
// state and marks every zone off, bypassing the redundant-write check —
// this is the one path allowed to write even when the cache already
// believes the zone is off, since a cache can be wrong during an
// emergency.
func (c *Controller) EmergencyShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, z := range c.zones {
		z.writer.SetDuty(0)
		z.CurrentDuty = 0
		z.IsOn = false
	}
	c.publish("lighting.emergency_shutdown", nil)
}

// Snapshot returns a copy of a zone's current state for read-only callers.
func (c *Controller) Snapshot(zone string) (Zone, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z, ok := c.zones[zone]
	if !ok {
		return Zone{}, false
	}
	return *z, true
}
