package logic

// Blinker divides a free-running tick into LED toggles.
// The tick source stays armed; Enable/Disable gate the counting the way a
// timer prescaler gate would.
type Blinker struct {
	halfPeriod int // ticks between toggles
	divisor    int
	enabled    bool
}

// NewBlinker creates a blinker that toggles every halfPeriod ticks.
// A halfPeriod below 1 is treated as 1.
func NewBlinker(halfPeriod int) *Blinker {
	if halfPeriod < 1 {
		halfPeriod = 1
	}
	return &Blinker{halfPeriod: halfPeriod}
}

// SetEnabled starts or stops counting. The divisor is kept across a
// disable/enable cycle.
func (b *Blinker) SetEnabled(enabled bool) {
	b.enabled = enabled
}

// Enabled reports whether the blinker is counting.
func (b *Blinker) Enabled() bool {
	return b.enabled
}

// Tick advances the divisor by one tick and reports whether the LED should
// be inverted now. Disabled blinkers never toggle.
func (b *Blinker) Tick() bool {
	if !b.enabled {
		return false
	}
	b.divisor++
	if b.divisor < b.halfPeriod {
		return false
	}
	b.divisor = 0
	return true
}
