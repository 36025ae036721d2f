package projectm

// fpsMeter estimates the host's frame rate from the deltas it supplies.
// The estimate feeds the fps built-in presets read. Smoothed over ~0.5s so a
// single slow frame doesn't make equations jitter.
type fpsMeter struct {
	value float64
}

func (m *fpsMeter) tick(dt float64) float64 {
	if dt <= 0 {
		return m.value
	}
	inst := 1 / dt
	if m.value == 0 {
		m.value = inst
		return m.value
	}
	k := dt / 0.5
	if k > 1 {
		k = 1
	}
	m.value += (inst - m.value) * k
	return m.value
}
