package permission

// Mask is a growable permission bitmask. A mask with the all flag set
// answers true for every bit, including bits registered later.
type Mask struct {
	words []uint64
	all   bool
}

// Set marks bit as granted. Negative bits are ignored.
func (m *Mask) Set(bit int) {
	if bit < 0 {
		return
	}
	idx := bit / 64
	for len(m.words) <= idx {
		m.words = append(m.words, 0)
	}
	m.words[idx] |= 1 << uint(bit%64)
}

// Has reports whether bit is granted.
func (m *Mask) Has(bit int) bool {
	if m == nil {
		return false
	}
	if m.all {
		return true
	}
	if bit < 0 {
		return false
	}
	idx := bit / 64
	if idx >= len(m.words) {
		return false
	}
	return m.words[idx]&(1<<uint(bit%64)) != 0
}

// SetAll grants every permission.
func (m *Mask) SetAll() {
	m.all = true
}

// All reports whether the mask is a wildcard grant.
func (m *Mask) All() bool {
	return m != nil && m.all
}
