package grid

// Parity selects which generation buffer is current. false means A is current and B is next;
// true means B is current and A is next. Every compute step flips it exactly once.
type Parity bool

// Flip returns the opposite parity.
func (p Parity) Flip() Parity {
	return !p
}

func (p Parity) String() string {
	if p {
		return "B"
	}
	return "A"
}
