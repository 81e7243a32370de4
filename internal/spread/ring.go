package spread

// ring is a fixed-size buffer of spread values.
// head points to the next write slot; once full it also points to the oldest value.
type ring struct {
	values []float64
	head   int
	count  int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{values: make([]float64, capacity)}
}

func (r *ring) push(v float64) {
	r.values[r.head] = v
	r.head = (r.head + 1) % len(r.values)
	if r.count < len(r.values) {
		r.count++
	}
}

func (r *ring) len() int {
	return r.count
}

// ordered returns the buffered values oldest first.
func (r *ring) ordered() []float64 {
	out := make([]float64, r.count)
	start := r.head - r.count
	if start < 0 {
		start += len(r.values)
	}
	for i := 0; i < r.count; i++ {
		out[i] = r.values[(start+i)%len(r.values)]
	}
	return out
}

func (r *ring) reset() {
	r.head = 0
	r.count = 0
}
