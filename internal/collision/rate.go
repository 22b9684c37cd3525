package collision

// MaxSkip bounds the ticks a quiet triangle goes untested.
const MaxSkip = 12

// RateLimiter throttles the tests of one collision triangle. A triangle
// whose widened query comes back empty is skipped for a growing number of
// ticks; any candidate nearby puts it back on every tick. Callers widen the
// query by the distance the fastest node can close over MaxSkip+1 ticks, so
// skipping never lets a contact through.
type RateLimiter struct {
	skip  int
	quiet int
}

// Due reports whether the triangle is tested this tick.
func (r *RateLimiter) Due() bool {
	if r.skip > 0 {
		r.skip--
		return false
	}
	return true
}

// Quiet records an empty query.
func (r *RateLimiter) Quiet() {
	r.quiet = min(r.quiet+1, MaxSkip)
	r.skip = r.quiet
}

// Active records candidates near the triangle.
func (r *RateLimiter) Active() {
	r.quiet, r.skip = 0, 0
}

// Skipping returns the ticks left before the next test.
func (r *RateLimiter) Skipping() int { return r.skip }
