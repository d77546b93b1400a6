package train

import "math"

// Schedule yields a compounding sequence: start, start*c, start*c², ...
// clipped at stop.
type Schedule struct {
	start    float64
	stop     float64
	compound float64
	cur      float64
}

// Compounding creates a schedule growing from start toward stop by
// compound per step.
func Compounding(start, stop, compound float64) *Schedule {
	return &Schedule{start: start, stop: stop, compound: compound, cur: start}
}

// Next returns the current value and advances the schedule.
func (s *Schedule) Next() float64 {
	v := math.Min(s.cur, s.stop)
	s.cur *= s.compound
	return v
}

// Reset rewinds the schedule to its start value.
func (s *Schedule) Reset() { s.cur = s.start }

// Minibatch partitions [0, n) into consecutive [lo, hi) ranges whose
// sizes follow sched from its start. The last batch may be short.
func Minibatch(n int, sched *Schedule) [][2]int {
	sched.Reset()
	var out [][2]int
	for lo := 0; lo < n; {
		size := int(sched.Next())
		if size < 1 {
			size = 1
		}
		hi := min(lo+size, n)
		out = append(out, [2]int{lo, hi})
		lo = hi
	}
	return out
}
