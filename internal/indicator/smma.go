package indicator

// wilder applies Wilder smoothing to xs[from:] seeded with the plain mean of
// xs[from:from+period]. The returned slice is aligned with xs: positions before
// from+period-1 are left at zero and ok is false when xs is too short.
func wilder(xs []float64, from, period int) (out []float64, ok bool) {
	if period <= 0 || len(xs)-from < period {
		return nil, false
	}
	out = make([]float64, len(xs))
	first := from + period - 1
	out[first] = mean(xs[from : first+1])
	p := float64(period)
	for i := first + 1; i < len(xs); i++ {
		// SMMA = (prev*(period-1) + x) / period
		out[i] = (out[i-1]*(p-1) + xs[i]) / p
	}
	return out, true
}
