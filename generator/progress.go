package generator

// Progress mapping helpers. Each pipeline layer maps its child's 0..100
// progress into a sub-range of its parent's percentage; keeping these as pure
// functions keeps the composed reporting testable in isolation.

const (
	// loadingSpan is the share of overall progress assigned to artifact
	// loading; proving takes the remainder up to 100.
	loadingSpan = 30
)

// mapToParent maps a child percentage in [0, 100] into the parent range
// [lo, hi].
func mapToParent(child, lo, hi int) int {
	if child < 0 {
		child = 0
	} else if child > 100 {
		child = 100
	}
	return lo + child*(hi-lo)/100
}

// byteLoadingPercent computes the 0..100 progress of the loading phase from
// the bytes downloaded so far out of the total bytes that must be fetched.
func byteLoadingPercent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	p := int(done * 100 / total)
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	return p
}

// loadingPercent computes the 0..100 progress of the loading phase across the
// artifacts that must be fetched, weighting each artifact equally. It is the
// fallback when the store does not announce artifact sizes up front; completed
// is the number of fully fetched artifacts, toFetch the number that needed
// fetching, done/total the byte progress of the in-flight download (total may
// be 0 when unknown). Cache hits never reach this function: they count as
// instantaneous.
func loadingPercent(completed, toFetch int, done, total int64) int {
	if toFetch == 0 {
		return 100
	}
	fileFraction := 0
	if total > 0 {
		fileFraction = int(done * 100 / total)
		if fileFraction > 100 {
			fileFraction = 100
		}
	}
	return (completed*100 + fileFraction) / toFetch
}

// provingToOverall maps prover progress into the overall percentage.
func provingToOverall(p int) int {
	return mapToParent(p, loadingSpan, 100)
}

// loadingToOverall maps loading progress into the overall percentage.
func loadingToOverall(p int) int {
	return mapToParent(p, 0, loadingSpan)
}
