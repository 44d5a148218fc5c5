package recovery

import "time"

const (
	defaultFirstDelay = 2 * time.Second
	defaultMaxDelay   = time.Minute

	maxDelay = time.Duration(1 << 62)
)

// Policy spaces retries of failed scan cycles. The wait doubles with every
// consecutive failure, starting at FirstDelay and capped at MaxDelay.
type Policy struct {
	FirstDelay  time.Duration
	MaxDelay    time.Duration
	MaxFailures int // zero retries transient failures forever
	Classify    Classifier
}

// ScanPolicy retries transient failures forever. The first wait is the scan
// interval or 2s, whichever is shorter; errors matching permanent stop the loop.
func ScanPolicy(interval time.Duration, permanent ...error) *Policy {
	first := defaultFirstDelay
	if interval > 0 {
		first = min(first, interval)
	}
	return &Policy{
		FirstDelay: first,
		MaxDelay:   defaultMaxDelay,
		Classify:   PermanentOn(permanent...),
	}
}

// Delay returns the wait after the given number of consecutive failures, counted from 1.
func (p *Policy) Delay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	delay := p.FirstDelay
	for i := 1; i < failures; i++ {
		if delay <= 0 || delay >= maxDelay || (p.MaxDelay > 0 && delay >= p.MaxDelay) {
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 {
		delay = min(delay, p.MaxDelay)
	}
	return delay
}

// Next decides what follows the failures-th consecutive failure, err.
// It returns the wait before the next cycle, or false when the loop must stop.
func (p *Policy) Next(err error, failures int) (time.Duration, bool) {
	if p.Classify != nil && p.Classify(err) == CategoryPermanent {
		return 0, false
	}
	if p.MaxFailures > 0 && failures > p.MaxFailures {
		return 0, false
	}
	return p.Delay(failures), true
}
