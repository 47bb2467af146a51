package market

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// budget enforces one provider's request budget: a per-second token
// bucket, a per-minute token bucket, and a cooldown window set after
// rate-limit responses. A call is admitted only when both buckets have
// a token and the provider is not cooling down.
type budget struct {
	second *rate.Limiter
	minute *rate.Limiter

	mu        sync.Mutex
	coolUntil time.Time
	coolStep  time.Duration // doubles on consecutive rate limits without a reset hint
	baseCool  time.Duration
	maxCool   time.Duration
}

func newBudget(perSecond float64, burst, perMinute int, baseCool time.Duration) *budget {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst < 1 {
		burst = 1
	}
	if perMinute < 1 {
		perMinute = 60
	}
	if baseCool <= 0 {
		baseCool = 30 * time.Second
	}
	return &budget{
		second:   rate.NewLimiter(rate.Limit(perSecond), burst),
		minute:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		baseCool: baseCool,
		maxCool:  15 * time.Minute,
	}
}

// allow consumes one token from both buckets if the provider is ready.
// It never waits: an exhausted bucket or an active cooldown means skip.
func (b *budget) allow(now time.Time) bool {
	b.mu.Lock()
	cooling := now.Before(b.coolUntil)
	b.mu.Unlock()
	if cooling {
		return false
	}

	rs := b.second.ReserveN(now, 1)
	if !rs.OK() || rs.DelayFrom(now) > 0 {
		rs.CancelAt(now)
		return false
	}
	rm := b.minute.ReserveN(now, 1)
	if !rm.OK() || rm.DelayFrom(now) > 0 {
		rm.CancelAt(now)
		rs.CancelAt(now)
		return false
	}
	return true
}

// cool pauses the provider. With a reset hint the window is exactly the
// hint; without one the window doubles per consecutive rate limit up to
// the cap.
func (b *budget) cool(now time.Time, hint time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := hint
	if d <= 0 {
		if b.coolStep == 0 {
			b.coolStep = b.baseCool
		} else {
			b.coolStep *= 2
		}
		if b.coolStep > b.maxCool {
			b.coolStep = b.maxCool
		}
		d = b.coolStep
	}

	until := now.Add(d)
	if until.After(b.coolUntil) {
		b.coolUntil = until
	}
}

// settle resets the exponential cooldown after a successful call.
func (b *budget) settle() {
	b.mu.Lock()
	b.coolStep = 0
	b.mu.Unlock()
}

// coolingUntil returns the end of the active cooldown window, or the
// zero time when none is active.
func (b *budget) coolingUntil(now time.Time) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.coolUntil) {
		return b.coolUntil
	}
	return time.Time{}
}
