package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SendLimiter ограничивает частоту отправки сообщений для каждого пользователя
type SendLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*limiterEntry
	rate     rate.Limit
	burst    int
	stop     chan struct{}
	stopOnce sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func NewSendLimiter(perSecond float64, burst int) *SendLimiter {
	l := &SendLimiter{
		limiters: make(map[int64]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		stop:     make(chan struct{}),
	}
	go l.cleanupLoop(10 * time.Minute)
	return l
}

func (l *SendLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	entry, ok := l.limiters[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[userID] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	l.mu.Unlock()
	return limiter.Allow()
}

func (l *SendLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now().Add(-time.Hour))
		case <-l.stop:
			return
		}
	}
}

func (l *SendLimiter) cleanup(threshold time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for userID, entry := range l.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(l.limiters, userID)
		}
	}
}

func (l *SendLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
