package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Bucket defines rate limit parameters.
type Bucket struct {
	MaxRequests int
	Window      time.Duration
}

var defaultBucket = Bucket{MaxRequests: 60, Window: time.Minute}

// Limiter is an in-memory sliding-window rate limiter per key.
type Limiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	buckets map[string]Bucket
	now     func() time.Time
}

// New creates a rate limiter from per-minute request counts keyed by bucket
// name (chat, predict, validate, sample). Unknown buckets allow 60/min.
func New(perMinute map[string]int) *Limiter {
	buckets := make(map[string]Bucket, len(perMinute))
	for name, n := range perMinute {
		buckets[name] = Bucket{MaxRequests: n, Window: time.Minute}
	}
	return &Limiter{hits: make(map[string][]time.Time), buckets: buckets, now: time.Now}
}

// Allow counts a hit for key and reports whether it stays within bucket's
// window. Rejected hits are not recorded.
func (l *Limiter) Allow(key string, bucket Bucket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := inWindow(l.hits[key], now.Add(-bucket.Window))
	allowed := len(recent) < bucket.MaxRequests
	if allowed {
		recent = append(recent, now)
	}
	l.hits[key] = recent
	return allowed
}

// inWindow drops the hits at or before cutoff, reusing the slice.
func inWindow(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return append(hits[:0], hits[i:]...)
}

// Check writes a 429 JSON response if the client is rate limited for the
// named bucket. Returns true if the request was rejected.
func (l *Limiter) Check(w http.ResponseWriter, r *http.Request, bucketName string) bool {
	if l.AllowRequest(r, bucketName) {
		return false
	}

	retry := int(l.bucket(bucketName).Window.Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error":               "Rate limited",
		"retry_after_seconds": retry,
	})
	return true
}

// AllowRequest reports whether the client behind r may make another request
// in the named bucket, counting it if so.
func (l *Limiter) AllowRequest(r *http.Request, bucketName string) bool {
	return l.Allow(bucketName+":"+clientIP(r), l.bucket(bucketName))
}

func (l *Limiter) bucket(name string) Bucket {
	if b, ok := l.buckets[name]; ok {
		return b
	}
	return defaultBucket
}

// Sweep drops keys with no hits inside the longest window.
func (l *Limiter) Sweep() int {
	window := defaultBucket.Window
	for _, b := range l.buckets {
		if b.Window > window {
			window = b.Window
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-window)
	removed := 0
	for key, times := range l.hits {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

// CleanupLoop sweeps idle keys every minute until ctx is cancelled.
func (l *Limiter) CleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// clientIP uses RemoteAddr, which chi's RealIP middleware has already
// rewritten from X-Real-IP / X-Forwarded-For.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
