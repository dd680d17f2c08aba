package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func requireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(OrgHeader)) == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Missing " + OrgHeader + " header"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// maxTrackedOrgs caps the limiter map. The key comes from a request header,
// so it cannot be trusted to stay small.
const maxTrackedOrgs = 10000

// orgLimiter keeps one token bucket per org. A zero rate disables limiting.
type orgLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	max      int
	now      func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newOrgLimiter(rps float64, burst int) *orgLimiter {
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &orgLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		max:      maxTrackedOrgs,
		now:      time.Now,
	}
}

func (l *orgLimiter) get(org string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.limiters[org]; ok {
		e.lastSeen = now
		return e.lim
	}
	if len(l.limiters) >= l.max {
		l.evict(now)
	}
	e := &limiterEntry{lim: rate.NewLimiter(l.rps, l.burst), lastSeen: now}
	l.limiters[org] = e
	return e.lim
}

// evict drops every entry idle long enough for its bucket to refill, since a
// fresh limiter behaves the same. When all entries are still active the least
// recently seen one goes. Callers hold l.mu.
func (l *orgLimiter) evict(now time.Time) {
	var refill time.Duration
	if l.rps > 0 {
		refill = time.Duration(float64(l.burst) / float64(l.rps) * float64(time.Second))
	}
	var (
		oldestOrg string
		oldest    time.Time
	)
	for org, e := range l.limiters {
		if refill > 0 && now.Sub(e.lastSeen) >= refill {
			delete(l.limiters, org)
			continue
		}
		if oldestOrg == "" || e.lastSeen.Before(oldest) {
			oldestOrg, oldest = org, e.lastSeen
		}
	}
	if len(l.limiters) >= l.max && oldestOrg != "" {
		delete(l.limiters, oldestOrg)
	}
}

func (l *orgLimiter) middleware(next http.Handler) http.Handler {
	if l.rps <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.get(orgID(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
