package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openphotolib/photolib/pkg/kv"
	"github.com/openphotolib/photolib/pkg/slogx"
)

// DefaultBanThreshold is the number of failed login attempts before an IP
// is banned.
const DefaultBanThreshold = 3

// BanList tracks failed login attempts per remote IP and bans origins that
// cross the threshold. State lives behind the kv capability so a Redis
// deployment shares the ban set across instances.
type BanList struct {
	store     kv.Store
	threshold int64
	ttl       time.Duration // 0 bans until the key store is cleared
}

// NewBanList builds a ban list over the given store. A threshold <= 0
// falls back to DefaultBanThreshold.
func NewBanList(store kv.Store, threshold int, ttl time.Duration) *BanList {
	if threshold <= 0 {
		threshold = DefaultBanThreshold
	}
	return &BanList{store: store, threshold: int64(threshold), ttl: ttl}
}

func banKey(ip string) string     { return "ban:banned:" + ip }
func attemptKey(ip string) string { return "ban:attempts:" + ip }

// RecordFailure counts a failed login attempt for ip and bans it once the
// threshold is reached. Returns true when the IP is now banned.
func (b *BanList) RecordFailure(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}

	n, err := b.store.Incr(ctx, attemptKey(ip), b.ttl)
	if err != nil {
		return false, err
	}
	if n < b.threshold {
		return false, nil
	}

	if err := b.store.Set(ctx, banKey(ip), strconv.FormatInt(n, 10), b.ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Reset clears the failure counter for ip, typically after a successful
// login.
func (b *BanList) Reset(ctx context.Context, ip string) error {
	return b.store.Delete(ctx, attemptKey(ip))
}

// Banned reports whether ip is currently banned.
func (b *BanList) Banned(ctx context.Context, ip string) (bool, error) {
	_, err := b.store.Get(ctx, banKey(ip))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BanMiddleware rejects requests from banned IPs before any handler runs.
// Lookup failures fail open, a broken Redis must not lock everyone out.
func BanMiddleware(b *BanList) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := IPKeyExtractor(r)

			banned, err := b.Banned(ctx, ip)
			if err != nil {
				slogx.FromContext(ctx).Error("ban list lookup failed", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if banned {
				slogx.FromContext(ctx).Warn("rejected banned origin", "ip", ip)
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error":             "access_denied",
					"error_description": "Origin is banned.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
