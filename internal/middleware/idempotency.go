package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/souqly/backend/internal/services"
	"golang.org/x/crypto/blake2b"
)

const (
	// IdempotencyHeader is the standard HTTP header for idempotency keys
	IdempotencyHeader = "Idempotency-Key"

	// IdempotencyHitHeader marks a replayed response
	IdempotencyHitHeader = "X-Idempotency-Hit"

	// RedisKeyPrefix for namespacing idempotency keys
	RedisKeyPrefix = "idempotency:"

	// LockKeyPrefix for namespacing distributed locks
	LockKeyPrefix = "lock:"

	maxIdempotentBody = 1_048_576
)

// cachedResponse is what gets stored under an idempotency key.
type cachedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	Body        string `json:"body"`
}

// responseRecorder captures the status code and body for caching while
// writing through to the client.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rw *responseRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Idempotency replays the stored response of a request that carries an
// Idempotency-Key already seen for the same caller. Keys are scoped per user
// and bound to a blake2b fingerprint of method, path and body, so a key
// reused for a different request is rejected instead of replayed. Only 2xx
// responses are stored.
func Idempotency(rdb *redis.Client, ttl, lockTimeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey := r.Header.Get(IdempotencyHeader)
			if idempotencyKey == "" || rdb == nil {
				next.ServeHTTP(w, r)
				return
			}
			if len(idempotencyKey) > 128 {
				services.SendErrorResponse(w, "Idempotency-Key is too long", http.StatusBadRequest, nil)
				return
			}

			// The lock must be released even if the client goes away.
			ctx := context.WithoutCancel(r.Context())

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			fingerprint := requestFingerprint(r, body)

			userID, _ := UserIDFromContext(r.Context())
			scope := fmt.Sprintf("%d:%s", userID, idempotencyKey)
			cacheKey := RedisKeyPrefix + scope
			lockKey := LockKeyPrefix + scope

			cached, err := rdb.Get(ctx, cacheKey).Bytes()
			switch {
			case err == nil:
				replayCached(w, cached, fingerprint, idempotencyKey)
				return
			case !errors.Is(err, redis.Nil):
				log.Error().Err(err).Str("component", "idempotency").Msg("cache lookup failed")
				services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
				return
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "processing", lockTimeout).Result()
			if err != nil {
				log.Error().Err(err).Str("component", "idempotency").Msg("lock acquisition failed")
				services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
				return
			}
			if !acquired {
				log.Info().Str("component", "idempotency").Str("key", idempotencyKey).Msg("concurrent request detected")
				services.SendErrorResponse(w, "A request with this idempotency key is currently being processed", http.StatusConflict, nil)
				return
			}
			defer func() {
				if err := rdb.Del(ctx, lockKey).Err(); err != nil {
					log.Warn().Err(err).Str("component", "idempotency").Msg("failed to release lock")
				}
			}()

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if recorder.statusCode < 200 || recorder.statusCode >= 300 {
				return
			}
			data, err := json.Marshal(cachedResponse{
				Fingerprint: fingerprint,
				Status:      recorder.statusCode,
				Body:        recorder.body.String(),
			})
			if err != nil {
				return
			}
			if err := rdb.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
				log.Warn().Err(err).Str("component", "idempotency").Msg("failed to cache response")
			}
		})
	}
}

func replayCached(w http.ResponseWriter, data []byte, fingerprint, key string) {
	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		log.Error().Err(err).Str("component", "idempotency").Msg("corrupt cached response")
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
		return
	}
	if cached.Fingerprint != fingerprint {
		services.SendErrorResponse(w, "Idempotency-Key was already used for a different request", http.StatusUnprocessableEntity, nil)
		return
	}

	log.Info().Str("component", "idempotency").Str("key", key).Msg("cache hit")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(IdempotencyHitHeader, "true")
	w.WriteHeader(cached.Status)
	w.Write([]byte(cached.Body))
}

func requestFingerprint(r *http.Request, body []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
