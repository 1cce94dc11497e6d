package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"savings-ledger/internal/core/ports"
	"savings-ledger/pkg/apperror"
	"savings-ledger/pkg/response"
)

// Provider callback headers.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
)

const (
	maxTimestampDrift = 60 * time.Second
	nonceTTL          = 2 * maxTimestampDrift
)

// Context keys set by the auth middlewares.
const (
	CtxSubject  = "subject"
	CtxRole     = "role"
	CtxProvider = "provider"
)

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}

// CallbackAuth admits a provider callback only when it is fresh, carries a
// valid HMAC-SHA256 over METHOD|PATH|TS|NONCE|BODY and has an unseen nonce
// for its :provider. The provider name is left in the context under
// CtxProvider and the body stays readable for the handler.
func CallbackAuth(
	secret string,
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	clock ports.Clock,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature, nonce := c.GetHeader(HeaderSignature), c.GetHeader(HeaderNonce)
		tsHeader := c.GetHeader(HeaderTimestamp)
		if signature == "" || tsHeader == "" || nonce == "" {
			abort(c, apperror.ErrMissingSignature())
			return
		}

		ts, err := strconv.ParseInt(tsHeader, 10, 64)
		if err != nil || !withinDrift(clock.Now(), time.Unix(ts, 0)) {
			abort(c, apperror.ErrTimestampExpired())
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abort(c, apperror.Validation("cannot read request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		canonical := sigSvc.BuildCanonicalString(c.Request.Method, c.Request.URL.Path, ts, nonce, string(body))
		if secret == "" || !sigSvc.Verify(secret, canonical, signature) {
			abort(c, apperror.ErrInvalidSignature())
			return
		}

		// Unsigned traffic never reaches the nonce store.
		provider := strings.ToUpper(c.Param("provider"))
		fresh, err := nonceStore.CheckAndSet(c.Request.Context(), "callback:"+provider, nonce, nonceTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("provider", provider).Msg("nonce store unavailable, admitting signed callback")
		case !fresh:
			abort(c, apperror.ErrNonceUsed())
			return
		}

		c.Set(CtxProvider, provider)
		c.Next()
	}
}

func withinDrift(now, sent time.Time) bool {
	d := now.Sub(sent)
	return d <= maxTimestampDrift && d >= -maxTimestampDrift
}

// JWTAuth validates operator tokens for the admin routes.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || raw == "" {
			abort(c, apperror.ErrInvalidToken())
			return
		}

		claims, err := tokenSvc.Validate(raw)
		if err != nil {
			log.Debug().Err(err).Msg("rejected operator token")
			abort(c, apperror.ErrInvalidToken())
			return
		}

		c.Set(CtxSubject, claims.Subject)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// RequestID propagates or generates X-Request-ID and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(response.HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(response.HeaderRequestID, id)
		c.Next()
	}
}

// MaxBodySize limits the request body; reads past the limit fail and the
// binding layer answers 400.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequestLogger writes one line per request, at warn for 4xx and error for
// 5xx, carrying the error the handler attached to the context.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		default:
			event = log.Info()
		}
		if last := c.Errors.Last(); last != nil {
			event = event.Err(last.Err)
		}
		event.
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(response.CtxRequestID)).
			Msg("http request")
	}
}

// Recovery turns a panic into a SYS_001 envelope.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				abort(c, apperror.InternalError(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}
