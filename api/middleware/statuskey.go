// Package middleware holds the gin middleware of the status API.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/leadscrape/models"
)

// StatusKeyHeader carries the status API key. "Authorization: Bearer <key>"
// is accepted as well.
const StatusKeyHeader = "X-API-Key"

// RequireStatusKey rejects requests that do not present one of keys. Blank
// keys are ignored; with none left every request passes.
func RequireStatusKey(keys []string) gin.HandlerFunc {
	var accepted [][]byte
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			accepted = append(accepted, []byte(k))
		}
	}
	if len(accepted) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		presented, ok := statusKey(c.Request)
		if !ok {
			deny(c, "status key required in "+StatusKeyHeader+" or Authorization: Bearer")
			return
		}
		if !matchesAny(accepted, []byte(presented)) {
			slog.Warn("status request with unknown key", "client", c.ClientIP(), "path", c.FullPath())
			deny(c, "unknown status key")
			return
		}
		c.Next()
	}
}

// matchesAny compares against every key so timing does not reveal which
// one, or how much of it, matched.
func matchesAny(accepted [][]byte, presented []byte) bool {
	match := 0
	for _, k := range accepted {
		match |= subtle.ConstantTimeCompare(k, presented)
	}
	return match == 1
}

func statusKey(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get(StatusKeyHeader)); key != "" {
		return key, true
	}
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func deny(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="leadscrape-status"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Error: &models.ErrorDetail{Code: models.ErrCodeUnauthorized, Message: msg},
	})
}
