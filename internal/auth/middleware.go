package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cinchpay/cinch/internal/validation"
)

const (
	// ContextKeyAgentAddr is the key for storing the authenticated agent address
	ContextKeyAgentAddr = "authAgentAddr"

	// HeaderAddress carries the caller's claimed address.
	HeaderAddress = "X-Agent-Address"
	// HeaderTimestamp carries the unix timestamp the challenge was signed at.
	HeaderTimestamp = "X-Auth-Timestamp"
	// HeaderSignature carries the personal-sign signature over the challenge.
	HeaderSignature = "X-Auth-Signature"
)

// Middleware verifies the caller's signed challenge and sets authAgentAddr
// in the gin context. Requests without credentials pass through
// unauthenticated; RequireAuth rejects them downstream. Requests with bad
// credentials are rejected immediately.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.GetHeader(HeaderAddress)
		if address == "" {
			c.Next()
			return
		}

		signature := c.GetHeader(HeaderSignature)
		if signature == "" {
			// Dev mode accepts a bare address so local clients can skip signing.
			if v.allowInsecure && validation.IsValidAddress(address) {
				c.Set(ContextKeyAgentAddr, validation.SanitizeAddress(address))
			}
			c.Next()
			return
		}

		addr, err := v.Verify(address, c.GetHeader(HeaderTimestamp), signature)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_credentials",
				"message": err.Error(),
			})
			return
		}

		c.Set(ContextKeyAgentAddr, addr)
		c.Next()
	}
}

// RequireAuth aborts with 401 when no authenticated address is present.
// Must run after Middleware.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextKeyAgentAddr) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_required",
				"message": "Sign the challenge and send " + HeaderAddress + ", " + HeaderTimestamp + " and " + HeaderSignature + " headers",
			})
			return
		}
		c.Next()
	}
}
