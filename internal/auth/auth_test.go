package auth

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// signChallenge produces address, timestamp and signature headers for a
// freshly generated key.
func signChallenge(t *testing.T, at time.Time) (addr, ts, sig string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr = strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
	unix := at.Unix()
	ts = strconv.FormatInt(unix, 10)

	digest := personalHash(ChallengeMessage(addr, unix))
	raw, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig = "0x" + hex.EncodeToString(raw)
	return addr, ts, sig
}

func TestVerifyValidSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(false).WithNowFunc(func() time.Time { return now })

	addr, ts, sig := signChallenge(t, now)

	got, err := v.Verify(addr, ts, sig)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != addr {
		t.Errorf("Verify() = %q, want %q", got, addr)
	}
}

func TestVerifyWrongAddress(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(false).WithNowFunc(func() time.Time { return now })

	_, ts, sig := signChallenge(t, now)

	// A different address than the one that signed.
	if _, err := v.Verify("0x1111111111111111111111111111111111111111", ts, sig); err != ErrBadSignature {
		t.Errorf("Verify() error = %v, want ErrBadSignature", err)
	}
}

func TestVerifyStaleTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(false).WithNowFunc(func() time.Time { return now })

	addr, _, sig := signChallenge(t, now.Add(-time.Hour))
	ts := strconv.FormatInt(now.Add(-time.Hour).Unix(), 10)

	if _, err := v.Verify(addr, ts, sig); err != ErrStaleTimestamp {
		t.Errorf("Verify() error = %v, want ErrStaleTimestamp", err)
	}
}

func TestVerifyGarbageSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(false).WithNowFunc(func() time.Time { return now })

	if _, err := v.Verify("0x1111111111111111111111111111111111111111", strconv.FormatInt(now.Unix(), 10), "0xnothex"); err != ErrBadSignature {
		t.Errorf("Verify() error = %v, want ErrBadSignature", err)
	}
}

func newAuthRouter(v *Verifier) *gin.Engine {
	r := gin.New()
	r.Use(Middleware(v))
	r.GET("/open", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"caller": c.GetString(ContextKeyAgentAddr)})
	})
	protected := r.Group("")
	protected.Use(RequireAuth())
	protected.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"caller": c.GetString(ContextKeyAgentAddr)})
	})
	return r
}

func TestMiddlewareSignedRequest(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(false).WithNowFunc(func() time.Time { return now })
	router := newAuthRouter(v)

	addr, ts, sig := signChallenge(t, now)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(HeaderAddress, addr)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, sig)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), addr) {
		t.Errorf("expected caller %s in body %s", addr, w.Body.String())
	}
}

func TestMiddlewareBadSignatureRejected(t *testing.T) {
	now := time.Unix(1700000000, 0)
	v := NewVerifier(false).WithNowFunc(func() time.Time { return now })
	router := newAuthRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/open", nil)
	req.Header.Set(HeaderAddress, "0x1111111111111111111111111111111111111111")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(HeaderSignature, "0xdeadbeef")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequireAuthWithoutCredentials(t *testing.T) {
	v := NewVerifier(false)
	router := newAuthRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestDevModeBareAddress(t *testing.T) {
	v := NewVerifier(true)
	router := newAuthRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(HeaderAddress, "0xAbC1111111111111111111111111111111111111")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	// Address is lowercased by sanitization.
	if !strings.Contains(w.Body.String(), "0xabc1111111111111111111111111111111111111") {
		t.Errorf("expected sanitized caller in body %s", w.Body.String())
	}
}
