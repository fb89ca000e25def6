package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// webhook receives alert payloads from the signal source. The IP allowlist
// and signature check both run before the payload can reach the executor.
func (s *Server) webhook(c *gin.Context) {
	if s.allowedIPs != nil {
		if _, ok := s.allowedIPs[c.ClientIP()]; !ok {
			log.Printf("[webhook] rejected request from %s", c.ClientIP())
			c.JSON(http.StatusForbidden, gin.H{
				"code":  "FORBIDDEN_IP",
				"error": "unauthorized IP",
			})
			return
		}
	}

	var payload map[string]any
	if err := c.BindJSON(&payload); err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "no data provided",
		})
		return
	}

	if s.opts.WebhookSecret != "" && !validSignature(payload, s.opts.WebhookSecret) {
		log.Printf("[webhook] invalid signature from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":  "INVALID_SIGNATURE",
			"error": "invalid signature",
		})
		return
	}

	s.respondResult(c, s.Exec.Execute(c.Request.Context(), payload))
}

// validSignature checks the hex HMAC-SHA256 the sender embeds in the
// payload. The digest covers the timestamp and action fields concatenated.
func validSignature(payload map[string]any, secret string) bool {
	signature, _ := payload["signature"].(string)
	if signature == "" {
		return false
	}

	message := fieldString(payload["timestamp"]) + fieldString(payload["action"])
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// fieldString renders a decoded JSON value the way the sender formatted it:
// numbers without an exponent, missing fields as empty.
func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
