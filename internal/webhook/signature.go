package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature is returned for every verification failure. The caller
// must not learn which check failed: a tampered body, a stale timestamp and a
// malformed header all look the same from outside.
var ErrInvalidSignature = errors.New("invalid signature")

// signatureTolerance is the replay/staleness window around the signed
// timestamp, in either direction.
const signatureTolerance = 30 * time.Minute

// VerifySignature validates an ElevenLabs webhook signature header of the
// form "t=<unix-seconds>,v0=<hex-hmac>" against the raw transport bytes.
// The HMAC input is "{timestamp}.{rawBody}"; any re-encoding of the body
// before verification breaks the signature by construction.
func VerifySignature(secret, header string, body []byte, now time.Time) error {
	if secret == "" || header == "" {
		return ErrInvalidSignature
	}

	var tsPart, sigPart string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "t="):
			tsPart = strings.TrimPrefix(part, "t=")
		case strings.HasPrefix(part, "v0="):
			sigPart = strings.TrimPrefix(part, "v0=")
		}
	}
	if tsPart == "" || sigPart == "" {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	signedAt := time.Unix(ts, 0)
	if now.Sub(signedAt) > signatureTolerance || signedAt.Sub(now) > signatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsPart))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Length check before content comparison; hmac.Equal is constant-time
	// for equal-length inputs.
	if len(expected) != len(sigPart) {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(expected), []byte(sigPart)) {
		return ErrInvalidSignature
	}
	return nil
}
