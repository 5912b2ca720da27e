package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const signatureVersion = "v0"

// DefaultSkew is the tolerated distance between the request timestamp header
// and our clock. Anything further out is treated as a replay.
const DefaultSkew = 5 * time.Minute

var (
	ErrSignatureInvalid = errors.New("request signature invalid")
	ErrTimestampStale   = errors.New("request timestamp outside tolerance")
)

// Verifier authenticates inbound Slack requests against the app signing
// secret. The check is pure; it runs before any state is touched.
type Verifier struct {
	secret []byte
	skew   time.Duration
	now    func() time.Time
}

func NewVerifier(signingSecret string) *Verifier {
	return &Verifier{
		secret: []byte(signingSecret),
		skew:   DefaultSkew,
		now:    time.Now,
	}
}

// Verify checks the v0 signature scheme: HMAC-SHA256 over
// "v0:<timestamp>:<raw body>" compared in constant time against the
// signature header.
func (v *Verifier) Verify(body []byte, timestampHeader, signatureHeader string) error {
	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return ErrTimestampStale
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age > v.skew || age < -v.skew {
		return ErrTimestampStale
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%s:%s:", signatureVersion, timestampHeader)
	mac.Write(body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return ErrSignatureInvalid
	}
	return nil
}
