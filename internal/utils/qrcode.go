package utils // package utils provides helpers for signed tokens used across the service

import (
	"crypto/rand"  // secure random bytes for hold tokens
	"encoding/hex" // hex encoding of random tokens
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed payloads
	"github.com/google/uuid"
)

// QRClaims is the verified content of a ticket QR payload.  The token
// binds the ticket number to its event and holder so a scanned code
// cannot be replayed against a different event or transferred by
// editing the payload.
type QRClaims struct {
	TicketNumber string    // unique ticket number
	EventID      uuid.UUID // event the ticket admits to
	HolderID     uuid.UUID // buyer the ticket was issued to
}

// ErrInvalidQRCode is returned when a QR payload fails signature or
// claim validation.
var ErrInvalidQRCode = errors.New("invalid qr code")

// SignQRCode builds and signs an HS256 JWT embedding the ticket
// number, event id and holder id.  The resulting string is stored on
// the ticket and rendered as a QR image by clients; this service never
// renders images.  QR tokens carry an issued-at claim but no expiry;
// a ticket stays scannable until its status says otherwise.
func SignQRCode(secret string, c QRClaims) (string, error) {
	claims := jwt.MapClaims{
		"tkt":   c.TicketNumber,
		"event": c.EventID.String(),
		"sub":   c.HolderID.String(),
		"iat":   time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// VerifyQRCode parses a QR payload and returns its claims.  Any
// signature mismatch, malformed claim or unexpected signing method
// yields ErrInvalidQRCode; the concrete parse error is intentionally
// not exposed to scanners.
func VerifyQRCode(secret, payload string) (QRClaims, error) {
	tok, err := jwt.Parse(payload, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidQRCode
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return QRClaims{}, ErrInvalidQRCode
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return QRClaims{}, ErrInvalidQRCode
	}
	num, _ := claims["tkt"].(string)
	eventStr, _ := claims["event"].(string)
	holderStr, _ := claims["sub"].(string)
	eventID, err := uuid.Parse(eventStr)
	if err != nil {
		return QRClaims{}, ErrInvalidQRCode
	}
	holderID, err := uuid.Parse(holderStr)
	if err != nil {
		return QRClaims{}, ErrInvalidQRCode
	}
	if num == "" {
		return QRClaims{}, ErrInvalidQRCode
	}
	return QRClaims{TicketNumber: num, EventID: eventID, HolderID: holderID}, nil
}

// RandomToken returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.  It is used for hold tokens.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
