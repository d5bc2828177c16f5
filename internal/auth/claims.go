package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/media"
)

const defaultTTLMinutes = 60

// Requester is the frame identity carried by a requester token.
type Requester struct {
	ProcessID   int    `json:"pid"`
	FrameID     int    `json:"fid"`
	RequesterID int    `json:"rid"`
	Origin      string `json:"origin"`
}

// ID returns the coordinator identity of the frame. pageRequestID is
// chosen per call by the client.
func (r Requester) ID(pageRequestID int) capture.RequesterID {
	return capture.RequesterID{
		ProcessID:     r.ProcessID,
		FrameID:       r.FrameID,
		RequesterID:   r.RequesterID,
		PageRequestID: pageRequestID,
	}
}

// Claims are the JWT claims of both roles. Requester is set only for
// RoleRequester.
type Claims struct {
	jwt.RegisteredClaims
	Role      Role       `json:"role"`
	Requester *Requester `json:"req,omitempty"`
}

// IssueRequesterToken signs a token for one frame. The origin is
// normalised; opaque and malformed origins are rejected since they
// could never be granted a capture.
func IssueRequesterToken(r Requester, secret string, ttlMinutes int) (string, error) {
	origin, err := media.ParseOrigin(r.Origin)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequester, err)
	}
	if r.ProcessID <= 0 {
		return "", fmt.Errorf("%w: process id must be positive", ErrInvalidRequester)
	}
	r.Origin = origin.Serialize()

	subject := fmt.Sprintf("frame:%d:%d", r.ProcessID, r.FrameID)
	return sign(Claims{
		RegisteredClaims: registered(subject, ttlMinutes),
		Role:             RoleRequester,
		Requester:        &r,
	}, secret)
}

// IssueOperatorToken signs a token for an authenticated operator.
func IssueOperatorToken(username, secret string, ttlMinutes int) (string, error) {
	return sign(Claims{
		RegisteredClaims: registered("operator:"+username, ttlMinutes),
		Role:             RoleOperator,
	}, secret)
}

func registered(subject string, ttlMinutes int) jwt.RegisteredClaims {
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTTLMinutes
	}
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
		ID:        uuid.NewString(),
	}
}

func sign(c Claims, secret string) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken checks the signature and expiry of a token and that its
// claims are complete for its role.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	switch claims.Role {
	case RoleRequester:
		if claims.Requester == nil || claims.Requester.Origin == "" {
			return nil, fmt.Errorf("%w: requester token without identity", ErrTokenInvalid)
		}
	case RoleOperator:
		if claims.Requester != nil {
			return nil, fmt.Errorf("%w: operator token carries a requester", ErrTokenInvalid)
		}
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}
