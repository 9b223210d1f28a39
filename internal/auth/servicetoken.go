package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HeaderServiceToken carries the signed service credential. Browsers never
// legitimately send this header; the spoofing guard treats its presence on a
// browser-like request as an incident.
const HeaderServiceToken = "X-Service-Token"

// Sentinel verification failures. Expiry is reported distinctly from every
// other defect so callers can tell a stale-but-genuine credential from a
// forged one.
var (
	ErrServiceTokenExpired = errors.New("service token expired")
	ErrServiceTokenInvalid = errors.New("service token invalid")
)

// ServiceClaims is the payload of a short-lived service token. The token
// carries only the service name; permitted operations come from the registry
// at verification time, never from the token itself.
type ServiceClaims struct {
	ServiceName string `json:"service_name"`
	jwt.RegisteredClaims
}

// SignServiceToken issues a token for the named service. ttl <= 0 falls back
// to 1h, which bounds the blast radius of a leaked credential.
func SignServiceToken(secret, serviceName string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}

	claims := ServiceClaims{
		ServiceName: serviceName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "debt-recovery",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyServiceToken checks signature and expiry and returns the embedded
// claims. Failures map onto ErrServiceTokenExpired or ErrServiceTokenInvalid.
func VerifyServiceToken(secret, tokenStr string) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ServiceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrServiceTokenExpired
		}
		return nil, ErrServiceTokenInvalid
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid || claims.ServiceName == "" {
		return nil, ErrServiceTokenInvalid
	}
	return claims, nil
}
