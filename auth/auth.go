package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gofiber/fiber/v2"
)

const (
	CookieName = "token"
	claimsKey  = "claims"
)

var ErrNoEmail = errors.New("email is required")

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.StandardClaims
}

// Issuer signs and verifies HS256 session tokens and carries them in an
// HTTP-only cookie.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewIssuer(secret []byte, ttl time.Duration, secure bool) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, secure: secure, now: time.Now}
}

func (i *Issuer) Issue(email, name string) (string, time.Time, error) {
	if email == "" {
		return "", time.Time{}, ErrNoEmail
	}

	now := i.now()
	exp := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		Name:  name,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: exp.Unix(),
			Subject:   email,
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, exp, nil
}

func (i *Issuer) Verify(tokenStr string) (*Claims, error) {
	var claims Claims

	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return &claims, nil
}

// Cookie wraps a signed token. Cross-site cookies need Secure, so SameSite
// is relaxed only when secure is set.
func (i *Issuer) Cookie(token string, exp time.Time) *fiber.Cookie {
	c := &fiber.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HTTPOnly: true,
		Secure:   i.secure,
		SameSite: fiber.CookieSameSiteStrictMode,
	}
	if i.secure {
		c.SameSite = fiber.CookieSameSiteNoneMode
	}
	return c
}

// ExpiredCookie clears the session cookie with the attributes it was set with.
func (i *Issuer) ExpiredCookie() *fiber.Cookie {
	return i.Cookie("", time.Unix(0, 0))
}

// Guard rejects requests without a session cookie (401) or with one that
// does not verify (403).
func (i *Issuer) Guard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Cookies(CookieName)
		if tokenStr == "" {
			return c.Status(http.StatusUnauthorized).
				JSON(fiber.Map{"message": "unauthorized access"})
		}

		claims, err := i.Verify(tokenStr)
		if err != nil {
			return c.Status(http.StatusForbidden).
				JSON(fiber.Map{"message": "forbidden access"})
		}

		c.Locals(claimsKey, claims)

		return c.Next()
	}
}

// SameEmail must run after Guard. It rejects requests whose path parameter
// names another user's email.
func SameEmail(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := ClaimsFrom(c)
		if claims == nil || claims.Email != c.Params(param) {
			return c.Status(http.StatusForbidden).
				JSON(fiber.Map{"message": "forbidden access"})
		}
		return c.Next()
	}
}

func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(claimsKey).(*Claims)
	return claims
}
