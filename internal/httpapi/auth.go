package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
)

const (
	callerContextKey = "booking_caller"
	bearerPrefix     = "Bearer "
)

var errMissingBearer = errors.New("missing bearer token")

// Claims are the JWT claims accepted by the API. The subject is the user id.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 bearer tokens and resolves the calling identity.
type Authenticator struct {
	signingKey []byte
	issuer     string
}

// NewAuthenticator builds an Authenticator for the configured key and issuer.
func NewAuthenticator(signingKey string, issuer string) (*Authenticator, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("jwt signing key is required")
	}
	return &Authenticator{signingKey: []byte(signingKey), issuer: issuer}, nil
}

// IssueToken signs a token for caller valid for ttl from now.
func (authenticator *Authenticator) IssueToken(caller booking.Caller, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: string(caller.Role()),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID().String(),
			Issuer:    authenticator.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(authenticator.signingKey)
}

// Caller parses a raw token into a booking caller.
func (authenticator *Authenticator) Caller(rawToken string) (booking.Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return authenticator.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(authenticator.issuer))
	if err != nil {
		return booking.Caller{}, err
	}
	if !token.Valid {
		return booking.Caller{}, errors.New("invalid token")
	}
	userID, err := booking.NewUserID(claims.Subject)
	if err != nil {
		return booking.Caller{}, err
	}
	role, err := booking.ParseRole(claims.Role)
	if err != nil {
		return booking.Caller{}, err
	}
	return booking.NewCaller(userID, role)
}

// Middleware rejects requests without a valid bearer token and stores the caller in the context.
func (authenticator *Authenticator) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rawToken, err := bearerToken(ctx.GetHeader("Authorization"))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", err.Error()))
			return
		}
		caller, err := authenticator.Caller(rawToken)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid token"))
			return
		}
		ctx.Set(callerContextKey, caller)
		ctx.Next()
	}
}

func bearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errMissingBearer
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return "", errMissingBearer
	}
	return raw, nil
}

func getCaller(ctx *gin.Context) (booking.Caller, bool) {
	value, ok := ctx.Get(callerContextKey)
	if !ok {
		return booking.Caller{}, false
	}
	caller, ok := value.(booking.Caller)
	return caller, ok
}
