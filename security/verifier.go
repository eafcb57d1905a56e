// Package security verifies bearer tokens issued by the user pool.
package security

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"bitwise74/photo-api/apperr"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	TokenUseAccess = "access"
	TokenUseID     = "id"

	DefaultLeeway          = 30 * time.Second
	DefaultRefreshInterval = time.Hour
)

// Identity is what the API knows about the caller after verification.
type Identity struct {
	Subject  string
	Username string
	TokenUse string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Claims as issued by a Cognito user pool. Access tokens carry client_id,
// id tokens carry the client in aud.
type Claims struct {
	jwt.RegisteredClaims
	TokenUse        string `json:"token_use"`
	ClientID        string `json:"client_id"`
	Username        string `json:"username"`
	CognitoUsername string `json:"cognito:username"`
}

type VerifierConfig struct {
	Region     string
	UserPoolID string
	ClientID   string
	// Optional overrides, derived from region and pool when empty
	Issuer  string
	JWKSURL string
	Leeway  time.Duration
}

// IssuerURL returns the issuer of a user pool.
func IssuerURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

func (c VerifierConfig) issuer() string {
	if c.Issuer != "" {
		return c.Issuer
	}

	return IssuerURL(c.Region, c.UserPoolID)
}

func (c VerifierConfig) jwksURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}

	return c.issuer() + "/.well-known/jwks.json"
}

type CognitoVerifier struct {
	kf       keyfunc.Keyfunc
	issuer   string
	clientID string
	leeway   time.Duration
}

// NewCognitoVerifier fetches the pool's JWKS in the background and keeps it
// refreshed. The first fetch failing does not fail construction.
func NewCognitoVerifier(ctx context.Context, cfg VerifierConfig) (*CognitoVerifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("auth client id is required")
	}

	if cfg.Issuer == "" && (cfg.Region == "" || cfg.UserPoolID == "") {
		return nil, errors.New("auth region and user pool id are required")
	}

	url := cfg.jwksURL()

	storage, err := jwkset.NewStorageFromHTTP(url, jwkset.HTTPClientStorageOptions{
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           DefaultRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			zap.L().Error("Failed to refresh JWKS", zap.String("url", url), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS storage, %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{
		Ctx:     ctx,
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create keyfunc, %w", err)
	}

	return NewVerifierWithKeyfunc(kf, cfg), nil
}

// NewVerifierWithKeyfunc builds a verifier around an existing key source.
func NewVerifierWithKeyfunc(kf keyfunc.Keyfunc, cfg VerifierConfig) *CognitoVerifier {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = DefaultLeeway
	}

	return &CognitoVerifier{
		kf:       kf,
		issuer:   cfg.issuer(),
		clientID: cfg.ClientID,
		leeway:   leeway,
	}
}

func (v *CognitoVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(raw, claims, v.kf.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return nil, classify(err)
	}

	if !token.Valid {
		return nil, apperr.Auth(apperr.KindAuthInvalid, errors.New("token not valid"))
	}

	switch claims.TokenUse {
	case TokenUseAccess:
		if claims.ClientID != v.clientID {
			return nil, apperr.Auth(apperr.KindAuthInvalid, errors.New("client_id mismatch"))
		}
	case TokenUseID:
		if !slices.Contains(claims.Audience, v.clientID) {
			return nil, apperr.Auth(apperr.KindAuthInvalid, errors.New("audience mismatch"))
		}
	default:
		return nil, apperr.Auth(apperr.KindAuthInvalid, fmt.Errorf("unexpected token_use %q", claims.TokenUse))
	}

	if claims.Subject == "" {
		return nil, apperr.Auth(apperr.KindAuthInvalid, errors.New("missing sub"))
	}

	username := claims.Username
	if username == "" {
		username = claims.CognitoUsername
	}

	return &Identity{
		Subject:  claims.Subject,
		Username: username,
		TokenUse: claims.TokenUse,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Auth(apperr.KindAuthExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperr.Auth(apperr.KindAuthMalformed, err)
	default:
		return apperr.Auth(apperr.KindAuthInvalid, err)
	}
}

// LazyVerifier builds the underlying verifier on first use. A failed build
// is retried on the next call instead of being cached. The factory must not
// depend on a request context, the verifier outlives the request.
type LazyVerifier struct {
	mu      sync.Mutex
	v       Verifier
	factory func() (Verifier, error)
}

func NewLazyVerifier(factory func() (Verifier, error)) *LazyVerifier {
	return &LazyVerifier{factory: factory}
}

func (l *LazyVerifier) get() (Verifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.v != nil {
		return l.v, nil
	}

	v, err := l.factory()
	if err != nil {
		return nil, err
	}

	l.v = v
	return v, nil
}

func (l *LazyVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	v, err := l.get()
	if err != nil {
		return nil, apperr.Internal("auth verifier unavailable", err)
	}

	return v.Verify(ctx, token)
}
