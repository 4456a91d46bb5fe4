package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Override token errors.
var (
	ErrOverrideDisabled = errors.New("override tokens are not enabled")
	ErrOverrideInvalid  = errors.New("override token invalid")
)

// OverrideConfig defines how read-your-writes override tokens are verified.
type OverrideConfig struct {
	// Secret is the HS256 signing secret shared with the write path.
	Secret []byte

	// Issuer is the required iss claim.
	Issuer string

	// Audience is the required aud claim.
	Audience string

	// MaxAge caps token lifetime independently of the exp claim.
	// Default: 60 seconds — override tokens bridge the materialization
	// window, they are not long-lived credentials.
	MaxAge time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// overrideClaims is the internal claims type used for JWT parsing.
type overrideClaims struct {
	jwt.RegisteredClaims
	Tenant   string         `json:"tenant"`
	EntityID string         `json:"entity_id"`
	Attrs    map[string]any `json:"attrs"`
}

// OverrideVerifier validates signed override tokens. A caller that just
// performed a state-changing action attaches one to its decision request;
// the verified attribute claims layer over cached attributes for that single
// request, giving immediate consistency without waiting for asynchronous
// materialization.
type OverrideVerifier struct {
	config OverrideConfig
}

// NewOverrideVerifier creates a verifier. Returns an error if the config is
// incomplete.
func NewOverrideVerifier(config OverrideConfig) (*OverrideVerifier, error) {
	if len(config.Secret) == 0 {
		return nil, errors.New("override token secret is required")
	}
	if config.Issuer == "" {
		return nil, errors.New("override token issuer is required")
	}
	if config.Audience == "" {
		return nil, errors.New("override token audience is required")
	}
	if config.MaxAge == 0 {
		config.MaxAge = 60 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &OverrideVerifier{config: config}, nil
}

// Verify parses and validates an override token for the given tenant and
// entity, returning the asserted attribute overrides.
func (v *OverrideVerifier) Verify(token, tenant, entityID string) (map[string]any, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrOverrideInvalid)
	}

	now := v.config.Now()

	var claims overrideClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.config.Secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithAudience(v.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.config.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOverrideInvalid, err)
	}

	if claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing iat claim", ErrOverrideInvalid)
	}
	if now.Sub(claims.IssuedAt.Time) > v.config.MaxAge {
		return nil, fmt.Errorf("%w: token older than %s", ErrOverrideInvalid, v.config.MaxAge)
	}
	if claims.Tenant != tenant {
		return nil, fmt.Errorf("%w: tenant mismatch", ErrOverrideInvalid)
	}
	if claims.EntityID != entityID {
		return nil, fmt.Errorf("%w: entity mismatch", ErrOverrideInvalid)
	}
	if len(claims.Attrs) == 0 {
		return nil, fmt.Errorf("%w: no attribute claims", ErrOverrideInvalid)
	}

	attrs := make(map[string]any, len(claims.Attrs))
	for k, val := range claims.Attrs {
		attrs[k] = normalizeClaim(val)
	}
	return attrs, nil
}

// SignOverride issues an override token. The runtime itself only verifies;
// signing lives here so the write path and tests share one claim layout.
func SignOverride(config OverrideConfig, tenant, entityID string, attrs map[string]any, ttl time.Duration) (string, error) {
	if config.Now == nil {
		config.Now = time.Now
	}
	now := config.Now()

	claims := overrideClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    config.Issuer,
			Audience:  jwt.ClaimStrings{config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Tenant:   tenant,
		EntityID: entityID,
		Attrs:    attrs,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(config.Secret)
}

// normalizeClaim coerces JSON integer claims to float64, matching the
// literal normalization the graph parser applies.
func normalizeClaim(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return v
	}
}
