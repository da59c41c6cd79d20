package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims carried by access tokens. ProfessionalID is set for users whose
// account belongs to a professional of the clinic.
type Claims struct {
	jwt.RegisteredClaims
	TenantID       string   `json:"tenant_id"`
	Roles          []string `json:"roles"`
	ProfessionalID string   `json:"professional_id,omitempty"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey enables HS256 tokens for development and tests.
	SigningKey []byte
	Skipper    func(echo.Context) bool
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID         string
	Roles          []string
	ProfessionalID string
}

type identityKey struct{}

// TenantKey is the echo context key under which the token's clinic is stored
// for the tenant middleware.
const TenantKey = "jwt_tenant_id"

type verifier struct {
	parser  *jwt.Parser
	hmacKey []byte
	keys    *keySet
}

func newVerifier(cfg JWTConfig) *verifier {
	methods := []string{"RS256"}
	if len(cfg.SigningKey) > 0 {
		methods = []string{"HS256"}
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods(methods), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v := &verifier{parser: jwt.NewParser(opts...), hmacKey: cfg.SigningKey}
	if len(cfg.SigningKey) == 0 {
		v.keys = newKeySet(cfg.JWKSURL, defaultKeyRefresh)
	}
	return v
}

func (v *verifier) verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if v.keys == nil {
			return v.hmacKey, nil
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return v.keys.keyFor(ctx, kid)
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	return token, ok && strings.EqualFold(scheme, "bearer") && token != ""
}

// JWTMiddleware authenticates requests with a bearer token, verified against
// the static signing key when set, otherwise against the provider's JWKS.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	v := newVerifier(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			raw, ok := bearerToken(header)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}
			claims, err := v.verify(c.Request().Context(), raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(TenantKey, claims.TenantID)
			ctx := WithIdentity(c.Request().Context(), Identity{
				UserID:         claims.Subject,
				Roles:          claims.Roles,
				ProfessionalID: claims.ProfessionalID,
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// DevAuthMiddleware lets unauthenticated requests through as an admin. The
// X-Dev-Roles and X-Dev-Professional headers override the identity for local
// testing. No tenant claim is set, so the clinic comes from X-Tenant-ID or the
// default tenant.
func DevAuthMiddleware(skippers ...func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, skip := range skippers {
				if skip != nil && skip(c) {
					return next(c)
				}
			}
			req := c.Request()
			if req.Header.Get(echo.HeaderAuthorization) != "" {
				return next(c)
			}
			id := Identity{UserID: "dev-user", Roles: []string{RoleAdmin}, ProfessionalID: req.Header.Get("X-Dev-Professional")}
			if h := req.Header.Get("X-Dev-Roles"); h != "" {
				id.Roles = strings.Split(h, ",")
			}
			c.SetRequest(req.WithContext(WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.UserID
}

func RolesFromContext(ctx context.Context) []string {
	id, _ := IdentityFromContext(ctx)
	return id.Roles
}

func ProfessionalIDFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.ProfessionalID
}
