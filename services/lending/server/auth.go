package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"

	"creditpool/observability/logging"
)

// AuthConfig configures bearer token validation. Tokens are HMAC-signed JWTs
// whose subject is the caller address.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	AdminScope string
	ClockSkew  time.Duration
}

type contextKey string

const (
	contextKeyCaller contextKey = "lending.caller"
	contextKeyScopes contextKey = "lending.scopes"
)

var (
	errSecretMissing  = errors.New("auth secret not configured")
	errSubjectInvalid = errors.New("subject is not an address")
)

// Authenticator validates bearer tokens and installs the caller identity on
// the request context.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	parser *jwt.Parser
	logger *slog.Logger
}

// NewAuthenticator constructs an authenticator. An empty secret is rejected.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return nil, errSecretMissing
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.AdminScope == "" {
		cfg.AdminScope = "admin"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	logger.Debug("lending auth configured", logging.MaskField("hmac_secret", secret), "issuer", cfg.Issuer)
	return &Authenticator{cfg: cfg, secret: []byte(secret), parser: jwt.NewParser(opts...), logger: logger}, nil
}

// AdminScope returns the scope required on administrative routes.
func (a *Authenticator) AdminScope() string { return a.cfg.AdminScope }

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeProblem(w, http.StatusUnauthorized, "missing bearer token", "")
			return
		}
		caller, scopes, err := a.authenticate(tokenString)
		if err != nil {
			a.logger.Info("lending auth: token rejected", "error", err, logging.MaskField("token", tokenString))
			writeProblem(w, http.StatusUnauthorized, "invalid token", "")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		ctx = context.WithValue(ctx, contextKeyScopes, scopes)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScopes rejects authenticated requests lacking any of the scopes.
func (a *Authenticator) RequireScopes(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes, _ := r.Context().Value(contextKeyScopes).([]string)
			if !hasScopes(scopes, required) {
				writeProblem(w, http.StatusForbidden, "insufficient scope", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) authenticate(tokenString string) (common.Address, []string, error) {
	claims := jwt.MapClaims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return common.Address{}, nil, err
	}
	if !token.Valid {
		return common.Address{}, nil, errors.New("token invalid")
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return common.Address{}, nil, err
	}
	subject = strings.TrimSpace(subject)
	if !common.IsHexAddress(subject) {
		return common.Address{}, nil, errSubjectInvalid
	}
	caller := common.HexToAddress(subject)
	if caller == (common.Address{}) {
		return common.Address{}, nil, errSubjectInvalid
	}
	return caller, extractScopes(claims, a.cfg.ScopeClaim), nil
}

// CallerFrom returns the authenticated caller installed by the middleware.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(common.Address)
	return caller, ok
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScopes(scopes []string, required []string) bool {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
