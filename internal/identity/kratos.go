package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	kratos "github.com/ory/kratos-client-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultSchemaID = "default"

var tracer = otel.Tracer("folio/identity")

// KratosConfig configures the Kratos adapter. AdminURL and AdminToken are
// elevated credentials.
type KratosConfig struct {
	PublicURL  string
	AdminURL   string
	AdminToken string
	SchemaID   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Kratos implements Provider and Admin against Ory Kratos native flows.
type Kratos struct {
	public   *kratos.APIClient
	admin    *kratos.APIClient
	schemaID string
	logger   *slog.Logger
}

// NewKratos builds clients for the public and admin APIs.
func NewKratos(cfg KratosConfig, logger *slog.Logger) *Kratos {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	publicConf := kratos.NewConfiguration()
	publicConf.Servers = []kratos.ServerConfiguration{{URL: cfg.PublicURL}}
	publicConf.HTTPClient = httpClient
	publicConf.AddDefaultHeader("Accept", "application/json")

	adminConf := kratos.NewConfiguration()
	adminConf.Servers = []kratos.ServerConfiguration{{URL: cfg.AdminURL}}
	adminConf.HTTPClient = httpClient
	adminConf.AddDefaultHeader("Accept", "application/json")
	if cfg.AdminToken != "" {
		adminConf.AddDefaultHeader("Authorization", "Bearer "+cfg.AdminToken)
	}

	schemaID := cfg.SchemaID
	if schemaID == "" {
		schemaID = defaultSchemaID
	}

	return &Kratos{
		public:   kratos.NewAPIClient(publicConf),
		admin:    kratos.NewAPIClient(adminConf),
		schemaID: schemaID,
		logger:   logger,
	}
}

// SignIn runs a native password login flow.
func (k *Kratos) SignIn(ctx context.Context, email, password string) (_ *Session, err error) {
	ctx, span := tracer.Start(ctx, "kratos.SignIn")
	defer func() { endSpan(span, err) }()

	flow, resp, err := k.public.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return nil, k.classify(ctx, "create login flow", resp, err)
	}

	body := kratos.UpdateLoginFlowWithPasswordMethod{
		Identifier: email,
		Password:   password,
		Method:     "password",
	}
	result, resp, err := k.public.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(kratos.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&body)).
		Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized) {
			return nil, ErrInvalidCredentials
		}
		return nil, k.classify(ctx, "submit login flow", resp, err)
	}

	session := result.GetSession()
	return toSession(&session, result.GetSessionToken())
}

// SignUp runs a native password registration flow.
func (k *Kratos) SignUp(ctx context.Context, email, password, fullName string) (_ *Registration, err error) {
	ctx, span := tracer.Start(ctx, "kratos.SignUp")
	defer func() { endSpan(span, err) }()

	flow, resp, err := k.public.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return nil, k.classify(ctx, "create registration flow", resp, err)
	}

	body := kratos.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: password,
		Traits:   traits(email, fullName),
	}
	result, resp, err := k.public.FrontendAPI.UpdateRegistrationFlow(ctx).
		Flow(flow.Id).
		UpdateRegistrationFlowBody(kratos.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&body)).
		Execute()
	if err != nil {
		return nil, k.classify(ctx, "submit registration flow", resp, err)
	}

	ident, err := toIdentity(&result.Identity)
	if err != nil {
		return nil, err
	}
	reg := &Registration{Identity: *ident}
	if result.Session != nil && result.GetSessionToken() != "" {
		if reg.Session, err = toSession(result.Session, result.GetSessionToken()); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// SignOut revokes the session behind token. Revoking an unknown or expired
// session is not an error.
func (k *Kratos) SignOut(ctx context.Context, token string) (err error) {
	ctx, span := tracer.Start(ctx, "kratos.SignOut")
	defer func() { endSpan(span, err) }()

	resp, err := k.public.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(*kratos.NewPerformNativeLogoutBody(token)).
		Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil
		}
		return k.classify(ctx, "logout", resp, err)
	}
	return nil
}

// WhoAmI validates token with the identity service. Invalid or expired tokens
// yield ErrNoSession; transport failures yield ErrUnavailable or ErrTimeout.
func (k *Kratos) WhoAmI(ctx context.Context, token string) (_ *Session, err error) {
	ctx, span := tracer.Start(ctx, "kratos.WhoAmI")
	defer func() { endSpan(span, err) }()

	session, resp, err := k.public.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrNoSession
		}
		return nil, k.classify(ctx, "whoami", resp, err)
	}
	return toSession(session, token)
}

// SendRecovery starts a recovery flow that emails a one-time code. Unknown
// addresses are not reported, matching the identity service's behavior.
func (k *Kratos) SendRecovery(ctx context.Context, email string) (err error) {
	ctx, span := tracer.Start(ctx, "kratos.SendRecovery")
	defer func() { endSpan(span, err) }()

	flow, resp, err := k.public.FrontendAPI.CreateNativeRecoveryFlow(ctx).Execute()
	if err != nil {
		return k.classify(ctx, "create recovery flow", resp, err)
	}

	body := kratos.UpdateRecoveryFlowWithCodeMethod{
		Method: "code",
		Email:  kratos.PtrString(email),
	}
	_, resp, err = k.public.FrontendAPI.UpdateRecoveryFlow(ctx).
		Flow(flow.Id).
		UpdateRecoveryFlowBody(kratos.UpdateRecoveryFlowWithCodeMethodAsUpdateRecoveryFlowBody(&body)).
		Execute()
	if err != nil {
		return k.classify(ctx, "submit recovery flow", resp, err)
	}
	return nil
}

// UpdatePassword changes the password of the identity behind token.
func (k *Kratos) UpdatePassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := tracer.Start(ctx, "kratos.UpdatePassword")
	defer func() { endSpan(span, err) }()

	flow, resp, err := k.public.FrontendAPI.CreateNativeSettingsFlow(ctx).XSessionToken(token).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrNoSession
		}
		return k.classify(ctx, "create settings flow", resp, err)
	}

	body := kratos.UpdateSettingsFlowWithPasswordMethod{
		Method:   "password",
		Password: newPassword,
	}
	_, resp, err = k.public.FrontendAPI.UpdateSettingsFlow(ctx).
		Flow(flow.Id).
		XSessionToken(token).
		UpdateSettingsFlowBody(kratos.UpdateSettingsFlowWithPasswordMethodAsUpdateSettingsFlowBody(&body)).
		Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrNoSession
		}
		return k.classify(ctx, "submit settings flow", resp, err)
	}
	return nil
}

// CreateIdentity creates an identity with a password credential.
func (k *Kratos) CreateIdentity(ctx context.Context, email, password, fullName string) (_ *Identity, err error) {
	ctx, span := tracer.Start(ctx, "kratos.CreateIdentity")
	defer func() { endSpan(span, err) }()

	body := kratos.CreateIdentityBody{
		SchemaId: k.schemaID,
		Traits:   traits(email, fullName),
		Credentials: &kratos.IdentityWithCredentials{
			Password: &kratos.IdentityWithCredentialsPassword{
				Config: &kratos.IdentityWithCredentialsPasswordConfig{
					Password: kratos.PtrString(password),
				},
			},
		},
	}
	created, resp, err := k.admin.IdentityAPI.CreateIdentity(ctx).CreateIdentityBody(body).Execute()
	if err != nil {
		return nil, k.classify(ctx, "create identity", resp, err)
	}
	return toIdentity(created)
}

// GetIdentity fetches an identity by ID.
func (k *Kratos) GetIdentity(ctx context.Context, id uuid.UUID) (_ *Identity, err error) {
	ctx, span := tracer.Start(ctx, "kratos.GetIdentity", trace.WithAttributes(attribute.String("identity.id", id.String())))
	defer func() { endSpan(span, err) }()

	ident, resp, err := k.admin.IdentityAPI.GetIdentity(ctx, id.String()).Execute()
	if err != nil {
		return nil, k.classify(ctx, "get identity", resp, err)
	}
	return toIdentity(ident)
}

// DeleteIdentity removes an identity and its credentials.
func (k *Kratos) DeleteIdentity(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "kratos.DeleteIdentity", trace.WithAttributes(attribute.String("identity.id", id.String())))
	defer func() { endSpan(span, err) }()

	resp, err := k.admin.IdentityAPI.DeleteIdentity(ctx, id.String()).Execute()
	if err != nil {
		return k.classify(ctx, "delete identity", resp, err)
	}
	return nil
}

// RevokeSessions revokes every session of an identity.
func (k *Kratos) RevokeSessions(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "kratos.RevokeSessions", trace.WithAttributes(attribute.String("identity.id", id.String())))
	defer func() { endSpan(span, err) }()

	resp, err := k.admin.IdentityAPI.DeleteIdentitySessions(ctx, id.String()).Execute()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			// No sessions to revoke.
			return nil
		}
		return k.classify(ctx, "revoke sessions", resp, err)
	}
	return nil
}

// Ping checks that the public API answers.
func (k *Kratos) Ping(ctx context.Context) error {
	_, resp, err := k.public.MetadataAPI.IsReady(ctx).Execute()
	if err != nil {
		return k.classify(ctx, "readiness", resp, err)
	}
	return nil
}

// classify maps a failed call onto the package errors.
func (k *Kratos) classify(ctx context.Context, op string, resp *http.Response, err error) error {
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	if resp == nil {
		k.logger.WarnContext(ctx, "identity service unreachable", "operation", op, "error", err)
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrIdentityNotFound
	case http.StatusConflict:
		return ErrIdentityExists
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		msg := errorBody(err)
		if containsAny(msg, "exists already", "already exists") {
			return ErrIdentityExists
		}
		field := ""
		if containsAny(msg, "password") {
			field = "password"
		} else if containsAny(msg, "email") {
			field = "email"
		}
		return &InvalidInputError{Field: field, Message: "rejected by identity service"}
	}

	k.logger.WarnContext(ctx, "identity service error", "operation", op, "status", resp.StatusCode, "error", err)
	return fmt.Errorf("%s: %w: status %d", op, ErrUnavailable, resp.StatusCode)
}

func errorBody(err error) string {
	var apiErr *kratos.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		return strings.ToLower(string(apiErr.Body()))
	}
	return strings.ToLower(err.Error())
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func traits(email, fullName string) map[string]interface{} {
	t := map[string]interface{}{"email": email}
	if fullName != "" {
		t["name"] = fullName
	}
	return t
}

func toSession(s *kratos.Session, token string) (*Session, error) {
	if s == nil || !s.GetActive() {
		return nil, ErrNoSession
	}
	if s.Identity == nil {
		return nil, fmt.Errorf("session %s has no identity", s.Id)
	}
	ident, err := toIdentity(s.Identity)
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        s.Id,
		Token:     token,
		Identity:  *ident,
		ExpiresAt: s.GetExpiresAt(),
	}, nil
}

func toIdentity(i *kratos.Identity) (*Identity, error) {
	id, err := uuid.Parse(i.Id)
	if err != nil {
		return nil, fmt.Errorf("invalid identity id %q: %w", i.Id, err)
	}
	out := &Identity{ID: id}
	if t, ok := i.Traits.(map[string]interface{}); ok {
		out.Email, _ = t["email"].(string)
		out.FullName = nameTrait(t["name"])
	}
	return out, nil
}

// nameTrait accepts either a plain string or {"first": ..., "last": ...}.
func nameTrait(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case map[string]interface{}:
		first, _ := n["first"].(string)
		last, _ := n["last"].(string)
		return strings.TrimSpace(first + " " + last)
	}
	return ""
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
