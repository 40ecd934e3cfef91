package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"

	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/resilience"
	"github.com/sells-group/benefits-notice/internal/store"
)

// Graph scopes requested for Microsoft mailboxes.
var microsoftScopes = []string{
	"offline_access",
	"https://graph.microsoft.com/Mail.Send",
	"https://graph.microsoft.com/User.Read",
}

// GoogleOAuthConfig returns the consent config for Gmail send access.
func GoogleOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailSendScope, oauth2api.UserinfoEmailScope},
	}
}

// MicrosoftOAuthConfig returns the consent config for Graph Mail.Send.
// An empty tenant means "common".
func MicrosoftOAuthConfig(clientID, clientSecret, tenant, redirectURL string) *oauth2.Config {
	if tenant == "" {
		tenant = "common"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
		Scopes:       microsoftScopes,
	}
}

// TokenManager hands out valid access tokens for mail accounts, refreshing
// and persisting them as needed.
type TokenManager struct {
	store   store.Store
	configs map[model.MailProvider]*oauth2.Config
	retry   resilience.RetryConfig
}

// NewTokenManager returns a TokenManager for the providers in configs.
func NewTokenManager(st store.Store, configs map[model.MailProvider]*oauth2.Config) *TokenManager {
	return &TokenManager{store: st, configs: configs, retry: resilience.DefaultRetryConfig()}
}

// Token returns a usable token for acct. An expired token is refreshed,
// stored and copied back into acct. When the refresh is rejected the
// account is flagged for reconnect and ErrAccountNeedsReconnect returned.
func (m *TokenManager) Token(ctx context.Context, acct *model.MailAccount) (*oauth2.Token, error) {
	tok := &oauth2.Token{
		AccessToken:  acct.AccessToken,
		RefreshToken: acct.RefreshToken,
		TokenType:    "Bearer",
	}
	if acct.TokenExpiry != nil {
		tok.Expiry = *acct.TokenExpiry
	}
	if tok.Valid() {
		return tok, nil
	}

	cfg, ok := m.configs[acct.Provider]
	if !ok {
		return nil, eris.Errorf("notify: no oauth config for provider %s", acct.Provider)
	}
	if acct.RefreshToken == "" {
		return nil, m.needsReconnect(ctx, acct, eris.New("notify: no refresh token"))
	}

	fresh, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) (*oauth2.Token, error) {
		t, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: acct.RefreshToken}).Token()
		return t, classifyRefresh(err)
	})
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, eris.Wrapf(err, "notify: refresh token for %s", acct.Email)
		}
		return nil, m.needsReconnect(ctx, acct, err)
	}

	if fresh.RefreshToken == "" {
		fresh.RefreshToken = acct.RefreshToken
	}
	var expiry *time.Time
	if !fresh.Expiry.IsZero() {
		e := fresh.Expiry.UTC()
		expiry = &e
	}
	if err := m.store.UpdateMailAccountToken(ctx, acct.ID, fresh.AccessToken, fresh.RefreshToken, expiry); err != nil {
		return nil, eris.Wrap(err, "notify: persist refreshed token")
	}
	acct.AccessToken = fresh.AccessToken
	acct.RefreshToken = fresh.RefreshToken
	acct.TokenExpiry = expiry

	zap.L().Debug("mail account token refreshed",
		zap.String("account_id", acct.ID),
		zap.String("provider", string(acct.Provider)),
	)
	return fresh, nil
}

func (m *TokenManager) needsReconnect(ctx context.Context, acct *model.MailAccount, cause error) error {
	zap.L().Warn("mail account needs reconnect",
		zap.String("account_id", acct.ID),
		zap.String("email", acct.Email),
		zap.Error(cause),
	)
	if err := m.store.MarkMailAccountReconnect(ctx, acct.ID); err != nil {
		return eris.Wrap(err, "notify: mark account reconnect")
	}
	acct.NeedsReconnect = true
	return eris.Wrapf(ErrAccountNeedsReconnect, "notify: %s: %v", acct.Email, cause)
}

// classifyRefresh marks token endpoint failures the provider may recover
// from as transient. Rejected grants stay permanent.
func classifyRefresh(err error) error {
	if err == nil {
		return nil
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return resilience.FromHTTPStatus(err, re.Response.StatusCode)
	}
	return err
}
