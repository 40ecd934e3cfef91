package notify

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/store"
	"github.com/sells-group/benefits-notice/pkg/msgraph"
)

// ErrUnknownProvider is returned for a provider with no OAuth client configured.
var ErrUnknownProvider = errors.New("notify: unknown mail provider")

// Connector runs the OAuth consent flow that connects a mailbox.
type Connector struct {
	store      store.Store
	configs    map[model.MailProvider]*oauth2.Config
	graph      msgraph.Client
	googleOpts []option.ClientOption
}

// NewConnector creates a Connector. googleOpts are appended when calling
// the Google userinfo endpoint. They must not include option.WithHTTPClient,
// which would replace the client that carries the access token; a base
// transport goes in the oauth2.HTTPClient context value instead.
func NewConnector(st store.Store, configs map[model.MailProvider]*oauth2.Config, graph msgraph.Client, googleOpts ...option.ClientOption) *Connector {
	return &Connector{store: st, configs: configs, graph: graph, googleOpts: googleOpts}
}

// AuthCodeURL returns the consent page for provider.
func (c *Connector) AuthCodeURL(provider model.MailProvider, state string) (string, error) {
	cfg, ok := c.configs[provider]
	if !ok {
		return "", eris.Wrapf(ErrUnknownProvider, "notify: %s", provider)
	}
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "consent")}
	if provider == model.ProviderGoogle {
		opts = append(opts, oauth2.AccessTypeOffline)
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// Complete exchanges the authorization code, looks up the mailbox address
// and stores the account. An empty employerID connects an admin mailbox.
func (c *Connector) Complete(ctx context.Context, provider model.MailProvider, employerID, code string) (*model.MailAccount, error) {
	cfg, ok := c.configs[provider]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownProvider, "notify: %s", provider)
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, eris.Wrapf(err, "notify: exchange %s code", provider)
	}

	var email, name string
	switch provider {
	case model.ProviderGoogle:
		email, name, err = c.googleIdentity(ctx, tok)
	case model.ProviderMicrosoft:
		email, name, err = c.graphIdentity(ctx, tok)
	default:
		err = eris.Wrapf(ErrUnknownProvider, "notify: %s", provider)
	}
	if err != nil {
		return nil, err
	}
	if email == "" {
		return nil, eris.Errorf("notify: %s account has no email address", provider)
	}

	acct := model.MailAccount{
		EmployerID:   employerID,
		Provider:     provider,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		DisplayName:  name,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		acct.TokenExpiry = &e
	}
	saved, err := c.store.UpsertMailAccount(ctx, acct)
	if err != nil {
		return nil, eris.Wrap(err, "notify: save mail account")
	}

	zap.L().Info("mail account connected",
		zap.String("provider", string(provider)),
		zap.String("employer_id", employerID),
		zap.String("email", saved.Email),
	)
	return saved, nil
}

func (c *Connector) googleIdentity(ctx context.Context, tok *oauth2.Token) (string, string, error) {
	svc, err := oauth2api.NewService(ctx, googleOptions(ctx, tok, c.googleOpts)...)
	if err != nil {
		return "", "", eris.Wrap(err, "notify: google userinfo client")
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", "", eris.Wrap(err, "notify: google userinfo")
	}
	return info.Email, info.Name, nil
}

func (c *Connector) graphIdentity(ctx context.Context, tok *oauth2.Token) (string, string, error) {
	me, err := c.graph.Me(ctx, tok.AccessToken)
	if err != nil {
		return "", "", eris.Wrap(err, "notify: graph me")
	}
	return me.Email(), me.DisplayName, nil
}
