package main

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/sells-group/benefits-notice/internal/compliance"
	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/notify"
	"github.com/sells-group/benefits-notice/internal/store"
	"github.com/sells-group/benefits-notice/pkg/msgraph"
)

// app holds the services shared by the commands.
type app struct {
	Store  store.Store
	Engine *compliance.Engine
}

func openApp(ctx context.Context) (*app, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	return &app{Store: st, Engine: compliance.NewEngine(st, cfg.Import.BatchSize)}, nil
}

func (a *app) Close() {
	_ = a.Store.Close()
}

// oauthConfigs returns the OAuth clients for the configured providers.
func oauthConfigs() map[model.MailProvider]*oauth2.Config {
	base := cfg.Mail.Settings().AppBaseURL
	configs := make(map[model.MailProvider]*oauth2.Config)
	if cfg.Google.Configured() {
		configs[model.ProviderGoogle] = notify.GoogleOAuthConfig(
			cfg.Google.ClientID, cfg.Google.ClientSecret, base+"/oauth/google/callback")
	}
	if cfg.Microsoft.Configured() {
		configs[model.ProviderMicrosoft] = notify.MicrosoftOAuthConfig(
			cfg.Microsoft.ClientID, cfg.Microsoft.ClientSecret, cfg.Microsoft.Tenant, base+"/oauth/microsoft/callback")
	}
	return configs
}

// mailer wires the bulk sender with every available dispatcher.
func (a *app) mailer() (*notify.Mailer, error) {
	tpl, err := notify.LoadTemplates(cfg.Mail.TemplatesPath)
	if err != nil {
		return nil, err
	}
	dispatchers := map[model.MailProvider]notify.Dispatcher{
		model.ProviderGoogle:    notify.NewGmailDispatcher(),
		model.ProviderMicrosoft: notify.NewGraphDispatcher(msgraph.NewClient()),
	}
	if relay := cfg.Mail.SMTPRelay(); relay.Configured() {
		dispatchers[model.ProviderSMTP] = notify.NewSMTPDispatcher(relay)
	}
	return notify.NewMailer(
		a.Store,
		a.Engine,
		tpl,
		notify.NewTokenManager(a.Store, oauthConfigs()),
		dispatchers,
		cfg.Mail.Settings(),
		cfg.Mail.Mailer(),
	), nil
}

func (a *app) connector() *notify.Connector {
	configs := oauthConfigs()
	if len(configs) == 0 {
		return nil
	}
	return notify.NewConnector(a.Store, configs, msgraph.NewClient())
}
