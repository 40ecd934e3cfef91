// Package notify sends notice and reminder emails through the employer's
// connected mailbox, the admin mailbox, or an SMTP relay.
package notify

import (
	"errors"
	"strings"

	"golang.org/x/oauth2"

	"github.com/sells-group/benefits-notice/internal/model"
)

var (
	// ErrNoSender means no connected account or relay can send for an
	// employer.
	ErrNoSender = errors.New("notify: no sender available")
	// ErrAccountNeedsReconnect means the account's refresh token no longer
	// works and the owner must connect it again.
	ErrAccountNeedsReconnect = errors.New("notify: mail account needs reconnect")
)

// Settings is the process configuration the dispatch component needs. It
// is passed in at construction.
type Settings struct {
	AdminSenderEmail string
	AppBaseURL       string
}

// NoticeURL returns the employee-facing notice link for token.
func (s Settings) NoticeURL(token string) string {
	return strings.TrimRight(s.AppBaseURL, "/") + "/n/" + token
}

// Sender is the mailbox a batch is sent from. Account is nil for the SMTP
// relay. Token is filled in after refresh.
type Sender struct {
	Provider model.MailProvider
	Email    string
	Name     string
	Account  *model.MailAccount
	Token    *oauth2.Token
}

// SelectSender picks the sending mailbox for an employer: its most
// recently updated connected account, then the connected admin account
// whose email matches AdminSenderEmail, then the SMTP relay sending as
// AdminSenderEmail. Accounts are expected most recent first.
func SelectSender(employerAccounts, adminAccounts []model.MailAccount, settings Settings, smtpConfigured bool) (Sender, error) {
	for i := range employerAccounts {
		if employerAccounts[i].Connected() {
			return accountSender(employerAccounts[i]), nil
		}
	}

	admin := strings.ToLower(strings.TrimSpace(settings.AdminSenderEmail))
	if admin == "" {
		return Sender{}, ErrNoSender
	}
	for i := range adminAccounts {
		a := adminAccounts[i]
		if a.Connected() && strings.EqualFold(a.Email, admin) {
			return accountSender(a), nil
		}
	}

	if smtpConfigured {
		return Sender{Provider: model.ProviderSMTP, Email: admin}, nil
	}
	return Sender{}, ErrNoSender
}

func accountSender(a model.MailAccount) Sender {
	return Sender{
		Provider: a.Provider,
		Email:    a.Email,
		Name:     a.DisplayName,
		Account:  &a,
	}
}
