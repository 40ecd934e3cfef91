package model

import "time"

// MailProvider identifies the API a mail account sends through.
type MailProvider string

const (
	ProviderGoogle    MailProvider = "google"
	ProviderMicrosoft MailProvider = "microsoft"
	ProviderSMTP      MailProvider = "smtp"
)

// MailAccount is a connected sending account. EmployerID is empty for the
// application's admin account.
type MailAccount struct {
	ID             string       `json:"id"`
	EmployerID     string       `json:"employer_id,omitempty"`
	Provider       MailProvider `json:"provider"`
	Email          string       `json:"email"`
	DisplayName    string       `json:"display_name,omitempty"`
	AccessToken    string       `json:"-"`
	RefreshToken   string       `json:"-"`
	TokenExpiry    *time.Time   `json:"token_expiry,omitempty"`
	NeedsReconnect bool         `json:"needs_reconnect"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Connected reports whether the account holds credentials that can still
// mint an access token.
func (a MailAccount) Connected() bool {
	if a.NeedsReconnect {
		return false
	}
	return a.RefreshToken != "" || a.AccessToken != ""
}
