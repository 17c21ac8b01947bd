// Package notify sends transactional email through the configured SMTP relay.
//
// Two message shapes exist: ad-hoc HTML mail with a fixed subject prefix, and
// templated mail addressed by template ID. Templated mail substitutes
// recipient fields and per-call extras into the stored subject and body;
// substitution keys are wrapped in dashes (-username-, -verification_url-),
// which is the delimiter convention the stored templates use.
//
// Callers must commit their own storage writes before dispatching — a
// delivery failure is logged and reported but must never force a rollback of
// account state.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// NoAffiliation is substituted for the organization field when the recipient
// has none.
const NoAffiliation = "(no affiliation)"

// Template IDs. Each names a stored subject/body pair in the registry below.
const (
	TemplateVerifyEmail   = "verify-email"
	TemplateNewSubscriber = "new-subscriber"
	TemplateInviteFriend  = "invite-friend"
)

// Unsubscribe group IDs, one per mail category. Emitted as a List-Unsubscribe
// header so recipients can opt out of a category without blocking the rest.
const (
	GroupAccomplishments = 10447
	GroupNewsletter      = 10445
)

// Recipient bundles the user fields templated mail may reference. It is
// assembled per-call and never persisted.
type Recipient struct {
	UserID       int64
	Username     string
	Email        string
	Organization string
	Level        string
	DateCreated  time.Time
}

// substitutions returns the recipient's fields keyed the way templates
// reference them.
func (r Recipient) substitutions() map[string]string {
	org := r.Organization
	if org == "" {
		org = NoAffiliation
	}
	return map[string]string{
		"user_id":      fmt.Sprintf("%d", r.UserID),
		"username":     r.Username,
		"email":        r.Email,
		"organization": org,
		"level":        r.Level,
		"date_created": r.DateCreated.Format("2006-01-02"),
	}
}

// Notifier delivers transactional email. The SMTP implementation is used in
// production; tests and mail-less deployments use the log-only one.
type Notifier interface {
	// Send delivers an ad-hoc HTML email to a single recipient. The subject
	// is prefixed with the site name by the implementation.
	Send(toEmail, toName, subject, htmlBody string) error

	// SendTemplated renders the named template with the recipient's fields
	// plus extra substitutions and delivers it to the recipient.
	SendTemplated(r Recipient, templateID string, extra map[string]string, groupID int) error

	// SendTemplatedSimple delivers a template that needs no recipient fields
	// beyond the address itself (subscription confirmations, invitations).
	SendTemplatedSimple(toEmail, templateID string, groupID int) error
}

// template is a stored subject/body pair with -key- placeholders.
type template struct {
	Subject string
	Body    string
}

// templates is the registry of stored templates. Bodies are deliberately
// short; the real copy lives with the marketing site and is synced here.
var templates = map[string]template{
	TemplateVerifyEmail: {
		Subject: "Verify your email address",
		Body: `<p>Hi -username-,</p>
<p>Confirm your affiliation with -organization- by verifying your email:</p>
<p><a href="-verification_url-">Verify my email</a></p>`,
	},
	TemplateNewSubscriber: {
		Subject: "Welcome to the newsletter",
		Body: `<p>Thanks for subscribing! We'll let you know when there's
news worth sharing.</p>`,
	},
	TemplateInviteFriend: {
		Subject: "You've been invited to compete",
		Body: `<p>A friend thinks you'd enjoy building a bot. Come claim a
spot on the leaderboard.</p>`,
	},
}

// render substitutes every -key- occurrence in the template's subject and
// body. Unknown placeholders are left intact; stored templates may carry
// keys a given call site does not supply.
func render(templateID string, subs map[string]string) (subject, body string, err error) {
	tpl, ok := templates[templateID]
	if !ok {
		return "", "", fmt.Errorf("notify: unknown template %q", templateID)
	}
	subject, body = tpl.Subject, tpl.Body
	for key, value := range subs {
		token := "-" + key + "-"
		subject = strings.ReplaceAll(subject, token, value)
		body = strings.ReplaceAll(body, token, value)
	}
	return subject, body, nil
}
