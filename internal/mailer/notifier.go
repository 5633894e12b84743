package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/dtroode/account-server/internal/model"
)

const (
	subjectVerify = "Verify your email"
	subjectResend = "Resend Verification Code"
	subjectReset  = "Reset your password"
)

var templates = template.Must(template.New("mail").Parse(`
{{define "verify"}}<h2>Hello {{.FullName}},</h2>
<p>Your verification code is:</p>
<h1>{{.Code}}</h1>
<p>This code expires in {{.Minutes}} minutes.</p>
<p>{{.AppName}}</p>{{end}}

{{define "resend"}}<h2>Hello {{.FullName}},</h2>
<p>Your new verification code is:</p>
<h1>{{.Code}}</h1>
<p>This code expires in {{.Minutes}} minutes.</p>
<p>{{.AppName}}</p>{{end}}

{{define "reset"}}<h2>Password Reset Code</h2>
<p>Hello {{.FullName}}, use this code to reset your password:</p>
<h1>{{.Code}}</h1>
<p>This code expires in {{.Minutes}} minutes. If you did not ask for a reset, ignore this email.</p>
<p>{{.AppName}}</p>{{end}}
`))

var _ model.Notifier = (*Notifier)(nil)

type templateData struct {
	AppName  string
	FullName string
	Code     string
	Minutes  int
}

// Notifier renders the lifecycle emails and hands them to a Mailer.
type Notifier struct {
	mailer  model.Mailer
	appName string
	now     func() time.Time
}

func NewNotifier(mailer model.Mailer, appName string) *Notifier {
	return &Notifier{mailer: mailer, appName: appName, now: time.Now}
}

func (n *Notifier) SendVerificationCode(ctx context.Context, account model.Account, code model.OneTimeCode) error {
	return n.send(ctx, "verify", subjectVerify, account, code)
}

func (n *Notifier) ResendVerificationCode(ctx context.Context, account model.Account, code model.OneTimeCode) error {
	return n.send(ctx, "resend", subjectResend, account, code)
}

func (n *Notifier) SendResetCode(ctx context.Context, account model.Account, code model.OneTimeCode) error {
	return n.send(ctx, "reset", subjectReset, account, code)
}

func (n *Notifier) send(ctx context.Context, name, subject string, account model.Account, code model.OneTimeCode) error {
	minutes := int(math.Ceil(code.ExpiresAt.Sub(n.now()).Minutes()))
	if minutes < 1 {
		minutes = 1
	}

	var body bytes.Buffer
	err := templates.ExecuteTemplate(&body, name, templateData{
		AppName:  n.appName,
		FullName: account.FullName,
		Code:     code.Code,
		Minutes:  minutes,
	})
	if err != nil {
		return fmt.Errorf("failed to render %s email: %w", name, err)
	}

	if err := n.mailer.Send(ctx, account.Email, subject, body.String()); err != nil {
		return fmt.Errorf("failed to send %s email: %w", name, err)
	}
	return nil
}
