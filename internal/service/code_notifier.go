package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/mail"
)

type CodeNotification struct {
	Email     string
	Name      string
	Code      string
	Purpose   domain.CodePurpose
	ExpiresAt time.Time
}

// CodeNotifier delivers a freshly issued one-time code.
type CodeNotifier interface {
	SendCode(ctx context.Context, n CodeNotification) error
}

type MailCodeNotifier struct {
	sender mail.Sender
	brand  string
}

func NewMailCodeNotifier(sender mail.Sender, brand string) *MailCodeNotifier {
	if brand == "" {
		brand = "A CLUB TRAVEL"
	}
	return &MailCodeNotifier{sender: sender, brand: brand}
}

var codeMailHTML = template.Must(template.New("code").Parse(
	`<p>{{if .Name}}{{.Name}}, y{{else}}Y{{end}}our {{.Kind}} code is <strong>{{.Code}}</strong>.</p>` +
		`<p>It expires in {{.Minutes}} minutes. If you did not ask for it, ignore this email.</p>`))

func (n *MailCodeNotifier) SendCode(ctx context.Context, note CodeNotification) error {
	kind := "confirmation"
	subject := "Confirmation code - " + n.brand
	if note.Purpose == domain.CodePurposeReset {
		kind = "password reset"
		subject = "Password reset code - " + n.brand
	}
	minutes := int(time.Until(note.ExpiresAt).Round(time.Minute) / time.Minute)
	if minutes <= 0 {
		minutes = int(domain.DefaultCodeTTL / time.Minute)
	}

	var html bytes.Buffer
	err := codeMailHTML.Execute(&html, map[string]any{
		"Name":    note.Name,
		"Kind":    kind,
		"Code":    note.Code,
		"Minutes": minutes,
	})
	if err != nil {
		return fmt.Errorf("render code mail: %w", err)
	}
	return n.sender.Send(ctx, mail.Message{
		To:      note.Email,
		Subject: subject,
		Text:    fmt.Sprintf("Your %s code: %s\nThe code is valid for %d minutes.", kind, note.Code, minutes),
		HTML:    html.String(),
	})
}
