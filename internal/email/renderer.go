// Package email renders reminder messages into deliverable emails and
// processes the reminder queue for the email worker Lambda.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"tickler/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// templateData is the struct passed into Go templates for rendering.
type templateData struct {
	DisplayName   string
	Subject       string
	RequestedDate string
}

// subjects maps notification kinds to their email subject line.
var subjects = map[types.NotificationKind]string{
	types.KindTaskReminder: "Your task reminder",
	types.KindWeeklyDigest: "Your weekly digest",
}

// Renderer performs email rendering using Go templates embedded in the
// binary. Each notification kind has a matching HTML and plaintext template
// parsed at construction time; an unparseable template fails the cold start
// rather than the first send.
type Renderer struct {
	htmlTemplates map[types.NotificationKind]*template.Template
	textTemplates map[types.NotificationKind]*texttemplate.Template
	fromAddr      string
	fromName      string
	logger        types.Logger
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	FromAddr string
	FromName string
	Logger   types.Logger
}

// NewRenderer parses the embedded templates for every known notification
// kind and returns a Renderer. Returns an error if any template is missing
// or fails to parse.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	r := &Renderer{
		htmlTemplates: make(map[types.NotificationKind]*template.Template),
		textTemplates: make(map[types.NotificationKind]*texttemplate.Template),
		fromAddr:      cfg.FromAddr,
		fromName:      cfg.FromName,
		logger:        cfg.Logger,
	}

	baseHTML, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read base.html: %w", err)
	}

	for _, kind := range types.KnownKinds {
		name := string(kind)

		htmlContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.html", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.html: %w", name, err)
		}
		htmlTmpl, err := template.New("base").Parse(string(baseHTML))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse base.html: %w", err)
		}
		if _, err := htmlTmpl.Parse(string(htmlContent)); err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.html: %w", name, err)
		}
		r.htmlTemplates[kind] = htmlTmpl

		txtContent, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.txt", name))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.txt: %w", name, err)
		}
		txtTmpl, err := texttemplate.New(name).Parse(string(txtContent))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.txt: %w", name, err)
		}
		r.textTemplates[kind] = txtTmpl
	}

	return r, nil
}

// Render produces a complete SendInput for the reminder message addressed to
// the resolved recipient. An unknown kind is a permanent failure; the worker
// must not re-queue it.
func (r *Renderer) Render(msg types.ReminderMessage, rec types.Recipient) (types.SendInput, error) {
	htmlTmpl, ok := r.htmlTemplates[msg.Kind]
	if !ok {
		return types.SendInput{}, types.NewAppError(
			types.ErrCodeValidationInvalidKind,
			fmt.Sprintf("no template for notification kind %q", msg.Kind),
			nil,
		)
	}
	txtTmpl := r.textTemplates[msg.Kind]

	displayName := rec.DisplayName
	if displayName == "" {
		displayName = rec.Email
	}

	data := templateData{
		DisplayName:   displayName,
		Subject:       subjects[msg.Kind],
		RequestedDate: formatRequestedAt(msg.RequestedAt),
	}

	var htmlBuf bytes.Buffer
	if err := htmlTmpl.ExecuteTemplate(&htmlBuf, "base", data); err != nil {
		return types.SendInput{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to render HTML body for kind %q", msg.Kind),
			err,
		)
	}

	var txtBuf bytes.Buffer
	if err := txtTmpl.Execute(&txtBuf, data); err != nil {
		return types.SendInput{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to render text body for kind %q", msg.Kind),
			err,
		)
	}

	return types.SendInput{
		To: rec.Email,
		From: types.EmailAddress{
			Address: r.fromAddr,
			Name:    r.fromName,
		},
		Subject:     data.Subject,
		BodyHTML:    htmlBuf.String(),
		BodyText:    txtBuf.String(),
		ReferenceID: msg.MessageID,
	}, nil
}

// formatRequestedAt is kept separate so tests can pin the display format.
func formatRequestedAt(t time.Time) string {
	return t.Format("Monday, January 2")
}
