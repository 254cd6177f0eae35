// Package mailer renders notification mails from templates and sends them
// over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/wneessen/go-mail"

	"github.com/dharsanguruparan/amenagements/internal/config"
)

// Kind identifies a mail template.
type Kind string

const (
	KindAccuseReception       Kind = "accuse_reception"
	KindNonConforme           Kind = "non_conforme"
	KindAttenteCharte         Kind = "attente_charte"
	KindAttenteAccompagnement Kind = "attente_accompagnement"
	KindRefusee               Kind = "refusee"
	KindValidee               Kind = "validee"
	KindDecision              Kind = "decision"
)

// Attachment is a file sent along a mail.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Sender is the mail gateway used by the workflow handlers.
type Sender interface {
	Send(ctx context.Context, kind Kind, to string, data map[string]string, attachments ...Attachment) error
}

// Operations reported by Error.
const (
	OpRender = "render"
	OpSend   = "send"
)

// Error is returned when a mail could not be rendered or delivered. Only
// delivery failures are transient.
type Error struct {
	Kind Kind
	To   string
	Op   string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("mail %s to %s: %v", e.Kind, e.To, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool { return e.Op == OpSend }

type templates struct {
	subject *template.Template
	body    *template.Template
}

var catalog = map[Kind][2]string{
	KindAccuseReception: {
		"Votre demande {{.demande}} a bien été reçue",
		"Bonjour {{.prenom}} {{.nom}},\n\nNous avons bien reçu votre demande {{.demande}}. Elle sera étudiée dans les meilleurs délais.\n{{with .commentaire}}\nCommentaire : {{.}}\n{{end}}",
	},
	KindNonConforme: {
		"Votre demande {{.demande}} n'est pas conforme",
		"Bonjour {{.prenom}} {{.nom}},\n\nVotre demande {{.demande}} a été jugée non conforme.\n{{with .commentaire}}\nMotif : {{.}}\n{{end}}",
	},
	KindAttenteCharte: {
		"Chartes à valider pour votre demande {{.demande}}",
		"Bonjour {{.prenom}} {{.nom}},\n\nMerci de valider les chartes associées à votre profil pour finaliser la demande {{.demande}}.\n",
	},
	KindAttenteAccompagnement: {
		"Accompagnement à confirmer pour votre demande {{.demande}}",
		"Bonjour {{.prenom}} {{.nom}},\n\nVotre demande {{.demande}} est en attente de validation de votre accompagnement.\n",
	},
	KindRefusee: {
		"Votre demande {{.demande}} a été refusée",
		"Bonjour {{.prenom}} {{.nom}},\n\nVotre demande {{.demande}} a été refusée.\n{{with .commentaire}}\nMotif : {{.}}\n{{end}}",
	},
	KindValidee: {
		"Votre demande {{.demande}} a été validée",
		"Bonjour {{.prenom}} {{.nom}},\n\nVotre demande {{.demande}} a été validée. Vous bénéficiez désormais d'un accompagnement.\n",
	},
	KindDecision: {
		"Décision d'aménagement d'examens {{.annee}}",
		"Bonjour {{.prenom}} {{.nom}},\n\nVous trouverez ci-joint votre décision d'aménagement d'examens pour l'année {{.annee}}.\n",
	},
}

func parseCatalog() map[Kind]templates {
	out := make(map[Kind]templates, len(catalog))
	for kind, src := range catalog {
		opt := "missingkey=zero"
		out[kind] = templates{
			subject: template.Must(template.New(string(kind) + ".subject").Option(opt).Parse(src[0])),
			body:    template.Must(template.New(string(kind) + ".body").Option(opt).Parse(src[1])),
		}
	}
	return out
}

var parsed = parseCatalog()

// Render returns the subject and body of kind filled with data.
func Render(kind Kind, data map[string]string) (subject, body string, err error) {
	t, ok := parsed[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown mail kind %q", kind)
	}
	var s, b bytes.Buffer
	if err := t.subject.Execute(&s, data); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := t.body.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return s.String(), b.String(), nil
}

// Mailer sends mails through an SMTP relay.
type Mailer struct {
	client *mail.Client
	from   string
	logger *slog.Logger
}

// New builds an SMTP Mailer. Authentication is only enabled when a username
// is configured.
func New(cfg *config.Config, logger *slog.Logger) (*Mailer, error) {
	opts := []mail.Option{mail.WithPort(cfg.SMTPPort), mail.WithTLSPolicy(mail.NoTLS)}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	return &Mailer{client: client, from: cfg.MailFrom, logger: logger}, nil
}

// Send renders kind and delivers it to a single recipient.
func (m *Mailer) Send(ctx context.Context, kind Kind, to string, data map[string]string, attachments ...Attachment) error {
	msg, err := m.build(kind, to, data, attachments)
	if err != nil {
		return &Error{Kind: kind, To: to, Op: OpRender, Err: err}
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return &Error{Kind: kind, To: to, Op: OpSend, Err: err}
	}
	m.logger.InfoContext(ctx, "mail sent", slog.String("kind", string(kind)), slog.String("to", to))
	return nil
}

func (m *Mailer) build(kind Kind, to string, data map[string]string, attachments []Attachment) (*mail.Msg, error) {
	subject, body, err := Render(kind, data)
	if err != nil {
		return nil, err
	}
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	for _, a := range attachments {
		ct := mail.WithFileContentType(mail.ContentType(a.ContentType))
		if err := msg.AttachReader(a.Name, bytes.NewReader(a.Data), ct); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return msg, nil
}
