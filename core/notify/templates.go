package notify

import (
	"fmt"
	"strings"
	"time"
)

const (
	EventRegistration      = "registration"
	EventLogin             = "login"
	EventIncidentSubmitted = "incident_submitted"
	EventResponseReceived  = "response_received"
	EventPasswordReset     = "password_reset"
)

type Template struct {
	Subject string
	Body    string
}

type Templates map[string]Template

// Data holds the values interpolated into a template.
type Data struct {
	Username    string
	Title       string
	Description string
	Status      string
	Link        string
	Responder   string
	Timestamp   time.Time
}

func DefaultTemplates() Templates {
	return Templates{
		EventRegistration: {
			Subject: "Welcome to Incident Desk",
			Body:    "Hello {username},\n\nyour account was created on {timestamp}.\nYou can now report incidents and follow their responses.",
		},
		EventLogin: {
			Subject: "New sign-in to your account",
			Body:    "Hello {username},\n\nyour account was signed in on {timestamp}.\nIf this was not you, reset your password.",
		},
		EventIncidentSubmitted: {
			Subject: "Incident received: {title}",
			Body:    "Hello {username},\n\nwe received your incident report.\n\nTitle: {title}\nDescription: {description}\nStatus: {status}\nSubmitted: {timestamp}",
		},
		EventResponseReceived: {
			Subject: "New response to: {title}",
			Body:    "Hello {username},\n\n{responder} responded to your incident \"{title}\" on {timestamp}:\n\n{description}\n\nStatus: {status}",
		},
		EventPasswordReset: {
			Subject: "Password Reset Request",
			Body:    "Hello {username},\n\nclick the link to reset your password: {link}\nThe link can be used once and expires soon.",
		},
	}
}

func (t Templates) Render(event, to string, data Data) (Message, error) {
	tpl, ok := t[event]
	if !ok {
		return Message{}, fmt.Errorf("no template for event %q", event)
	}
	ts := data.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	r := strings.NewReplacer(
		"{username}", data.Username,
		"{title}", data.Title,
		"{description}", data.Description,
		"{status}", data.Status,
		"{link}", data.Link,
		"{responder}", data.Responder,
		"{timestamp}", ts.UTC().Format("2006-01-02 15:04 MST"),
	)
	return Message{
		Event:   event,
		To:      to,
		Subject: r.Replace(tpl.Subject),
		Body:    r.Replace(tpl.Body),
	}, nil
}
