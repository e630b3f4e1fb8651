package notify

import (
	"incident-desk/core/apperr"
	"incident-desk/core/utils"
)

// Queue accepts a rendered message for asynchronous delivery.
type Queue interface {
	Enqueue(msg Message) error
}

// Notifier renders lifecycle events and queues them. The error it returns
// is always a notification error and is meant to be shown as a warning.
type Notifier struct {
	templates Templates
	queue     Queue
	logger    *utils.Logger
}

func NewNotifier(templates Templates, queue Queue, logger *utils.Logger) *Notifier {
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Notifier{templates: templates, queue: queue, logger: logger}
}

func (n *Notifier) Notify(event, to string, data Data) error {
	if n == nil || n.queue == nil {
		return nil
	}
	if to == "" {
		return apperr.Notification("notify.noRecipient", nil)
	}
	msg, err := n.templates.Render(event, to, data)
	if err != nil {
		n.logger.Errorf("notify: render %s: %v", event, err)
		return apperr.Notification("notify.template", err)
	}
	return n.queue.Enqueue(msg)
}
