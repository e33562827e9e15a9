package notifications

import (
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/ubuntu-health/sponsorship-api/internal/logger"
)

// Event is a notification-worthy escrow occurrence. Delivery is
// fire-and-forget: a failed notification is logged and dropped, never
// allowed to block or roll back the state change that produced it.
type Event struct {
	Type           string
	CampaignID     string
	MilestoneIndex int
	Amount         int64
	Detail         string
}

// Event types emitted by the escrow and verifier.
const (
	EventMilestoneVerified = "milestone.verified"
	EventMilestoneReleased = "milestone.released"
	EventCampaignFunded    = "campaign.funded"
	EventCampaignCompleted = "campaign.completed"
	EventCampaignExpired   = "campaign.expired"
)

// Notifier delivers escrow events to interested humans.
type Notifier interface {
	Notify(event Event)
}

// NoopNotifier drops all events. Used when no email credentials are
// configured and in tests.
type NoopNotifier struct{}

// Notify implements Notifier.
func (NoopNotifier) Notify(Event) {}

// EmailNotifier sends event digests through Resend.
type EmailNotifier struct {
	client *resend.Client
	from   string
	to     []string
	log    *zap.Logger
}

// NewEmailNotifier creates a notifier sending from the given address to
// the platform notification inbox.
func NewEmailNotifier(apiKey, from string, to []string) *EmailNotifier {
	return &EmailNotifier{
		client: resend.NewClient(apiKey),
		from:   from,
		to:     to,
		log:    logger.Log,
	}
}

// Notify implements Notifier. The send happens on its own goroutine so
// callers never wait on the email provider.
func (n *EmailNotifier) Notify(event Event) {
	go func() {
		subject := fmt.Sprintf("[Ubuntu Health] %s, campaign %s", event.Type, event.CampaignID)
		body := fmt.Sprintf(
			"Event: %s\nCampaign: %s\nMilestone: %d\nAmount: %d\n\n%s\n",
			event.Type, event.CampaignID, event.MilestoneIndex, event.Amount, event.Detail,
		)

		_, err := n.client.Emails.Send(&resend.SendEmailRequest{
			From:    n.from,
			To:      n.to,
			Subject: subject,
			Text:    body,
			Tags: []resend.Tag{
				{Name: "category", Value: "escrow"},
				{Name: "event_type", Value: event.Type},
			},
		})
		if err != nil {
			n.log.Error("Failed to send notification email",
				zap.String("event_type", event.Type),
				zap.String("campaign_id", event.CampaignID),
				zap.Error(err))
		}
	}()
}
