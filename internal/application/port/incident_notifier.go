package port

import "context"

// IncidentNotifier announces newly created tickets to people, e.g. a Teams channel.
type IncidentNotifier interface {
	SendIncidentCard(ctx context.Context, title, description, ticketURL string) error
}
