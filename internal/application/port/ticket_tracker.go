package port

import "context"

// Project is the tracker project tickets are filed under.
type Project struct {
	ID   string
	Name string
}

// Ticket is a work item as returned by the tracker.
type Ticket struct {
	ID    int
	Title string
	State string
	URL   string
}

// CreateTicketRequest carries the fields of a new ticket.
type CreateTicketRequest struct {
	AreaPath    string
	Title       string
	Description string
	Tags        []string
}

// TicketTracker is the external work item system.
type TicketTracker interface {
	// GetProject returns nil, nil when the project does not exist or is not visible.
	GetProject(ctx context.Context, name string) (*Project, error)

	// FindOpenTicket returns the first ticket with exactly this title under areaPath that is
	// not in a terminal state, or nil when there is none.
	FindOpenTicket(ctx context.Context, project Project, title, areaPath string) (*Ticket, error)

	// CreateTicket may return nil, nil when the tracker answered without a work item.
	CreateTicket(ctx context.Context, project Project, req CreateTicketRequest) (*Ticket, error)
}
