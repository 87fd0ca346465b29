package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const incidentThemeColor = "FF5555"

// Connector posts incident cards to a Teams incoming webhook.
// It implements port.IncidentNotifier and is safe for concurrent use.
type Connector struct {
	webhookURL string
	httpClient *http.Client
}

func NewConnector(webhookURL string, timeout time.Duration) (*Connector, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return nil, fmt.Errorf("teams webhook url can not be empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Connector{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// MessageCard is the legacy connector card format accepted by Teams webhooks.
type MessageCard struct {
	Context         string          `json:"@context"`
	Type            string          `json:"@type"`
	ThemeColor      string          `json:"themeColor"`
	Title           string          `json:"title"`
	Text            string          `json:"text"`
	PotentialAction []OpenURIAction `json:"potentialAction"`
}

type OpenURIAction struct {
	Type    string      `json:"@type"`
	Name    string      `json:"name"`
	Targets []URITarget `json:"targets"`
}

type URITarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

func NewIncidentCard(title, description, ticketURL string) MessageCard {
	return MessageCard{
		Context:    "https://schema.org/extensions",
		Type:       "MessageCard",
		ThemeColor: incidentThemeColor,
		Title:      title,
		Text:       description,
		PotentialAction: []OpenURIAction{
			{
				Type:    "OpenUri",
				Name:    "Go To Work Item",
				Targets: []URITarget{{OS: "default", URI: ticketURL}},
			},
		},
	}
}

func (c *Connector) SendIncidentCard(ctx context.Context, title, description, ticketURL string) error {
	payload, err := json.Marshal(NewIncidentCard(title, description, ticketURL))
	if err != nil {
		return fmt.Errorf("failed to marshal incident card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send incident card: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sending incident card has failed with http status code %d", resp.StatusCode)
	}
	return nil
}
