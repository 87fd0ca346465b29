// Package azuredevops files incident tickets as Azure DevOps work items over the REST API.
package azuredevops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dreschagin/install-monitor/internal/application/port"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

const (
	defaultAPIVersion   = "7.1"
	defaultWorkItemType = "Task"
	defaultTimeout      = 15 * time.Second

	maxErrorBody = 512
)

// terminalStates are work item states that no longer count as an open duplicate.
var terminalStates = []string{"6 - Closed", "Closed", "Resolved", "Cut", "Completed"}

type Config struct {
	// BaseURL is the collection URI, e.g. https://devdiv.visualstudio.com/DefaultCollection/
	BaseURL      string
	PAT          string
	WorkItemType string
	APIVersion   string
	Timeout      time.Duration
}

// Client implements port.TicketTracker.
type Client struct {
	baseURL      string
	pat          string
	workItemType string
	apiVersion   string
	httpClient   *http.Client
	logger       *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("azure devops base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid azure devops base url: %w", err)
	}
	if cfg.WorkItemType == "" {
		cfg.WorkItemType = defaultWorkItemType
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		baseURL:      base,
		pat:          cfg.PAT,
		workItemType: cfg.WorkItemType,
		apiVersion:   cfg.APIVersion,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		logger:       log,
	}, nil
}

type projectResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wiqlRequest struct {
	Query string `json:"query"`
}

type wiqlResponse struct {
	WorkItems []struct {
		ID  int    `json:"id"`
		URL string `json:"url"`
	} `json:"workItems"`
}

type patchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

type workItemResponse struct {
	ID     int                    `json:"id"`
	Fields map[string]interface{} `json:"fields"`
	Links  struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"_links"`
}

// GetProject returns nil, nil on 404 so the caller can report a missing project.
func (c *Client) GetProject(ctx context.Context, name string) (*port.Project, error) {
	endpoint := fmt.Sprintf("%s/_apis/projects/%s", c.baseURL, url.PathEscape(name))

	var resp projectResponse
	status, err := c.do(ctx, http.MethodGet, endpoint, "", nil, &resp)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, nil
	}

	return &port.Project{ID: resp.ID, Name: resp.Name}, nil
}

func (c *Client) FindOpenTicket(ctx context.Context, project port.Project, title, areaPath string) (*port.Ticket, error) {
	endpoint := fmt.Sprintf("%s/%s/_apis/wit/wiql", c.baseURL, url.PathEscape(project.ID))

	var resp wiqlResponse
	if _, err := c.do(ctx, http.MethodPost, endpoint, "application/json", wiqlRequest{Query: DuplicateQuery(title, areaPath)}, &resp); err != nil {
		return nil, fmt.Errorf("wiql query failed: %w", err)
	}
	if len(resp.WorkItems) == 0 {
		return nil, nil
	}

	id := resp.WorkItems[0].ID
	ticket, err := c.getWorkItem(ctx, project, id)
	if err != nil {
		c.logger.Warn("Failed to load duplicate work item details", "id", id, "error", err.Error())
		return &port.Ticket{ID: id, Title: title, URL: resp.WorkItems[0].URL}, nil
	}
	return ticket, nil
}

// CreateTicket returns nil, nil when the service answers without a work item id.
func (c *Client) CreateTicket(ctx context.Context, project port.Project, req port.CreateTicketRequest) (*port.Ticket, error) {
	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/$%s",
		c.baseURL, url.PathEscape(project.ID), url.PathEscape(c.workItemType))

	var resp workItemResponse
	if _, err := c.do(ctx, http.MethodPost, endpoint, "application/json-patch+json", newWorkItemPatch(req), &resp); err != nil {
		return nil, fmt.Errorf("create work item failed: %w", err)
	}
	if resp.ID == 0 {
		return nil, nil
	}

	return resp.toTicket(), nil
}

func (c *Client) getWorkItem(ctx context.Context, project port.Project, id int) (*port.Ticket, error) {
	endpoint := fmt.Sprintf("%s/%s/_apis/wit/workitems/%d", c.baseURL, url.PathEscape(project.ID), id)

	var resp workItemResponse
	if _, err := c.do(ctx, http.MethodGet, endpoint+"?$expand=links", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.toTicket(), nil
}

// DuplicateQuery builds the WIQL that finds open work items with this exact title and area path.
// Single quotes are replaced with underscores.
func DuplicateQuery(title, areaPath string) string {
	quoted := make([]string, len(terminalStates))
	for i, s := range terminalStates {
		quoted[i] = "'" + s + "'"
	}

	return fmt.Sprintf(
		"SELECT [System.Id] FROM workitems WHERE [System.Title] = '%s' AND [System.AreaPath] = '%s' AND NOT [System.State] IN (%s)",
		wiqlEscape(title),
		wiqlEscape(areaPath),
		strings.Join(quoted, ", "),
	)
}

func wiqlEscape(value string) string {
	return strings.ReplaceAll(value, "'", "_")
}

func newWorkItemPatch(req port.CreateTicketRequest) []patchOperation {
	ops := []patchOperation{
		{Op: "add", Path: "/fields/System.AreaPath", Value: req.AreaPath},
		{Op: "add", Path: "/fields/System.Title", Value: req.Title},
		{Op: "add", Path: "/fields/System.Description", Value: req.Description},
	}
	if len(req.Tags) > 0 {
		ops = append(ops, patchOperation{Op: "add", Path: "/fields/System.Tags", Value: strings.Join(req.Tags, "; ")})
	}
	return ops
}

func (r workItemResponse) toTicket() *port.Ticket {
	ticket := &port.Ticket{ID: r.ID, URL: r.Links.HTML.Href}
	if title, ok := r.Fields["System.Title"].(string); ok {
		ticket.Title = title
	}
	if state, ok := r.Fields["System.State"].(string); ok {
		ticket.State = state
	}
	return ticket
}

// do sends one API call and decodes the JSON answer into out.
// The HTTP status is returned even when err is set.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.withAPIVersion(endpoint), reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.SetBasicAuth("", c.pat)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return resp.StatusCode, fmt.Errorf("azure devops returned %d: %s", resp.StatusCode, snippet)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) withAPIVersion(endpoint string) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "api-version=" + url.QueryEscape(c.apiVersion)
}
