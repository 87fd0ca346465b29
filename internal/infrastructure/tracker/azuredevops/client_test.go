package azuredevops

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dreschagin/install-monitor/internal/application/port"
	"github.com/dreschagin/install-monitor/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL + "/DefaultCollection/", PAT: "secret-pat"}, logger.New("error"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestGetProject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/DefaultCollection/_apis/projects/devdiv" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "7.1" {
			t.Errorf("unexpected api-version %q", r.URL.RawQuery)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "" || pass != "secret-pat" {
			t.Errorf("unexpected basic auth %q %q %v", user, pass, ok)
		}
		_, _ = w.Write([]byte(`{"id":"0bdbc590-a062-4c3f-b0f6-9383f67865ee","name":"devdiv"}`))
	})

	project, err := client.GetProject(context.Background(), "devdiv")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if project == nil || project.ID != "0bdbc590-a062-4c3f-b0f6-9383f67865ee" || project.Name != "devdiv" {
		t.Fatalf("unexpected project %+v", project)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"TF200016: The following project does not exist"}`, http.StatusNotFound)
	})

	project, err := client.GetProject(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected nil error for 404, got %v", err)
	}
	if project != nil {
		t.Fatalf("expected nil project, got %+v", project)
	}
}

func TestGetProjectServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.GetProject(context.Background(), "devdiv")
	if err == nil || !strings.Contains(err.Error(), "azure devops returned 500") {
		t.Fatalf("expected error containing %q, got %v", "azure devops returned 500", err)
	}
}

func TestFindOpenTicket(t *testing.T) {
	var query string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/DefaultCollection/proj-1/_apis/wit/wiql":
			var body wiqlRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode wiql: %v", err)
			}
			query = body.Query
			_, _ = w.Write([]byte(`{"workItems":[{"id":42,"url":"https://dev.azure.com/_apis/wit/workItems/42"}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/DefaultCollection/proj-1/_apis/wit/workitems/42":
			_, _ = w.Write([]byte(`{"id":42,"fields":{"System.Title":"#download_sh# It's down","System.State":"Active"},"_links":{"html":{"href":"https://devdiv.visualstudio.com/web/wi.aspx?id=42"}}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ticket, err := client.FindOpenTicket(context.Background(), port.Project{ID: "proj-1"}, "#download_sh# It's down", `DevDiv\NET Tools`)
	if err != nil {
		t.Fatalf("FindOpenTicket() error = %v", err)
	}
	if ticket == nil || ticket.ID != 42 || ticket.State != "Active" || ticket.URL != "https://devdiv.visualstudio.com/web/wi.aspx?id=42" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	if !strings.Contains(query, "[System.Title] = '#download_sh# It_s down'") {
		t.Errorf("title not escaped in query %q", query)
	}
}

func TestFindOpenTicketNone(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"workItems":[]}`))
	})

	ticket, err := client.FindOpenTicket(context.Background(), port.Project{ID: "proj-1"}, "t", "a")
	if err != nil {
		t.Fatalf("FindOpenTicket() error = %v", err)
	}
	if ticket != nil {
		t.Fatalf("expected no ticket, got %+v", ticket)
	}
}

func TestCreateTicket(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/DefaultCollection/proj-1/_apis/wit/workitems/$Task" {
			t.Errorf("unexpected path %s", r.URL.EscapedPath())
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json-patch+json" {
			t.Errorf("unexpected content type %q", ct)
		}

		body, _ := io.ReadAll(r.Body)
		var ops []patchOperation
		if err := json.Unmarshal(body, &ops); err != nil {
			t.Fatalf("decode patch: %v", err)
		}
		want := []patchOperation{
			{Op: "add", Path: "/fields/System.AreaPath", Value: "Area"},
			{Op: "add", Path: "/fields/System.Title", Value: "#dry_run_LTS# Alert triggered"},
			{Op: "add", Path: "/fields/System.Description", Value: "{}"},
			{Op: "add", Path: "/fields/System.Tags", Value: "install-scripts; monitoring"},
		}
		if len(ops) != len(want) {
			t.Fatalf("got %d operations, want %d", len(ops), len(want))
		}
		for i := range want {
			if ops[i] != want[i] {
				t.Errorf("op[%d] = %+v, want %+v", i, ops[i], want[i])
			}
		}

		_, _ = w.Write([]byte(`{"id":7,"fields":{"System.Title":"#dry_run_LTS# Alert triggered","System.State":"New"},"_links":{"html":{"href":"https://devdiv.visualstudio.com/web/wi.aspx?id=7"}}}`))
	})

	ticket, err := client.CreateTicket(context.Background(), port.Project{ID: "proj-1"}, port.CreateTicketRequest{
		AreaPath:    "Area",
		Title:       "#dry_run_LTS# Alert triggered",
		Description: "{}",
		Tags:        []string{"install-scripts", "monitoring"},
	})
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	if ticket == nil || ticket.ID != 7 || ticket.URL != "https://devdiv.visualstudio.com/web/wi.aspx?id=7" || ticket.State != "New" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
}

func TestCreateTicketEmptyAnswer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ticket, err := client.CreateTicket(context.Background(), port.Project{ID: "proj-1"}, port.CreateTicketRequest{Title: "t"})
	if err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	if ticket != nil {
		t.Fatalf("expected nil ticket, got %+v", ticket)
	}
}

func TestDuplicateQuery(t *testing.T) {
	got := DuplicateQuery("#m# it's", `Dev'Div\Area`)
	want := "SELECT [System.Id] FROM workitems WHERE [System.Title] = '#m# it_s' AND [System.AreaPath] = 'Dev_Div\\Area'" +
		" AND NOT [System.State] IN ('6 - Closed', 'Closed', 'Resolved', 'Cut', 'Completed')"
	if got != want {
		t.Fatalf("DuplicateQuery() = %q, want %q", got, want)
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}, logger.New("error")); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
