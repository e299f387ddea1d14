package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerdesk/ledgerdesk/internal/access"
	"github.com/ledgerdesk/ledgerdesk/internal/api/http/handlers"
	"github.com/ledgerdesk/ledgerdesk/internal/auth"
	"github.com/ledgerdesk/ledgerdesk/internal/clock"
	"github.com/ledgerdesk/ledgerdesk/internal/contentstore"
	"github.com/ledgerdesk/ledgerdesk/internal/directory"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
	"github.com/ledgerdesk/ledgerdesk/internal/events"
	"github.com/ledgerdesk/ledgerdesk/internal/ledger"
	"github.com/ledgerdesk/ledgerdesk/internal/observability"
	"github.com/ledgerdesk/ledgerdesk/internal/reconcile"
	"github.com/ledgerdesk/ledgerdesk/internal/service"
	"github.com/ledgerdesk/ledgerdesk/internal/workflow"
)

const (
	userAddr    = "0x1111111111111111111111111111111111111111"
	agentAddr   = "0x2222222222222222222222222222222222222222"
	agentAddr2  = "0x3333333333333333333333333333333333333333"
	managerAddr = "0x4444444444444444444444444444444444444444"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fake := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	mem := ledger.NewMemory(ledger.WithMemoryClock(fake))
	content, err := contentstore.NewClient(contentstore.NewMemoryRemote(), 64, contentstore.WithClock(fake))
	if err != nil {
		t.Fatalf("content client: %v", err)
	}
	roles := access.NewRoleDirectory(domain.RoleUser)
	for addr, role := range map[string]domain.Role{
		agentAddr:   domain.RoleAgent,
		agentAddr2:  domain.RoleAgent,
		managerAddr: domain.RoleManager,
	} {
		if err := roles.SetRole(addr, role); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	dir := directory.New()
	recon := reconcile.New(mem, content, dir,
		reconcile.WithDispatcher(dispatcher),
		reconcile.WithMetrics(metrics),
		reconcile.WithClock(fake))
	policy := access.NewPolicy(true)
	svc := service.NewTicketService(service.TicketDependencies{
		Gateway:    mem,
		Content:    content,
		Reconciler: recon,
		Directory:  dir,
		Engine:     workflow.NewEngine(policy, mem, metrics, nil),
		Policy:     policy,
		Roles:      roles,
		Dispatcher: dispatcher,
		Clock:      fake,
	})

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	app := fiber.New()
	RegisterMiddlewares(app, nil, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ledgerdesk", "test", nil, metrics),
		Tickets:        handlers.NewTicketsHandler(svc),
		Admin:          handlers.NewAdminHandler(svc),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, roles),
	})
	return &testServer{app: app, tokens: tokens}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code      string `json:"code"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, addr string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if addr != "" {
		token, _, err := s.tokens.GenerateToken(addr)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return resp.StatusCode, env
}

type submission struct {
	Receipt struct {
		Outcome  string `json:"outcome"`
		TicketID string `json:"ticket_id"`
	} `json:"receipt"`
	Ticket *struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Assignee string `json:"assignee"`
		Audit    []struct {
			Summary string `json:"summary"`
		} `json:"audit"`
	} `json:"ticket"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

func TestRoutes_TicketLifecycle(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	status, env := srv.do(t, "POST", "/tickets", userAddr, map[string]any{
		"title":       "VPN drops",
		"description": "Disconnects every ten minutes.",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d (%+v)", status, env.Error)
	}
	created := decode[submission](t, env.Data)
	if created.Receipt.Outcome != "accepted" || created.Ticket == nil {
		t.Fatalf("expected accepted create with ticket, got %+v", created)
	}
	id := created.Receipt.TicketID

	status, env = srv.do(t, "POST", "/tickets/"+id+"/transitions", userAddr, map[string]any{"action": "assign", "assignee": userAddr})
	if status != fiber.StatusForbidden || env.Error == nil || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected user transition to be unauthorized, got %d %+v", status, env.Error)
	}

	status, env = srv.do(t, "POST", "/tickets/"+id+"/transitions", agentAddr, map[string]any{"action": "assign"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 for self assign, got %d %+v", status, env.Error)
	}
	assigned := decode[submission](t, env.Data)
	if assigned.Ticket.Status != "IN_PROGRESS" || assigned.Ticket.Assignee != access.MustNormalize(agentAddr) {
		t.Fatalf("expected IN_PROGRESS assigned to agent, got %+v", assigned.Ticket)
	}

	status, env = srv.do(t, "POST", "/tickets/"+id+"/transitions", agentAddr2, map[string]any{"action": "assign", "expected_status": "open"})
	if status != fiber.StatusConflict || env.Error.Code != "STALE_STATE" || !env.Error.Retryable {
		t.Fatalf("expected retryable stale state, got %d %+v", status, env.Error)
	}

	status, env = srv.do(t, "POST", "/tickets/"+id+"/transitions", agentAddr, map[string]any{"action": "close"})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected agent close to be unauthorized, got %d %+v", status, env.Error)
	}

	status, env = srv.do(t, "POST", "/tickets/"+id+"/comments", userAddr, map[string]any{"content": "still broken"})
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201 for comment, got %d %+v", status, env.Error)
	}

	status, env = srv.do(t, "GET", "/tickets/"+id, userAddr, nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d %+v", status, env.Error)
	}
	detail := decode[struct {
		Description struct {
			Text  string `json:"text"`
			State string `json:"state"`
		} `json:"description"`
		Comments []struct {
			Body struct {
				Text string `json:"text"`
			} `json:"body"`
		} `json:"comments"`
		Audit []json.RawMessage `json:"audit"`
	}](t, env.Data)
	if detail.Description.Text != "Disconnects every ten minutes." || detail.Description.State != "RESOLVED" {
		t.Fatalf("expected resolved description, got %+v", detail.Description)
	}
	if len(detail.Comments) != 1 || detail.Comments[0].Body.Text != "still broken" {
		t.Fatalf("expected one comment, got %+v", detail.Comments)
	}
	if len(detail.Audit) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(detail.Audit))
	}

	status, env = srv.do(t, "GET", "/tickets/"+id+"/actions", agentAddr, nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	actions := decode[struct {
		Actions []string `json:"actions"`
	}](t, env.Data)
	if len(actions.Actions) != 2 || actions.Actions[0] != "comment" || actions.Actions[1] != "resolve" {
		t.Fatalf("expected [comment resolve], got %v", actions.Actions)
	}

	status, env = srv.do(t, "GET", "/tickets?status=in_progress", userAddr, nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if list := decode[[]json.RawMessage](t, env.Data); len(list) != 1 {
		t.Fatalf("expected 1 ticket, got %d", len(list))
	}

	for query, want := range map[string]int{"MINUTES": 1, "vpn": 1, "printer": 0} {
		status, env = srv.do(t, "GET", "/tickets?q="+query, userAddr, nil)
		if status != fiber.StatusOK {
			t.Fatalf("q=%s: expected 200, got %d", query, status)
		}
		if list := decode[[]json.RawMessage](t, env.Data); len(list) != want {
			t.Fatalf("q=%s: expected %d tickets, got %d", query, want, len(list))
		}
	}
}

func TestRoutes_AuthAndErrors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		addr   string
		body   any
		status int
		code   string
	}{
		{"no token", "GET", "/tickets", "", nil, fiber.StatusUnauthorized, "UNAUTHENTICATED"},
		{"unknown route", "GET", "/nope", "", nil, fiber.StatusNotFound, "NOT_FOUND"},
		{"unknown ticket", "GET", "/tickets/42", managerAddr, nil, fiber.StatusNotFound, "NOT_FOUND"},
		{"bad status filter", "GET", "/tickets?status=DONE", userAddr, nil, fiber.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown action", "POST", "/tickets/1/transitions", managerAddr, map[string]any{"action": "delete"}, fiber.StatusBadRequest, "VALIDATION_FAILED"},
		{"stats as user", "GET", "/tickets/stats", userAddr, nil, fiber.StatusForbidden, "UNAUTHORIZED"},
		{"roles as agent", "PUT", "/admin/roles/" + userAddr, agentAddr, map[string]any{"role": "agent"}, fiber.StatusForbidden, "UNAUTHORIZED"},
		{"unknown role", "PUT", "/admin/roles/" + userAddr, managerAddr, map[string]any{"role": "owner"}, fiber.StatusBadRequest, "VALIDATION_FAILED"},
		{"empty create", "POST", "/tickets", userAddr, map[string]any{"title": " "}, fiber.StatusBadRequest, "VALIDATION_FAILED"},
	}
	for _, tc := range cases {
		status, env := srv.do(t, tc.method, tc.path, tc.addr, tc.body)
		if status != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, status)
		}
		if env.Error == nil || env.Error.Code != tc.code {
			t.Fatalf("%s: expected code %s, got %+v", tc.name, tc.code, env.Error)
		}
	}
}

func TestRoutes_ManagerEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	status, env := srv.do(t, "PUT", "/admin/roles/"+userAddr, managerAddr, map[string]any{"role": "agent"})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d %+v", status, env.Error)
	}
	role := decode[struct {
		Role string `json:"role"`
	}](t, env.Data)
	if role.Role != "AGENT" {
		t.Fatalf("expected AGENT, got %s", role.Role)
	}

	if status, _ := srv.do(t, "POST", "/tickets", userAddr, map[string]any{"title": "t", "description": "d"}); status != fiber.StatusCreated {
		t.Fatalf("expected promoted agent to create, got %d", status)
	}
	status, env = srv.do(t, "GET", "/tickets/stats", managerAddr, nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	stats := decode[map[string]int](t, env.Data)
	if stats["OPEN"] != 1 || len(stats) != 4 {
		t.Fatalf("expected one open ticket across 4 statuses, got %v", stats)
	}

	if status, _ := srv.do(t, "GET", "/metrics", "", nil); status != fiber.StatusOK {
		t.Fatalf("expected metrics 200, got %d", status)
	}
}

func TestBlobRoutes(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	RegisterMiddlewares(app, nil, nil, 0)
	RegisterBlobRoutes(app,
		handlers.NewHealthHandler("blobstore", "test", nil, nil),
		handlers.NewBlobsHandler(contentstore.NewMemoryRemote()))

	resp, err := app.Test(httptest.NewRequest("PUT", "/blobs", bytes.NewReader([]byte("printer jammed"))))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var put struct {
		Digest string `json:"digest"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&put); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if put.Digest != contentstore.Digest([]byte("printer jammed")) {
		t.Fatalf("expected content digest, got %s", put.Digest)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/blobs/"+put.Digest, nil))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "printer jammed" {
		t.Fatalf("expected stored bytes, got %d %q", resp.StatusCode, body)
	}

	missing := contentstore.Digest([]byte("never stored"))
	resp, _ = app.Test(httptest.NewRequest("GET", "/blobs/"+missing, nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp, _ = app.Test(httptest.NewRequest("GET", "/blobs/garbage", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
