package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/perimetra/tunnelgate/internal/config"
	"github.com/perimetra/tunnelgate/internal/gateway"
	"github.com/perimetra/tunnelgate/internal/tunnel"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// setupManager wires the package-level handler state to a manager backed by
// stub external tools, mirroring the wiring in main.
func setupManager(t *testing.T) *tunnel.Manager {
	t.Helper()

	profiles := map[string]config.Profile{
		"sit": {PreferredPort: freePort(t), RemoteHost: "sit-db.internal"},
	}
	config.Environments = profiles

	b := tunnel.NewBroadcaster()
	m := tunnel.NewManager(tunnel.Options{
		Profiles: profiles,
		Tools: tunnel.Tools{
			Login:  []string{"true"},
			Status: []string{"true"},
			Logout: []string{"true"},
		},
		TunnelCommand: []string{"sh", "-c", "sleep 60", "tunnel"},
		Bastion:       "bastion.test:22",
		ConfirmDelay:  150 * time.Millisecond,
	}, b)

	Tunnels = m
	Broadcast = b
	SQLGateway = gateway.New(200 * time.Millisecond)

	t.Cleanup(func() { m.Disconnect(context.Background()) })
	return m
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestGetStatus_Disconnected(t *testing.T) {
	setupManager(t)

	rec := httptest.NewRecorder()
	GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["connected"] != false {
		t.Errorf("connected = %v, want false", body["connected"])
	}
	if body["localPort"] != nil {
		t.Errorf("localPort = %v, want null", body["localPort"])
	}
}

func TestConnectTunnel_EndToEnd(t *testing.T) {
	m := setupManager(t)
	want := config.Environments["sit"].PreferredPort

	reqBody := bytes.NewBufferString(`{"environment":"sit"}`)
	rec := httptest.NewRecorder()
	ConnectTunnel(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tunnel/connect", reqBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if got := int(body["tunnelPort"].(float64)); got != want {
		t.Errorf("tunnelPort = %d, want %d", got, want)
	}

	snap := m.Status()
	if !snap.Connected || snap.Environment == nil || *snap.Environment != "sit" {
		t.Errorf("manager snapshot = %+v, want connected to sit", snap)
	}
}

// A client dropping the HTTP connection mid-attempt must not abort the
// connect: the external tools and the confirmation wait run to completion
// regardless of the request context.
func TestConnectTunnel_SurvivesClientDisconnect(t *testing.T) {
	m := setupManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // the client is already gone

	reqBody := bytes.NewBufferString(`{"environment":"sit"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tunnel/connect", reqBody).WithContext(ctx)
	rec := httptest.NewRecorder()
	ConnectTunnel(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if snap := m.Status(); !snap.Connected {
		t.Errorf("snapshot = %+v, want connected despite cancelled request context", snap)
	}
}

func TestConnectTunnel_InvalidEnvironment(t *testing.T) {
	setupManager(t)

	reqBody := bytes.NewBufferString(`{"environment":"bogus"}`)
	rec := httptest.NewRecorder()
	ConnectTunnel(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tunnel/connect", reqBody))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "InvalidEnvironment" {
		t.Errorf("error = %v, want InvalidEnvironment", got)
	}
}

func TestConnectTunnel_BadBody(t *testing.T) {
	setupManager(t)

	rec := httptest.NewRecorder()
	ConnectTunnel(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tunnel/connect", strings.NewReader("{")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDisconnectTunnel_AlwaysSucceeds(t *testing.T) {
	setupManager(t)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		DisconnectTunnel(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tunnel/disconnect", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("disconnect #%d status = %d, want 200", i+1, rec.Code)
		}
	}
}

func TestExecuteQuery_Rejected(t *testing.T) {
	setupManager(t)

	reqBody := bytes.NewBufferString(`{"query":"DROP TABLE t","dbConfig":{"host":"localhost","port":3306,"user":"ro"}}`)
	rec := httptest.NewRecorder()
	ExecuteQuery(rec, httptest.NewRequest(http.MethodPost, "/api/v1/query", reqBody))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "QueryRejected" {
		t.Errorf("error = %v, want QueryRejected", got)
	}
}

func TestExecuteQuery_TunnelUnreachable(t *testing.T) {
	setupManager(t)
	port := freePort(t) // nothing listening

	reqBody := bytes.NewBufferString(fmt.Sprintf(
		`{"query":"SELECT * FROM t","dbConfig":{"host":"127.0.0.1","port":%d,"user":"ro"}}`, port))
	rec := httptest.NewRecorder()
	ExecuteQuery(rec, httptest.NewRequest(http.MethodPost, "/api/v1/query", reqBody))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "TunnelUnreachable" {
		t.Errorf("error = %v, want TunnelUnreachable", got)
	}
}

func TestListEnvironments_Sorted(t *testing.T) {
	setupManager(t)
	config.Environments = map[string]config.Profile{
		"uat": {PreferredPort: 4086, RemoteHost: "uat-db.internal"},
		"sit": {PreferredPort: 4085, RemoteHost: "sit-db.internal"},
	}

	rec := httptest.NewRecorder()
	ListEnvironments(rec, httptest.NewRequest(http.MethodGet, "/api/v1/environments", nil))

	body := decodeBody(t, rec)
	envs := body["environments"].([]any)
	if len(envs) != 2 {
		t.Fatalf("environments count = %d, want 2", len(envs))
	}
	if first := envs[0].(map[string]any)["id"]; first != "sit" {
		t.Errorf("first environment = %v, want sit", first)
	}
}

func TestStreamStatus_SSE(t *testing.T) {
	setupManager(t)

	ts := httptest.NewServer(http.HandlerFunc(StreamStatus))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() tunnel.Snapshot {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "data: ") {
				var snap tunnel.Snapshot
				if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &snap); err != nil {
					t.Fatalf("decode event %q: %v", line, err)
				}
				return snap
			}
		}
	}

	// Immediate snapshot on subscribe.
	if snap := readEvent(); snap.Connected {
		t.Errorf("initial snapshot connected = true, want false")
	}

	// A published transition reaches the stream.
	env, port := "sit", 4085
	Broadcast.Publish(tunnel.Snapshot{Connected: true, State: "connected", Environment: &env, LocalPort: &port})
	snap := readEvent()
	if !snap.Connected || snap.Environment == nil || *snap.Environment != "sit" {
		t.Errorf("streamed snapshot = %+v, want connected to sit", snap)
	}
}

func TestStatusWS(t *testing.T) {
	setupManager(t)

	ts := httptest.NewServer(http.HandlerFunc(StatusWS))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var snap tunnel.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if snap.Connected {
		t.Error("initial websocket snapshot connected = true, want false")
	}
}
