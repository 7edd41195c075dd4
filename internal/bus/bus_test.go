package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/listener"
	"github.com/lexiqai/cuecam/internal/protocol"
	"github.com/lexiqai/cuecam/internal/resilience"
)

func startServer(t *testing.T) *EmbeddedServer {
	t.Helper()
	srv, err := StartEmbedded("127.0.0.1", -1, zerolog.Nop())
	if err != nil {
		t.Fatalf("StartEmbedded() failed: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func connect(t *testing.T, url string) *Client {
	t.Helper()
	client, err := Connect(context.Background(), Config{URL: url}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestConnect_Healthy(t *testing.T) {
	srv := startServer(t)
	client := connect(t, srv.ClientURL())

	if ok, err := client.Healthy(context.Background()); !ok || err != nil {
		t.Errorf("Expected healthy client, got %v %v", ok, err)
	}
}

func TestConnect_GivesUp(t *testing.T) {
	cfg := Config{
		URL:            "nats://127.0.0.1:1",
		ConnectTimeout: 100 * time.Millisecond,
		Retry: &resilience.RetryConfig{
			Backoff: resilience.Backoff{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, MaxAttempts: 2},
		},
	}
	if _, err := Connect(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("Expected connect to an unused port to fail")
	}
	if _, err := Connect(context.Background(), Config{}, zerolog.Nop()); err == nil {
		t.Error("Expected error without a url")
	}
}

func TestPublisher(t *testing.T) {
	srv := startServer(t)
	client := connect(t, srv.ClientURL())
	watcher := connect(t, srv.ClientURL())

	statusSub, err := watcher.Conn().SubscribeSync("cuecam.status")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	commandSub, err := watcher.Conn().SubscribeSync("cuecam.command")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := watcher.Conn().Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	pub := NewPublisher(client, "cuecam")
	pub.StatusChanged(listener.Status{State: listener.Listening, IsListening: true, Generation: 2})
	pub.Command(command.Event{Token: command.Stop, Context: command.Camera, Generation: 2})

	msg, err := statusSub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("Expected status message: %v", err)
	}
	var status protocol.Status
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if status.State != "listening" || !status.IsListening || status.Generation != 2 {
		t.Errorf("Unexpected status: %+v", status)
	}

	msg, err = commandSub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("Expected command message: %v", err)
	}
	var cmd protocol.Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cmd.Token != "stop" || cmd.Context != "camera" {
		t.Errorf("Unexpected command: %+v", cmd)
	}
}

type fakeListening struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeListening) add(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeListening) StartListening(ctx command.Context) { f.add("start:" + ctx.String()) }
func (f *fakeListening) StopListening()                     { f.add("stop") }
func (f *fakeListening) HandleBackground(bg bool)           { f.add("background") }

func (f *fakeListening) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestServeControl(t *testing.T) {
	srv := startServer(t)
	client := connect(t, srv.ClientURL())
	caller := connect(t, srv.ClientURL())

	ctrl := &fakeListening{}
	sub, err := ServeControl(client, "cuecam", ctrl, nil)
	if err != nil {
		t.Fatalf("ServeControl() failed: %v", err)
	}
	defer sub.Unsubscribe()
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	request := func(body string) protocol.Reply {
		t.Helper()
		msg, err := caller.Conn().Request("cuecam.control", []byte(body), 2*time.Second)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		var reply protocol.Reply
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		return reply
	}

	if reply := request(`{"id":"a","action":"start","context":"save_dialog"}`); !reply.OK || reply.ID != "a" {
		t.Errorf("Unexpected reply: %+v", reply)
	}
	if reply := request(`{"action":"zoom"}`); reply.OK {
		t.Errorf("Expected failure for unknown action, got %+v", reply)
	}

	if calls := ctrl.snapshot(); len(calls) != 1 || calls[0] != "start:save_dialog" {
		t.Errorf("Unexpected listener calls: %v", calls)
	}
}
