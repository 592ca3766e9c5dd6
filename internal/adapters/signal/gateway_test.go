package signal

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sprintdeck/pokerd/internal/app"
	"github.com/sprintdeck/pokerd/internal/config"
)

const testGrace = 30 * time.Second

func newTestGateway() (*Controller, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	cfg := &config.Config{
		SendBuffer:   32,
		RateLimit:    1000,
		RateInterval: time.Second,
		GracePeriod:  testGrace,
	}
	dir := app.NewSessionDirectory(clock, testGrace)
	registry := app.NewRegistry(dir, clock, testGrace, 15*time.Second, 6)
	ctl := NewController(cfg, clock, registry, dir)
	registry.SetSink(ctl)
	return ctl, clock
}

// newTestConn registers a transport-less connection; handlers only ever
// touch the id and the send queue.
func newTestConn(ctl *Controller, id string) *WsConn {
	c := &WsConn{id: id, send: make(chan []byte, 32)}
	ctl.mu.Lock()
	ctl.conns[id] = c
	ctl.mu.Unlock()
	return c
}

// nextAck drains broadcast frames until the next ack arrives.
func nextAck(t *testing.T, c *WsConn) map[string]any {
	t.Helper()
	for i := 0; i < 32; i++ {
		select {
		case b := <-c.send:
			var msg map[string]any
			if err := json.Unmarshal(b, &msg); err != nil {
				t.Fatalf("bad frame %s: %v", b, err)
			}
			if msg["type"] == "ack" {
				return msg
			}
		default:
			t.Fatal("no ack frame queued")
		}
	}
	t.Fatal("no ack among queued frames")
	return nil
}

func TestKickedIdentityCannotRejoinUntilBanLapses(t *testing.T) {
	ctl, clock := newTestGateway()

	host := newTestConn(ctl, "conn-host")
	ctl.dispatch(host, []byte(`{"type":"create-room","seq":1,"hostName":"hattie","deckType":"fibonacci"}`))
	created := nextAck(t, host)
	if created["success"] != true {
		t.Fatalf("create-room failed: %v", created)
	}
	code, _ := created["roomCode"].(string)
	if code == "" {
		t.Fatal("create-room ack carried no roomCode")
	}

	joinFrame := func(seq int) []byte {
		return []byte(fmt.Sprintf(`{"type":"join-room","seq":%d,"roomCode":%q,"userName":"mallory"}`, seq, code))
	}

	victim := newTestConn(ctl, "conn-victim")
	ctl.dispatch(victim, joinFrame(2))
	if ack := nextAck(t, victim); ack["success"] != true {
		t.Fatalf("join-room failed: %v", ack)
	}

	ctl.dispatch(host, []byte(`{"type":"remove-user","seq":3,"targetConnectionId":"conn-victim"}`))
	if ack := nextAck(t, host); ack["success"] != true {
		t.Fatalf("remove-user failed: %v", ack)
	}

	// The kicked name must be refused while the ban holds, even from a
	// brand new connection.
	retry := newTestConn(ctl, "conn-retry")
	ctl.dispatch(retry, joinFrame(4))
	refused := nextAck(t, retry)
	if refused["success"] != false {
		t.Fatalf("kicked identity rejoined: %v", refused)
	}
	if refused["error"] != "forbidden" {
		t.Errorf("refusal error = %v, want forbidden", refused["error"])
	}

	// Once the ban lapses the name is free again and joins as a fresh
	// user, not a resumed one.
	clock.Advance(testGrace + time.Millisecond)
	retry2 := newTestConn(ctl, "conn-retry2")
	ctl.dispatch(retry2, joinFrame(5))
	admitted := nextAck(t, retry2)
	if admitted["success"] != true {
		t.Fatalf("join after ban lapse failed: %v", admitted)
	}
	if admitted["isReconnection"] != false {
		t.Error("post-ban join reported as reconnection")
	}
}
