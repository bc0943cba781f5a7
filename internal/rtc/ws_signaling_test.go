package rtc

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWSWriter_ConcurrentWrites(t *testing.T) {
	const writers = 8
	const perWriter = 10

	received := make(chan signalMessage, writers*perWriter)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var m signalMessage
			if conn.ReadJSON(&m) != nil {
				return
			}
			received <- m
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Candidate trickle and the answer write race on the same socket;
	// every message must arrive without a concurrent-write panic.
	wr := &wsWriter{conn: conn}
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if err := wr.write(signalMessage{Type: "candidate", Candidate: "c"}); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	deadline := time.After(2 * time.Second)
	for got := 0; got < writers*perWriter; got++ {
		select {
		case m := <-received:
			if m.Type != "candidate" {
				t.Fatalf("unexpected message type %q", m.Type)
			}
		case <-deadline:
			t.Fatalf("received %d of %d messages", got, writers*perWriter)
		}
	}
}

func TestWSWriter_ErrorMessage(t *testing.T) {
	received := make(chan signalMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		var m signalMessage
		if conn.ReadJSON(&m) == nil {
			received <- m
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	wr := &wsWriter{conn: conn}
	if err := wr.writeError(errors.New("boom")); err != nil {
		t.Fatalf("writeError: %v", err)
	}
	select {
	case m := <-received:
		if m.Type != "error" || m.Error != "boom" {
			t.Fatalf("got %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message received")
	}
}
