package server

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietHub() *Hub {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewHub(log)
}

func TestHub_BroadcastDoesNotWaitForSlowClient(t *testing.T) {
	h := quietHub()
	stalled := &client{send: make(chan Message, sendBuffer)}
	healthy := &client{send: make(chan Message, sendBuffer*4)}
	h.add(stalled)
	h.add(healthy)

	done := make(chan struct{})
	go func() {
		for i := 0; i <= sendBuffer; i++ {
			h.Broadcast(Message{Type: "analysis", Payload: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a client that is not reading")
	}

	if h.Count() != 1 {
		t.Errorf("Count = %d, want the stalled client dropped", h.Count())
	}
	if len(healthy.send) != sendBuffer+1 {
		t.Errorf("healthy client queued %d messages, want %d", len(healthy.send), sendBuffer+1)
	}

	n := 0
	for range stalled.send {
		n++
	}
	if n != sendBuffer {
		t.Errorf("stalled client drained %d messages before close, want %d", n, sendBuffer)
	}
}

func TestHub_RemoveTwice(t *testing.T) {
	h := quietHub()
	cl := &client{send: make(chan Message, 1)}
	h.add(cl)
	h.remove(cl)
	h.remove(cl)
	if h.Count() != 0 {
		t.Errorf("Count = %d, want 0", h.Count())
	}
	if _, ok := <-cl.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestHub_CloseClosesEverySendChannel(t *testing.T) {
	h := quietHub()
	clients := []*client{{send: make(chan Message, 1)}, {send: make(chan Message, 1)}}
	for _, cl := range clients {
		h.add(cl)
	}
	h.Close()
	for i, cl := range clients {
		if _, ok := <-cl.send; ok {
			t.Errorf("client %d send channel still open", i)
		}
	}
	if h.Count() != 0 {
		t.Errorf("Count = %d after Close", h.Count())
	}
}
