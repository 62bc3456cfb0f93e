// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transport implements the two WebSocket endpoints of the
// bridge: the upstream callback the assistant process connects to, and
// the subscriber endpoint remote clients connect to. Each endpoint pairs
// a reader goroutine and a writer goroutine around a bounded sink
// installed in the session registry.
package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingedpig/claude-bridge/internal/bridge"
	"github.com/wingedpig/claude-bridge/internal/frame"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must be shorter than pongWait so a ping always has time
	// to provoke a pong before the read deadline expires, matching the
	// teacher's 54s-ticker/60s-pong ratio in handlers/claude.go.
	pingPeriod       = (pongWait * 9) / 10
	defaultKeepalive = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Endpoints wires both transport endpoints to a shared registry.
type Endpoints struct {
	registry          *bridge.Registry
	keepaliveInterval time.Duration
}

// New returns Endpoints bound to registry. A zero keepaliveInterval
// selects spec.md §4.4's suggested ~10s default.
func New(registry *bridge.Registry, keepaliveInterval time.Duration) *Endpoints {
	if keepaliveInterval <= 0 {
		keepaliveInterval = defaultKeepalive
	}
	return &Endpoints{registry: registry, keepaliveInterval: keepaliveInterval}
}

// conn wraps a websocket connection with a write mutex, matching the
// teacher's serveSession pattern: gorilla's Conn permits only one
// concurrent writer, so every goroutine that may write serializes
// through writeMu.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) writeRaw(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *conn) writePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// runPinger sends a WebSocket ping every pingPeriod until stop is closed
// or a write fails. Without this, a peer that only reads (or idles
// without sending its own frames) never has a reason to reply with a
// pong, so SetPongHandler's ReadDeadline refresh would never fire and
// the read loop would time out on a perfectly healthy connection.
func runPinger(c *conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// ServeUpstream handles the assistant process's callback connection for
// sessionID: attach, read-route-loop, detach on any terminal condition.
// See spec.md §4.4 "Upstream endpoint lifecycle".
func (e *Endpoints) ServeUpstream(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := e.registry.Get(sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	c := &conn{ws: ws}
	sink := e.registry.NewUpstreamSink()

	if err := e.registry.AttachUpstream(sessionID, sink); err != nil {
		log.Printf("transport: upstream attach failed for session %s: %v", sessionID, err)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for raw := range sink {
			b, err := frame.Encode(json.RawMessage(raw))
			if err != nil {
				continue
			}
			if err := c.writeRaw(b); err != nil {
				return
			}
		}
	}()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingStop := make(chan struct{})
	go runPinger(c, pingStop)

	dec := frame.NewDecoder()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		for _, line := range dec.Feed(append(data, '\n')) {
			if routeErr := e.registry.RouteUpstream(sessionID, line); routeErr != nil {
				log.Printf("transport: route upstream error for session %s: %v", sessionID, routeErr)
			}
		}
	}
	close(pingStop)

	// DetachUpstream clears the registry's reference to sink under its
	// lock before we close it, so no in-flight RouteUpstream call can
	// attempt a send on a closed channel.
	e.registry.DetachUpstream(sessionID)
	close(sink)
	<-writerDone
}

// ServeSubscriber handles one remote client's attach to sessionID: reply
// with an error frame and close if unknown, otherwise replay then
// stream. See spec.md §4.4 "Subscriber endpoint lifecycle".
func (e *Endpoints) ServeSubscriber(w http.ResponseWriter, r *http.Request, sessionID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	c := &conn{ws: ws}

	sink := e.registry.NewSubscriberSink()
	replay, err := e.registry.AttachSubscriberFrames(sessionID, sink)
	if err != nil {
		b, _ := frame.Encode(map[string]string{"type": "error", "message": "session not found"})
		c.writeRaw(b)
		return
	}

	for _, f := range replay {
		b, encErr := frame.Encode(json.RawMessage(f))
		if encErr != nil {
			continue
		}
		if writeErr := c.writeRaw(b); writeErr != nil {
			return
		}
	}

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for raw := range sink {
			b, err := frame.Encode(json.RawMessage(raw))
			if err != nil {
				continue
			}
			if err := c.writeRaw(b); err != nil {
				return
			}
		}
	}()

	keepalive := time.NewTicker(e.keepaliveInterval)
	defer keepalive.Stop()
	keepaliveStop := make(chan struct{})
	defer close(keepaliveStop)
	go func() {
		for {
			select {
			case <-keepalive.C:
				b, _ := frame.Encode(map[string]string{"type": "keep_alive"})
				if err := c.writeRaw(b); err != nil {
					return
				}
			case <-keepaliveStop:
				return
			}
		}
	}()

	pingStop := make(chan struct{})
	go runPinger(c, pingStop)

	dec := frame.NewDecoder()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		for _, line := range dec.Feed(append(data, '\n')) {
			if routeErr := e.registry.RouteDownstream(sessionID, line); routeErr != nil {
				log.Printf("transport: route downstream error for session %s: %v", sessionID, routeErr)
			}
		}
	}
	close(pingStop)

	// DetachSubscriber clears the registry's reference to sink under its
	// lock before we close it, so no in-flight broadcast can attempt a
	// send on a closed channel.
	e.registry.DetachSubscriber(sessionID, sink)
	close(sink)
	<-writerDone
}
