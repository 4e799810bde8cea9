package hub

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/event"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/relay"
	"github.com/gorilla/websocket"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

type channelBucket struct {
	sync.RWMutex
	channels map[string]map[string]*Client
}

// Authorizer gates channel subscriptions. A user may always hold their own
// user channel; conversation channels require participation, which the
// service layer checks against the store.
type Authorizer interface {
	CanSubscribe(ctx context.Context, userID, channel string) bool
}

// Hub tracks connected clients and the named channels they subscribe to,
// and fans relay events out to them. It is the in-process implementation of
// the relay.Publisher boundary.
type Hub struct {
	shards     [shardCount]*channelBucket
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	authorizer Authorizer
	origins    []string
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewHub(authorizer Authorizer, allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundMessage, 4096), // buffer for burst handling
		authorizer: authorizer,
		origins:    allowedOrigins,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &channelBucket{
			channels: make(map[string]map[string]*Client),
		}
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}

					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

// SetAuthorizer installs the subscription gate. Must be called before the
// hub starts serving connections; the service layer is constructed after
// the hub because it publishes through it.
func (h *Hub) SetAuthorizer(a Authorizer) {
	h.authorizer = a
}

// Forward delivers an event received from another node (via the redis
// bridge) to locally connected subscribers.
func (h *Hub) Forward(channel, eventName string, payload json.RawMessage) {
	h.publishToChannel(event.WsEvent{
		Event:   eventName,
		Channel: channel,
		Payload: payload,
	})
}

// Trigger implements relay.Publisher: publish to every client currently
// subscribed to the channel. A channel with no subscribers is not an error;
// disconnected clients reconcile by refetching on reconnect.
func (h *Hub) Trigger(ctx context.Context, channel, eventName string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.publishToChannel(event.WsEvent{
		Event:   eventName,
		Channel: channel,
		Payload: body,
	})
	return nil
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	switch ev.Event {
	case event.EventSubscribe:
		if ev.Channel == "" {
			return
		}
		if h.authorizer == nil || !h.authorizer.CanSubscribe(h.ctx, c.userID, ev.Channel) {
			log.Printf("client %s denied subscription to %s", c.ID, ev.Channel)
			return
		}
		h.subscribe(c, ev.Channel)
	case event.EventUnsubscribe:
		if ev.Channel == "" {
			return
		}
		h.unsubscribe(c, ev.Channel)
	default:
		log.Printf("unknown event type: %s", ev.Event)
	}
}

func (h *Hub) publishToChannel(ev event.WsEvent) {
	sh := getShard(ev.Channel)
	b := h.shards[sh]

	// collect clients while holding RLock
	b.RLock()
	subscribers, ok := b.channels[ev.Channel]
	if !ok || len(subscribers) == 0 {
		b.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(subscribers))
	for _, c := range subscribers {
		clients = append(clients, c)
	}
	b.RUnlock()

	// deliver to clients without holding lock
	for _, c := range clients {
		// try enqueue with timeout
		select {
		case c.egress <- ev:
			// enqueued
		case <-time.After(sendTimeout):
			// egress full -> apply policy
			log.Printf("egress full for client %s on channel %s", c.ID, ev.Channel)
			if kickOnFull {
				// Unregister (safe async)
				h.unregister <- c
			} else {
				// drop message (do nothing)
			}
		}
	}
}

func getShard(channel string) uint32 {
	if channel == "" {
		return 0
	}

	h := sha1.Sum([]byte(channel))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

func (h *Hub) subscribe(c *Client, channel string) {
	sh := getShard(channel)
	b := h.shards[sh]
	b.Lock()
	subscribers, ok := b.channels[channel]
	if !ok {
		subscribers = make(map[string]*Client)
		b.channels[channel] = subscribers
	}
	subscribers[c.ID] = c
	b.Unlock()

	c.addChannel(channel)
	log.Printf("client %s subscribed to %s (shard %d)", c.ID, channel, sh)
}

func (h *Hub) unsubscribe(c *Client, channel string) {
	sh := getShard(channel)
	b := h.shards[sh]
	b.Lock()
	if subscribers, ok := b.channels[channel]; ok {
		delete(subscribers, c.ID)
		if len(subscribers) == 0 {
			delete(b.channels, channel)
		}
	}
	b.Unlock()

	c.removeChannel(channel)
}

func (h *Hub) addClient(c *Client) {
	// every connection holds its own user channel
	h.subscribe(c, relay.UserChannel(c.userID))
}

func (h *Hub) removeClient(c *Client) {
	for _, channel := range c.channelList() {
		sh := getShard(channel)
		b := h.shards[sh]
		b.Lock()
		if subscribers, ok := b.channels[channel]; ok {
			delete(subscribers, c.ID)
			if len(subscribers) == 0 {
				delete(b.channels, channel)
			}
		}
		b.Unlock()
	}

	c.Close()
	log.Printf("client %s removed", c.ID)
}

func (h *Hub) Stop() {
	h.cancel()

	// Close all client connections
	for _, shard := range h.shards {
		shard.RLock()
		for _, subscribers := range shard.channels {
			for _, client := range subscribers {
				client.Close()
			}
		}
		shard.RUnlock()
	}

	close(h.inbound)
	h.wg.Wait()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	for _, allowed := range h.origins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	RegisterClient(userID, conn, h)
}
