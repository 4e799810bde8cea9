package hub

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/event"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Client struct {
	ID      string
	userID  string
	conn    *websocket.Conn
	manager *Hub
	egress  chan event.WsEvent

	// channels this client is subscribed to, for cleanup on disconnect
	channels   map[string]struct{}
	channelsMu sync.RWMutex

	// cancel or stop goroutine
	cancel         context.CancelFunc
	ctx            context.Context
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
	closed         bool         // tracks if client is closed
	closedMu       sync.RWMutex // protects closed flag
}

var (
	// tuning parameters
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	pongWait           = 20 * time.Second       // time allowed to read the next pong message from the peer
	pingInterval       = (pongWait * 9) / 10    // send pings to peer with this period
	maxMessageSize     = 64 * 1024              // max inbound message size (64KB)
	sendBufSize        = 256                    // per-connection outbound buffer size
	workerPoolSize     = 16                     // number of workers to process inbound messages
	sendTimeout        = 2 * time.Second        // timeout for enqueuing outbound messages
	kickOnFull         = true                   // when true, disconnect client when egress is full
	registerTimeout    = 5 * time.Second        // timeout for client registration
	unregisterTimeout  = 5 * time.Second        // timeout for client unregistration
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to inbound channel
)

// RegisterClient creates a new client with a single WebSocket connection
func RegisterClient(userID string, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	clientID := uuid.New().String()

	client := &Client{
		ID:             clientID,
		userID:         userID,
		conn:           conn,
		manager:        h,
		egress:         make(chan event.WsEvent, sendBufSize),
		channels:       make(map[string]struct{}),
		cancel:         cancel,
		ctx:            ctx,
		once:           sync.Once{},
		connClosed:     make(chan struct{}),
		connClosedOnce: sync.Once{},
	}

	select {
	case h.register <- client:
		// registered
		go client.ReadMessages()
		go client.WriteMessage()
		log.Printf("client %s registered for user %s", clientID, userID)
		return client
	case <-time.After(registerTimeout):
		log.Printf("failed to register client %s: timeout", clientID)
		cancel()
		conn.Close()
		return nil
	}
}

func (c *Client) addChannel(channel string) {
	c.channelsMu.Lock()
	defer c.channelsMu.Unlock()
	c.channels[channel] = struct{}{}
}

func (c *Client) removeChannel(channel string) {
	c.channelsMu.Lock()
	defer c.channelsMu.Unlock()
	delete(c.channels, channel)
}

func (c *Client) channelList() []string {
	c.channelsMu.RLock()
	defer c.channelsMu.RUnlock()

	list := make([]string, 0, len(c.channels))
	for channel := range c.channels {
		list = append(list, channel)
	}
	return list
}

func (c *Client) ReadMessages() {
	defer func() {
		select {
		case c.manager.unregister <- c:
			// unregistered successfully
		case <-time.After(unregisterTimeout):
			log.Printf("failed to unregister client %s: timeout", c.ID)
		}
		c.Close()
	}()

	c.conn.SetReadLimit(int64(maxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(c.pongHandler)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			var ev event.WsEvent

			if err := c.conn.ReadJSON(&ev); err != nil {

				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseAbnormalClosure,
				) {
					log.Printf("client disconnected: %v", c.ID)
					return
				}

				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseInternalServerErr,
					websocket.CloseProtocolError,
				) {
					log.Printf("unexpected close for %s: %v", c.ID, err)
				}

				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					log.Printf("client %s timed out - closing connection", c.ID)
					return
				}

				// For other errors, log and exit (cleanup will happen in defer)
				log.Printf("error reading from client %s: %v", c.ID, err)
				return
			}

			// Non-blocking send into inbound processing queue to avoid blocking reader
			select {
			case c.manager.inbound <- inboundMessage{client: c, event: ev}:
				// accepted for processing
			case <-time.After(inboundSendTimeout):
				log.Printf("inbound send timeout: dropping client %s", c.ID)
				c.cancel()
				c.conn.Close()
			case <-c.ctx.Done():
				log.Printf("Closing read message: for client: %s", c.ID)
				return
			}
		}
	}
}

func (c *Client) WriteMessage() {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()

		// Safe close of connClosed channel using sync.Once
		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})

		log.Println("WriteMessage goroutine exiting for client:", c.ID)
	}()

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Closing write message: for client: %s", c.ID)
			return
		case ev, ok := <-c.egress:
			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
					log.Printf("connection closed: %v", err)
				}
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Println("marshal error: ", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Println("write message error: ", err)
				return
			}
		}
	}
}

func (c *Client) pongHandler(pongMsg string) error {
	return c.conn.SetReadDeadline(time.Now().Add(pongWait))
}

func (c *Client) Close() {
	c.once.Do(func() {
		// Mark as closed BEFORE closing the channel
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.cancel()
		close(c.egress)

		// Wait for WriteMessage to close conn, or force close after timeout
		go func() {
			select {
			case <-c.connClosed:
				// WriteMessage closed it properly
			case <-time.After(5 * time.Second):
				_ = c.conn.Close()
				log.Printf("safety timeout: force closed connection for client %s", c.ID)
			}
		}()
	})
}

// IsClosed returns true if the client has been closed
func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}
