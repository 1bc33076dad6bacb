package camera

import (
	"bytes"
	"image/png"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.jpl.nasa.gov/bdube/ccdpreview/spectral"
	"golang.org/x/time/rate"
)

// writeWait bounds each websocket write so a stalled client is dropped
const writeWait = time.Second

// Stream pushes spectra to websocket clients as PNG binary messages.  Images
// arriving faster than the rate limit, or while the previous one is still
// being sent, are dropped.
type Stream struct {
	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	notify chan spectral.Image
	done   chan struct{}
	once   sync.Once
}

// NewStream starts a stream that sends at most hz images per second.  Call
// Close to stop it.
func NewStream(hz float64) *Stream {
	s := &Stream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		limiter: rate.NewLimiter(rate.Limit(hz), 1),
		clients: make(map[*websocket.Conn]bool),
		notify:  make(chan spectral.Image, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Publish offers im to the stream without blocking.  im must not be modified
// afterwards.
func (s *Stream) Publish(im spectral.Image) {
	if !s.limiter.Allow() {
		return
	}
	select {
	case s.notify <- im:
	default:
	}
}

// Clients is the number of connected clients
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ServeHTTP upgrades the connection and registers the client
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	// clients only ever close; reading is how the close is noticed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(conn)
				return
			}
		}
	}()
}

// Close disconnects every client and stops the sender
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.done) })
	s.mu.Lock()
	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
	s.mu.Unlock()
	return nil
}

func (s *Stream) drop(c *websocket.Conn) {
	s.mu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		c.Close()
	}
	s.mu.Unlock()
}

func (s *Stream) run() {
	var buf bytes.Buffer
	for {
		select {
		case <-s.done:
			return
		case im := <-s.notify:
			if im.Empty() {
				continue
			}
			buf.Reset()
			if err := png.Encode(&buf, im.Gray()); err != nil {
				log.Printf("error encoding spectrum for stream %v", err)
				continue
			}
			s.broadcast(buf.Bytes())
		}
	}
}

func (s *Stream) broadcast(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.BinaryMessage, b); err != nil {
			c.Close()
			delete(s.clients, c)
		}
	}
}
