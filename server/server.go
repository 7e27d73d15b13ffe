// Package server provides HTTP and WebSocket server infrastructure for the
// SMBus agent.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/voltbench/smbus-agent/buildinfo"
	"github.com/voltbench/smbus-agent/protocol"
)

// Config holds the server configuration
type Config struct {
	Handler   *DeviceHandler
	Port      int
	APISecret string // Optional API secret for WebSocket connection
	NoMDNS    bool   // Disable mDNS advertisement
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc

	// Client WebSocket management; the value is the per-connection client id.
	clients    map[*websocket.Conn]string
	clientsMux sync.RWMutex
	upgrader   websocket.Upgrader

	// Handler registry for incoming WebSocket requests
	handlerRegistry *HandlerRegistry

	// mDNS service for auto-discovery
	mdnsServer *zeroconf.Server

	lastReading   *protocol.ReadingPayload
	lastReadingMu sync.RWMutex
}

// New creates a new server instance
func New(config Config) *Server {
	s := &Server{
		config:  config,
		clients: make(map[*websocket.Conn]string),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		handlerRegistry: NewHandlerRegistry(),
	}

	if config.Handler != nil {
		config.Handler.Register(s)
	}

	return s
}

// Handle implements HandlerServer interface.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// StartLifecycle implements HandlerServer interface.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.handlerRegistry.RegisterLifecycle(start)
}

// LastReading returns the most recently broadcast reading, or nil if none yet.
func (s *Server) LastReading() *protocol.ReadingPayload {
	s.lastReadingMu.RLock()
	defer s.lastReadingMu.RUnlock()
	return s.lastReading
}

func (s *Server) setLastReading(r protocol.ReadingPayload) {
	s.lastReadingMu.Lock()
	defer s.lastReadingMu.Unlock()
	s.lastReading = &r
}

// broadcast sends a message to all connected clients
func (s *Server) broadcast(message *protocol.WebSocketMessage) {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	for client, id := range s.clients {
		err := client.WriteJSON(message)
		if err != nil {
			log.Printf("WebSocket write error for client %s: %v", id, err)
			client.Close()
			delete(s.clients, client)
		}
	}
}

// BroadcastReading sends a telemetry reading to all connected WebSocket clients
func (s *Server) BroadcastReading(reading protocol.ReadingPayload) {
	s.setLastReading(reading)
	s.broadcast(&protocol.WebSocketMessage{
		Type:    WSMessageTypeReading,
		Payload: reading,
	})
}

// BroadcastDeviceStatus sends the device status to all connected WebSocket clients
func (s *Server) BroadcastDeviceStatus(status protocol.DeviceStatusPayload) {
	s.broadcast(&protocol.WebSocketMessage{
		Type:    WSMessageTypeDeviceStatus,
		Payload: status,
	})
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	return len(s.clients)
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Start starts the HTTP server and begins handling requests. It blocks until
// Stop is called.
func (s *Server) Start() error {
	log.Printf("Starting %s %s...", buildinfo.DisplayName, buildinfo.FullVersion())

	mux := http.NewServeMux()

	// API v1 routes
	apiV1 := "/api/v1"

	mux.HandleFunc(apiV1+"/health", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleHealthCheck(w, r)
	}))

	mux.HandleFunc(apiV1+"/reading", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleLastReading(w, r)
	}))

	// Configure WebSocket endpoint
	mux.HandleFunc("/ws", enableCORS(s.handleWebSocket))

	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildinfo.DisplayName + " Running"))
	}))

	// Start the HTTP server in a goroutine
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: mux,
	}

	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Register mDNS service for auto-discovery
	if !s.config.NoMDNS {
		if err := s.startMDNS(); err != nil {
			log.Printf("Warning: Failed to start mDNS service: %v", err)
			log.Printf("Auto-discovery will not be available, but server will continue normally")
		}
	}

	// Start lifecycle handlers (DeviceHandler will start its broadcast loop)
	s.handlerRegistry.StartLifecycleHandlers(s.ctx)

	// Block until shutdown is requested
	<-s.ctx.Done()
	log.Println("Server context cancelled, initiating shutdown...")

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() {
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		log.Printf("mDNS service stopped")
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		s.httpServer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// startMDNS registers the agent as an mDNS service so dashboards can discover
// it on the local network.
func (s *Server) startMDNS() error {
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=/ws",
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	log.Printf("mDNS service registered: %s on port %d", MDNSServiceName, s.config.Port)

	return nil
}

// handleWebSocket upgrades HTTP connections to WebSocket connections and
// manages the client connection lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
	w.Header().Set("Access-Control-Allow-Credentials", "true")

	// Validate optional API secret if configured
	if s.config.APISecret != "" {
		secret := r.URL.Query().Get("secret")
		if secret != s.config.APISecret {
			log.Printf("WebSocket connection rejected: invalid API secret")
			http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	clientID := uuid.NewString()
	log.Printf("WebSocket client %s connected from %s", clientID, r.RemoteAddr)

	defer func() {
		conn.Close()
		s.clientsMux.Lock()
		delete(s.clients, conn)
		s.clientsMux.Unlock()
		log.Printf("WebSocket client %s disconnected", clientID)
	}()

	s.clientsMux.Lock()
	s.clients[conn] = clientID
	s.clientsMux.Unlock()

	// Send initial device status
	if s.config.Handler != nil {
		conn.WriteJSON(protocol.WebSocketMessage{
			Type:    WSMessageTypeDeviceStatus,
			Payload: s.config.Handler.CurrentDeviceStatus(),
		})
	}

	// Send the last reading so new clients don't wait a full poll cycle
	if last := s.LastReading(); last != nil {
		conn.WriteJSON(protocol.WebSocketMessage{
			Type:    WSMessageTypeReading,
			Payload: *last,
		})
	}

	// Keep connection alive and handle incoming messages
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var wsRequest protocol.WebSocketRequest
		if err := json.Unmarshal(message, &wsRequest); err != nil {
			log.Printf("Failed to parse WebSocket message from %s: %v", clientID, err)
			s.sendErrorResponse(conn, "", protocol.ErrCodeParseError, "Invalid message format")
			continue
		}

		handler, ok := s.handlerRegistry.Get(wsRequest.Type)
		if !ok {
			log.Printf("Unknown message type from %s: %s", clientID, wsRequest.Type)
			s.sendErrorResponse(conn, wsRequest.ID, protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", wsRequest.Type))
			continue
		}

		if err := handler(r.Context(), conn, wsRequest); err != nil {
			log.Printf("Handler error for message type '%s': %v", wsRequest.Type, err)
			// Error already sent by handler, just log it
		}
	}
}

// sendErrorResponse sends a structured error response to a WebSocket client
func (s *Server) sendErrorResponse(conn *websocket.Conn, requestID string, errorCode string, message string) {
	response := protocol.WebSocketResponse{
		ID:      requestID,
		Type:    WSMessageTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{
			"code": errorCode,
		},
	}

	if err := conn.WriteJSON(response); err != nil {
		log.Printf("Failed to send error response: %v", err)
	}
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"version":   buildinfo.FullVersion(),
		"timestamp": time.Now().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// handleLastReading serves the most recent reading (GET /api/v1/reading)
func (s *Server) handleLastReading(w http.ResponseWriter, r *http.Request) {
	last := s.LastReading()
	if last == nil {
		http.Error(w, "No reading available yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(last)
}
