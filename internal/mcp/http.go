package mcp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"

	"productboard-mcp/internal/session"
)

// SessionHeader carries the session across MCP-over-HTTP requests
const SessionHeader = "Mcp-Session-Id"

// ServeHTTP serves MCP over HTTP. POST carries one JSON-RPC message; an
// initialize without a session header starts a new session whose ID is
// returned in the header. DELETE ends the session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SessionHeader)
	w.Header().Set("Access-Control-Expose-Headers", SessionHeader)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if id := r.Header.Get(SessionHeader); id != "" {
			s.sessions.RemoveSession(id)
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		s.servePost(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) servePost(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req protocol.JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		s.writeJSON(w, &protocol.JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   protocol.NewJSONRPCError(protocol.ParseError, "Parse error", nil),
		})
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" && req.Method == "initialize" {
		sessionID = s.sessions.CreateSession(session.GenerateID(time.Now())).ID
	}
	if sessionID != "" {
		w.Header().Set(SessionHeader, sessionID)
	}

	ctx := r.Context()
	if sessionID != "" {
		ctx = WithSessionID(ctx, sessionID)
	}

	resp := s.HandleRequest(ctx, &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeJSON(w, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
