// Package mcp is the protocol boundary: it serves initialize, tools/list and
// tools/call over gomcp-sdk JSON-RPC and binds every tool call to a session,
// a trace ID and a resolved Productboard instance.
package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"
	"github.com/fredcamaral/gomcp-sdk/server"
	"github.com/fredcamaral/gomcp-sdk/transport"
	"github.com/google/uuid"

	"productboard-mcp/internal/config"
	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/logging"
	"productboard-mcp/internal/metrics"
	"productboard-mcp/internal/productboard"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/session"
)

const (
	ServerName = "productboard-mcp"

	// ArgSessionID selects a session from the tool arguments
	ArgSessionID = "session_id"
)

// Options wires the server's collaborators
type Options struct {
	Config   *config.Config
	Registry *registry.Registry
	Sessions *session.Manager
	Pool     *productboard.Pool
	Metrics  *metrics.Metrics
	Logger   logging.Logger
	Version  string
}

// Server implements transport.RequestHandler on top of the tool registry
type Server struct {
	cfg       *config.Config
	registry  *registry.Registry
	sessions  *session.Manager
	pool      *productboard.Pool
	metrics   *metrics.Metrics
	logger    logging.Logger
	mcpServer *server.Server

	// fallbackSession serves calls that arrive without any session binding
	fallbackSession string
}

// NewServer creates the protocol server
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		cfg:             opts.Config,
		registry:        opts.Registry,
		sessions:        opts.Sessions,
		pool:            opts.Pool,
		metrics:         opts.Metrics,
		logger:          logger.WithComponent("mcp"),
		mcpServer:       mcp.NewServer(ServerName, version),
		fallbackSession: session.GenerateID(time.Now()),
	}
}

type sessionKey struct{}

// WithSessionID binds the calls handled under ctx to a session
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func sessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// HandleRequest dispatches one JSON-RPC message. Notifications get no
// response.
func (s *Server) HandleRequest(ctx context.Context, req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	if req.ID == nil && strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}

	switch req.Method {
	case "tools/list":
		return &protocol.JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{"tools": s.registry.ToolDefinitions()},
		}
	case "tools/call":
		var call protocol.ToolCallRequest
		if err := decodeParams(req.Params, &call); err != nil || call.Name == "" {
			return &protocol.JSONRPCResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   protocol.NewJSONRPCError(protocol.InvalidParams, "Invalid parameters", "tools/call requires a tool name"),
			}
		}
		return &protocol.JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  s.CallTool(ctx, call.Name, call.Arguments),
		}
	default:
		return s.mcpServer.HandleRequest(ctx, req)
	}
}

func decodeParams(params interface{}, target interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// CallTool executes a tool and renders the outcome as a tool result. Every
// failure becomes an isError result carrying a sanitized error.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]interface{}) *protocol.ToolCallResult {
	traceID := logging.GetTraceID(ctx)
	if traceID == "" {
		traceID = logging.GenerateTraceID()
		ctx = logging.WithTraceID(ctx, traceID)
	}
	logger := s.logger.WithTraceID(traceID)

	sess := s.sessions.GetOrCreate(s.sessionFor(ctx, args))
	requestID := uuid.New().String()
	sess.BeginRequest(requestID)
	defer sess.EndRequest(requestID)

	ctx = productboard.WithResolver(ctx, func() (*productboard.Client, error) {
		return s.clientFor(sess, args)
	})

	start := time.Now()
	var result interface{}
	err := s.metrics.TrackToolExecution(name, func() (string, error) {
		var execErr error
		result, execErr = s.registry.ExecuteTool(ctx, name, args)
		if execErr != nil {
			return string(mcperrors.Sanitize(execErr).ErrorInfo.Code), execErr
		}
		return "", nil
	})

	if err != nil {
		logger.WarnContext(ctx, "tool call failed",
			"tool", name, "session_id", sess.ID, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return toolError(err, traceID)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode tool result", "tool", name, "error", err)
		return toolError(mcperrors.NewInternalError("Failed to encode tool result"), traceID)
	}

	logger.DebugContext(ctx, "tool call completed",
		"tool", name, "session_id", sess.ID, "duration_ms", time.Since(start).Milliseconds())
	return protocol.NewToolCallResult(protocol.NewContent(string(payload)))
}

// toolError copies the sanitized error so shared error values are never
// stamped with this call's trace ID.
func toolError(err error, traceID string) *protocol.ToolCallResult {
	out := *mcperrors.Sanitize(err)
	return out.WithTraceID(traceID).ToToolResult()
}

// sessionFor picks the session: explicit argument, then the connection,
// then the process-wide fallback.
func (s *Server) sessionFor(ctx context.Context, args map[string]interface{}) string {
	if id, ok := args[ArgSessionID].(string); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	if id := sessionIDFrom(ctx); id != "" {
		return id
	}
	return s.fallbackSession
}

// clientFor resolves the instance named by the call's arguments and caches
// the client on the session.
func (s *Server) clientFor(sess *session.Session, args map[string]interface{}) (*productboard.Client, error) {
	instance, _ := args[registry.ArgInstance].(string)
	workspaceID, _ := args[registry.ArgWorkspaceID].(string)

	inst, err := s.cfg.ResolveInstance(strings.TrimSpace(instance), strings.TrimSpace(workspaceID))
	if err != nil {
		return nil, err
	}

	key := inst.CacheKey()
	if cached, ok := sess.CachedConfig(key); ok {
		if c, ok := cached.(*productboard.Client); ok {
			return c, nil
		}
	}

	c, err := s.pool.Client(inst)
	if err != nil {
		return nil, err
	}
	sess.SetCachedConfig(key, c)
	return c, nil
}

// ServeStdio serves one stdio connection as a single session. The session is
// removed when the connection ends.
func (s *Server) ServeStdio(ctx context.Context, t transport.Transport) error {
	sess := s.sessions.CreateSession("")
	defer s.sessions.RemoveSession(sess.ID)

	s.logger.Info("serving stdio connection", "session_id", sess.ID)
	return t.Start(ctx, &connection{server: s, sessionID: sess.ID})
}

// connection binds every request on a transport to one session
type connection struct {
	server    *Server
	sessionID string
}

func (c *connection) HandleRequest(ctx context.Context, req *protocol.JSONRPCRequest) *protocol.JSONRPCResponse {
	return c.server.HandleRequest(WithSessionID(ctx, c.sessionID), req)
}
