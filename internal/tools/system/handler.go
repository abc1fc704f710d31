// Package system provides the server_status tool: process health, sessions,
// loaded tool modules and the resilience state of each Productboard instance.
package system

import (
	"context"
	"runtime"
	"time"

	mcp "github.com/fredcamaral/gomcp-sdk"

	"productboard-mcp/internal/circuitbreaker"
	"productboard-mcp/internal/productboard"
	"productboard-mcp/internal/ratelimit"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/session"
)

// Category groups the system tools for enablement
const Category = "system"

// ToolServerStatus is the status tool name
const ToolServerStatus = "server_status"

// Handler implements the system tools
type Handler struct {
	sessions  *session.Manager
	registry  *registry.Registry
	pool      *productboard.Pool
	limiter   *ratelimit.SlidingWindow
	version   string
	startTime time.Time
}

// NewHandler creates a new system handler. limiter may be nil.
func NewHandler(sessions *session.Manager, reg *registry.Registry, pool *productboard.Pool, limiter *ratelimit.SlidingWindow, version string) *Handler {
	return &Handler{
		sessions:  sessions,
		registry:  reg,
		pool:      pool,
		limiter:   limiter,
		version:   version,
		startTime: time.Now(),
	}
}

// Register adds the system tools to the registry
func (h *Handler) Register() {
	props := map[string]interface{}{
		"detailed": mcp.BooleanParam("Include Go runtime metrics", false),
	}
	const desc = "Report server health, sessions, loaded tool modules and Productboard instance state"
	h.registry.RegisterCustomTool(
		mcp.NewTool(ToolServerStatus, desc, mcp.ObjectSchema(desc, props, nil)),
		Category,
		h.HandleStatus,
	)
}

// StatusResponse represents server health information
type StatusResponse struct {
	Status    string           `json:"status"` // "healthy", "degraded"
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Timestamp time.Time        `json:"timestamp"`
	Sessions  session.Stats    `json:"sessions"`
	Tools     registry.Stats   `json:"tools"`
	Instances []InstanceHealth `json:"instances"`
	Runtime   *RuntimeMetrics  `json:"runtime,omitempty"`
}

// InstanceHealth is the resilience state of one instance client
type InstanceHealth struct {
	Instance  string                 `json:"instance"`
	Breaker   circuitbreaker.Stats   `json:"breaker"`
	RetryIn   string                 `json:"retry_in,omitempty"`
	RateLimit *ratelimit.WindowStats `json:"rate_limit,omitempty"`
}

// RuntimeMetrics represents process resource usage
type RuntimeMetrics struct {
	Goroutines    int    `json:"goroutines"`
	HeapAllocated uint64 `json:"heap_allocated"` // bytes
	System        uint64 `json:"system"`         // bytes
	NumGC         uint32 `json:"num_gc"`
}

// HandleStatus reports server status. Instances appear once a call has
// used them.
func (h *Handler) HandleStatus(_ context.Context, args map[string]interface{}) (interface{}, error) {
	resp := StatusResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Sessions:  h.sessions.GetStats(),
		Tools:     h.registry.GetStats(),
		Instances: []InstanceHealth{},
	}

	for _, c := range h.pool.Clients() {
		health := InstanceHealth{
			Instance: c.Instance(),
			Breaker:  c.Breaker().GetStats(),
		}
		if c.Breaker().GetState() != circuitbreaker.StateClosed {
			resp.Status = "degraded"
			health.RetryIn = c.Breaker().RetryIn().Round(time.Millisecond).String()
		}
		if h.limiter != nil {
			if stats, ok := h.limiter.GetStats(c.Instance()); ok {
				health.RateLimit = &stats
			}
		}
		resp.Instances = append(resp.Instances, health)
	}

	if detailed, _ := args["detailed"].(bool); detailed {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		resp.Runtime = &RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			HeapAllocated: memStats.HeapAlloc,
			System:        memStats.Sys,
			NumGC:         memStats.NumGC,
		}
	}
	return resp, nil
}
