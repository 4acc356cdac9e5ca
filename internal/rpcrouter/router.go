package rpcrouter

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"vention.dev/cellrt/internal/metrics"
	"vention.dev/cellrt/internal/rpcregistry"
)

// Config holds Router's construction-time options — SPEC_FULL.md §8/§6.
type Config struct {
	// AppName derives the route's <ServiceName> segment via ServiceName.
	AppName string

	// Prefix is the mount path every route is registered under,
	// conventionally "/rpc". Empty means routes are mounted at the root.
	Prefix string

	// JWTSecret signs/verifies the actor bearer token. Empty accepts any
	// well-formed (but unverified) token — see authenticator.
	JWTSecret string

	// RateLimitPerMinute and RateLimitBurst configure the per-actor
	// token-bucket limiter. RateLimitPerMinute <= 0 means unlimited.
	RateLimitPerMinute int
	RateLimitBurst     int

	Logger *zap.Logger
}

// Router mounts a registry's actions and streams as ConnectRPC-compatible
// HTTP endpoints: unary JSON request/response and framed server-streaming
// responses, under /<prefix>/<service_fqn>/<RpcName> — spec.md §4.6/§6.
type Router struct {
	engine     *gin.Engine
	registry   *rpcregistry.Registry
	serviceFQN string
	auth       *authenticator
	limiter    *actorLimiter
	log        *zap.Logger
}

// New builds a Router from cfg, mounting every action and stream
// currently registered on reg. reg should already be Finalize()d — routes
// are snapshotted at construction time, matching spec.md §5's
// "reconfiguration ... only permitted before start()".
func New(cfg Config, reg *rpcregistry.Registry) *Router {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	r := &Router{
		engine:     engine,
		registry:   reg,
		serviceFQN: ServiceFQN(cfg.AppName),
		auth:       newAuthenticator(cfg.JWTSecret),
		limiter:    newActorLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
		log:        log,
	}
	r.mount(cfg.Prefix)
	return r
}

// Handler returns the http.Handler to mount on an *http.Server.
func (r *Router) Handler() http.Handler { return r.engine }

// ServiceFQN returns the fully qualified service path segment this router
// was mounted under, e.g. "vention.app.v1.CellrtService".
func (r *Router) ServiceFQN() string { return r.serviceFQN }

func (r *Router) mount(prefix string) {
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	group := r.engine.Group(prefix).Group("/" + r.serviceFQN)
	for _, name := range r.registry.ActionNames() {
		name := name
		group.POST("/"+name, r.handleAction(name))
	}
	for _, name := range r.registry.StreamNames() {
		name := name
		group.POST("/"+name, r.handleStream(name))
	}
}

func (r *Router) handleAction(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.New().String()
		c.Header("X-Request-Id", requestID)
		actor, aerr := r.auth.authenticate(c.GetHeader("Authorization"))
		if aerr != nil {
			r.finishAction(c, name, requestID, start, aerr)
			return
		}
		if !r.limiter.allow(actor) {
			r.finishAction(c, name, requestID, start, NewError(CodeResourceExhausted, "rate limit exceeded for actor "+actor))
			return
		}

		action, ok := r.registry.Action(name)
		if !ok {
			r.finishAction(c, name, requestID, start, NewError(CodeUnimplemented, fmt.Sprintf("unknown action %q", name)))
			return
		}

		var input any
		if action.InputType != nil {
			ptr := reflect.New(action.InputType)
			if err := c.ShouldBindJSON(ptr.Interface()); err != nil && !errors.Is(err, io.EOF) {
				r.finishAction(c, name, requestID, start, NewError(CodeInvalidArgument, err.Error()))
				return
			}
			input = ptr.Elem().Interface()
		}

		output, err := action.Func(c.Request.Context(), input)
		if err != nil {
			r.finishAction(c, name, requestID, start, toWireError(err))
			return
		}

		body, merr := rpcregistry.SerializeStreamItem(output)
		if output == nil {
			body = []byte("{}")
			merr = nil
		}
		if merr != nil {
			r.finishAction(c, name, requestID, start, NewError(CodeInternal, merr.Error()))
			return
		}
		r.finishAction(c, name, requestID, start, nil)
		c.Data(http.StatusOK, connectContentType, body)
	}
}

// finishAction records request metrics and, if wireErr is non-nil, writes
// the JSON error envelope body — spec.md §4.6: unary errors are HTTP 200
// with the same content-type, never a non-2xx status.
func (r *Router) finishAction(c *gin.Context, name, requestID string, start time.Time, wireErr *Error) {
	code := "ok"
	if wireErr != nil {
		code = string(wireErr.Code)
	}
	metrics.Get().RPCRequestsTotal.WithLabelValues(name, code).Inc()
	metrics.Get().RPCRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if wireErr == nil {
		return
	}
	r.log.Info("rpc action failed",
		zap.String("action", name), zap.String("request_id", requestID),
		zap.String("code", code), zap.String("message", wireErr.Message))
	c.Data(http.StatusOK, connectContentType, marshalErrorEnvelope(wireErr))
}

func (r *Router) handleStream(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.New().String()
		actor, aerr := r.auth.authenticate(c.GetHeader("Authorization"))
		if aerr != nil {
			r.openStreamWithError(c, name, requestID, start, aerr)
			return
		}
		if !r.limiter.allow(actor) {
			r.openStreamWithError(c, name, requestID, start, NewError(CodeResourceExhausted, "rate limit exceeded for actor "+actor))
			return
		}

		stream, ok := r.registry.Stream(name)
		if !ok {
			r.openStreamWithError(c, name, requestID, start, NewError(CodeUnimplemented, fmt.Sprintf("unknown stream %q", name)))
			return
		}

		sub := stream.Topic.Subscribe()
		defer sub.Unsubscribe()

		c.Header("X-Request-Id", requestID)
		c.Header("Content-Type", connectContentType)
		c.Header("Transfer-Encoding", "chunked")
		c.Status(http.StatusOK)
		flusher, canFlush := c.Writer.(http.Flusher)
		if canFlush {
			flusher.Flush()
		}

		ctx := c.Request.Context()
		code := "ok"
		for {
			select {
			case msg, open := <-sub.C:
				if !open {
					metrics.Get().RPCRequestsTotal.WithLabelValues(name, code).Inc()
					metrics.Get().RPCRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
					return
				}
				payload, err := rpcregistry.SerializeStreamItem(msg.Payload)
				if err != nil {
					_ = writeTrailerFrame(c.Writer, marshalErrorEnvelope(NewError(CodeInternal, err.Error())))
					code = string(CodeInternal)
					if canFlush {
						flusher.Flush()
					}
					metrics.Get().RPCRequestsTotal.WithLabelValues(name, code).Inc()
					metrics.Get().RPCRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
					return
				}
				if err := writeDataFrame(c.Writer, payload); err != nil {
					// client disconnected mid-write; nothing more to do.
					metrics.Get().RPCRequestsTotal.WithLabelValues(name, code).Inc()
					metrics.Get().RPCRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
					return
				}
				if canFlush {
					flusher.Flush()
				}
			case <-ctx.Done():
				metrics.Get().RPCRequestsTotal.WithLabelValues(name, code).Inc()
				metrics.Get().RPCRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
				return
			}
		}
	}
}

// openStreamWithError signals a pre-stream failure (auth, rate limit,
// unknown route) the only way the framed protocol allows: a trailer frame
// with no preceding data frames, immediately terminating the response.
func (r *Router) openStreamWithError(c *gin.Context, name, requestID string, start time.Time, wireErr *Error) {
	c.Header("X-Request-Id", requestID)
	c.Header("Content-Type", connectContentType)
	c.Header("Transfer-Encoding", "chunked")
	c.Status(http.StatusOK)
	_ = writeTrailerFrame(c.Writer, marshalErrorEnvelope(wireErr))
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	metrics.Get().RPCRequestsTotal.WithLabelValues(name, string(wireErr.Code)).Inc()
	metrics.Get().RPCRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	r.log.Info("rpc stream failed to open",
		zap.String("stream", name), zap.String("request_id", requestID), zap.String("code", string(wireErr.Code)))
}
