// Package localserver runs the Lambda handler behind a plain net/http server.
// It verifies bearer tokens itself and hands the handler the same API Gateway
// HTTP API event it would receive in AWS.
package localserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"content-transformer/internal/metrics"
)

const (
	defaultAddr            = ":8080"
	defaultMaxBodySize     = 1 << 20
	defaultShutdownTimeout = 10 * time.Second
)

// EventHandler is satisfied by handler.Handler.
type EventHandler interface {
	Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)
}

// ClaimsVerifier is satisfied by auth.Verifier.
type ClaimsVerifier interface {
	VerifyRequest(r *http.Request) (map[string]string, error)
}

type Server struct {
	handler         EventHandler
	verifier        ClaimsVerifier
	addr            string
	maxBodySize     int64
	shutdownTimeout time.Duration
	logger          *slog.Logger
	httpServer      *http.Server
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(h EventHandler, v ClaimsVerifier, opts ...Option) (*Server, error) {
	if h == nil {
		return nil, errors.New("localserver: handler must not be nil")
	}
	if v == nil {
		return nil, errors.New("localserver: verifier must not be nil")
	}
	s := &Server{
		handler:         h,
		verifier:        v,
		addr:            defaultAddr,
		maxBodySize:     defaultMaxBodySize,
		shutdownTimeout: defaultShutdownTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Routes serves /healthz and /metrics directly and sends every other path to
// the event handler, which dispatches on method alone.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("/", s.serveEvent)
	return mux
}

// ListenAndServe blocks until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("localserver: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("localserver: shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// serveEvent verifies the token before touching the body, so a caller without
// a valid token always gets the handler's 401, whatever the body size.
func (s *Server) serveEvent(w http.ResponseWriter, r *http.Request) {
	claims, authErr := s.verifier.VerifyRequest(r)

	var body string
	if authErr != nil {
		// No authorizer context: the handler answers 401 itself.
		s.logger.Debug("token rejected", "err", authErr, "path", r.URL.Path)
	} else {
		raw, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodySize+1))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Bad Request")
			return
		}
		if int64(len(raw)) > s.maxBodySize {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		body = string(raw)
	}

	event := toEvent(r, body)
	if authErr == nil {
		event.RequestContext.Authorizer = &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
			JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{Claims: claims},
		}
	}

	resp, err := s.handler.Handle(r.Context(), event)
	if err != nil {
		s.logger.Error("handler returned error", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeResponse(w, resp)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	raw, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func toEvent(r *http.Request, body string) events.APIGatewayV2HTTPRequest {
	headers := make(map[string]string, len(r.Header))
	for k, vs := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(vs, ",")
	}
	query := make(map[string]string)
	for k, vs := range r.URL.Query() {
		query[k] = strings.Join(vs, ",")
	}
	now := time.Now()
	return events.APIGatewayV2HTTPRequest{
		Version:               "2.0",
		RouteKey:              "$default",
		RawPath:               r.URL.Path,
		RawQueryString:        r.URL.RawQuery,
		Headers:               headers,
		QueryStringParameters: query,
		Body:                  body,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			RouteKey:  "$default",
			Stage:     "$default",
			RequestID: uuid.NewString(),
			Time:      now.UTC().Format("02/Jan/2006:15:04:05 -0700"),
			TimeEpoch: now.UnixMilli(),
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:    r.Method,
				Path:      r.URL.Path,
				Protocol:  r.Proto,
				SourceIP:  r.RemoteAddr,
				UserAgent: r.UserAgent(),
			},
		},
	}
}

func writeResponse(w http.ResponseWriter, resp events.APIGatewayV2HTTPResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, vs := range resp.MultiValueHeaders {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp.Body)
}
