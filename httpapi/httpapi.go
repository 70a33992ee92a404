// Package httpapi binds the service to HTTP with the original route layout:
//
//	POST /api/createPost          {content, signature, address}
//	GET  /api/posts/{address}     ?offset=&limit=
//	GET  /healthz
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"xdao.co/postledger/model"
	"xdao.co/postledger/service"
)

// DefaultMaxBodyBytes bounds createPost request bodies.
const DefaultMaxBodyBytes = 1 << 20

type Options struct {
	MaxBodyBytes int64
}

type Server struct {
	svc     *service.Service
	maxBody int64
	logger  zerolog.Logger
}

func New(svc *service.Service, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{svc: svc, maxBody: opts.MaxBodyBytes, logger: zerolog.Nop()}
}

func (s *Server) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(api chi.Router) {
		api.Post("/createPost", s.createPost)
		api.Get("/posts/{address}", s.listPosts)
	})
	return r
}

type createPostRequest struct {
	Content   json.RawMessage `json:"content"`
	Signature string          `json:"signature"`
	Address   string          `json:"address"`
}

type createPostResponse struct {
	Success bool `json:"success"`
	*model.Item
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, model.WrapError(model.ErrInvalidRequest, "request body is not valid JSON", err))
		return
	}
	it, err := s.svc.CreateContent(r.Context(), service.CreateRequest{
		Body:      req.Content,
		Signature: req.Signature,
		Address:   req.Address,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, createPostResponse{Success: true, Item: it})
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.svc.ListContent(r.Context(), chi.URLParam(r, "address"), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewError(model.ErrInvalidRequest, name+" must be an integer")
	}
	return n, nil
}

type errorResponse struct {
	Error string          `json:"error"`
	Code  model.ErrorCode `json:"code"`
}

// statusOf maps coded errors onto HTTP. Anything uncoded is a 500 and its
// text is not echoed to the client.
func statusOf(err error) (int, errorResponse) {
	var ce *model.CodedError
	if errors.As(err, &ce) {
		resp := errorResponse{Error: ce.Message, Code: ce.Code}
		switch ce.Code {
		case model.ErrInvalidRequest:
			return http.StatusBadRequest, resp
		case model.ErrUnauthorized:
			return http.StatusUnauthorized, resp
		case model.ErrLedgerUnavailable, model.ErrContentUnavailable:
			return http.StatusServiceUnavailable, resp
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable, errorResponse{Error: "request cancelled", Code: model.ErrInternal}
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: model.ErrInternal}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := statusOf(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Warn().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RequestID returns the id chi assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// echoRequestID returns the request id to the caller. It runs after
// middleware.RequestID, which honours an incoming X-Request-Id.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := RequestID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog attaches a request-scoped logger to the context and logs one
// line per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := s.logger.With().Str("request_id", RequestID(r.Context())).Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(log.WithContext(r.Context())))
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
