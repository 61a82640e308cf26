// Package server exposes outline generation over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/redink/outliner/internal/outline"
	"github.com/redink/outliner/internal/provider"
)

const maxBodyBytes = 32 << 20

var validate = validator.New()

// Generator is the outline operation the server fronts.
type Generator interface {
	Generate(ctx context.Context, topic string, images []provider.Image) outline.Result
}

type outlineRequest struct {
	Topic  string   `json:"topic" validate:"required,max=2000"`
	Images []string `json:"images" validate:"max=10,dive,required"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Server routes HTTP requests to a Generator.
type Server struct {
	gen      Generator
	log      *slog.Logger
	gatherer prometheus.Gatherer
}

// New creates a Server. gatherer backs /metrics; nil leaves the route out.
func New(gen Generator, log *slog.Logger, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{gen: gen, log: log, gatherer: gatherer}
}

// Handler returns the router with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/outline", s.handleOutline)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			s.log.Error("failed to write health check response", "error", err)
		}
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	log := s.log.With("http_request_id", reqID)

	var req outlineRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, reqID, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if err := validate.Struct(req); err != nil {
		s.respondError(w, reqID, http.StatusBadRequest, validationMessage(err))
		return
	}

	images, err := decodeImages(req.Images)
	if err != nil {
		s.respondError(w, reqID, http.StatusBadRequest, err.Error())
		return
	}

	res := s.gen.Generate(r.Context(), req.Topic, images)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadGateway
	}
	log.Debug("outline request done", "status", status, "request_id", res.RequestID)
	s.respondJSON(w, status, res)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, reqID string, status int, msg string) {
	s.log.Debug("sending error response", "status", status, "message", msg, "http_request_id", reqID)
	s.respondJSON(w, status, errorResponse{Error: msg, RequestID: reqID})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s exceeds the limit of %s", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s fails %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// decodeImages accepts data URIs and http(s) URLs. Decoded bytes must sniff
// as an image.
func decodeImages(raw []string) ([]provider.Image, error) {
	images := make([]provider.Image, 0, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
			images = append(images, provider.ImageFromURL(s))
		case strings.HasPrefix(s, "data:"):
			data, err := decodeDataURI(s)
			if err != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
				return nil, fmt.Errorf("image %d: content is %s, not an image", i, mt.String())
			}
			images = append(images, provider.ImageFromBytes(data))
		default:
			return nil, fmt.Errorf("image %d: expected a data URI or an http(s) URL", i)
		}
	}
	return images, nil
}

func decodeDataURI(s string) ([]byte, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, errors.New("data URI must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}
