package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/ingest"
)

type createSessionResponse struct {
	SessionID  string      `json:"sessionId"`
	SDPOffer   string      `json:"sdpOffer"`
	ICEServers []iceServer `json:"iceServers"`
}

type iceServer struct {
	URLs []string `json:"urls"`
}

type answerRequest struct {
	SDPAnswer string `json:"sdpAnswer"`
}

// Handler returns the listener-facing HTTP API:
//
//	GET    /healthz
//	POST   /v1/sessions
//	POST   /v1/sessions/{sessionId}/webrtc/answer
//	DELETE /v1/sessions/{sessionId}
func (gw *Gateway) Handler() http.Handler {
	origins := gw.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(gw.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", gw.handleHealth)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", gw.handleCreateSession)
		r.Route("/{sessionId}", func(r chi.Router) {
			r.Delete("/", gw.handleDeleteSession)
			r.Post("/webrtc/answer", gw.handleSetAnswer)
		})
	})
	return r
}

func (gw *Gateway) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		gw.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("requestId", chimw.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"sessions": gw.SessionCount(),
	}
	if st, ok := gw.ingestStatus(); ok {
		body["ingest"] = st
		if st.State == ingest.StateError {
			body["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (gw *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.New().String()

	sdpOffer, err := gw.CreateSession(sessionID)
	switch {
	case errors.Is(err, ErrSessionLimit):
		gw.logger.Warn("session cap reached", zap.Int("max", gw.cfg.MaxSessions))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "max sessions reached"})
		return
	case err != nil:
		gw.logger.Error("create session failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create session failed"})
		return
	}

	iceServers := make([]iceServer, 0, 1)
	if len(gw.cfg.STUNServers) > 0 {
		iceServers = append(iceServers, iceServer{URLs: gw.cfg.STUNServers})
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:  sessionID,
		SDPOffer:   sdpOffer,
		ICEServers: iceServers,
	})
}

func (gw *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !gw.DeleteSession(chi.URLParam(r, "sessionId")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (gw *Gateway) handleSetAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var req answerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil || req.SDPAnswer == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: sdpAnswer required"})
		return
	}

	if err := gw.SetAnswer(sessionID, req.SDPAnswer); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		gw.logger.Error("set answer failed", zap.String("session", sessionID), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "set answer failed"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
