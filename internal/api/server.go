package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wafflecomposite/peakstranding-server/internal/auth"
	"github.com/wafflecomposite/peakstranding-server/internal/config"
	"github.com/wafflecomposite/peakstranding-server/internal/ratelimit"
	"github.com/wafflecomposite/peakstranding-server/internal/storage"
	"github.com/wafflecomposite/peakstranding-server/internal/structures"
)

// TicketHeader carries the hex-encoded Steam session ticket on every
// authenticated request.
const TicketHeader = "X-Steam-Ticket"

const storeTimeout = 5 * time.Second

type Server struct {
	cfg      config.Config
	store    storage.StructuresStore
	verifier *auth.Verifier

	// One limiter per operation category; identity verification always runs
	// first, so limiter state is never consumed by unauthenticated requests.
	postLimiter *ratelimit.Limiter
	getLimiter  *ratelimit.Limiter
	likeLimiter *ratelimit.Limiter

	global *rate.Limiter

	sweepStop chan struct{}

	mux *http.ServeMux
}

func NewServer(cfg config.Config, store storage.StructuresStore, verifier *auth.Verifier) *Server {
	mux := http.NewServeMux()

	s := &Server{
		cfg:         cfg,
		store:       store,
		verifier:    verifier,
		postLimiter: ratelimit.New(cfg.PostStructureRateLimit),
		getLimiter:  ratelimit.New(cfg.GetStructureRateLimit),
		likeLimiter: ratelimit.New(cfg.PostLikeRateLimit),
		sweepStop:   make(chan struct{}),
		mux:         mux,
	}

	if cfg.GlobalRateLimitRPS > 0 {
		s.global = rate.NewLimiter(rate.Limit(cfg.GlobalRateLimitRPS), cfg.GlobalRateLimitBurst)
	}

	// Sweep idle limiter entries and expired ticket-cache entries in the
	// background; both are pure memory reclamation.
	s.postLimiter.StartGC(2*time.Minute, 10*time.Minute)
	s.getLimiter.StartGC(2*time.Minute, 10*time.Minute)
	s.likeLimiter.StartGC(2*time.Minute, 10*time.Minute)
	go s.sweepLoop()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /api/v1/structures", s.handleSubmitStructure)
	mux.HandleFunc("GET /api/v1/structures", s.handleRandomStructures)
	mux.HandleFunc("POST /api/v1/structures/{id}/like", s.handleLikeStructure)

	return s
}

func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux, s.global)
}

// Close stops background goroutines (limiter GC, ticket-cache sweep). Safe to
// call multiple times.
func (s *Server) Close() {
	s.postLimiter.Stop()
	s.getLimiter.Stop()
	s.likeLimiter.Stop()
	select {
	case <-s.sweepStop:
	default:
		close(s.sweepStop)
	}
}

func (s *Server) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.verifier.Sweep()
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// requireIdentity resolves the caller's Steam id from the session ticket
// header. This always runs before any rate-limit check: a request that fails
// verification must not consume limiter state.
func (s *Server) requireIdentity(w http.ResponseWriter, r *http.Request) (int64, bool) {
	ticket := strings.TrimSpace(r.Header.Get(TicketHeader))
	if ticket == "" {
		unauthorized(w)
		return 0, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	steamID, err := s.verifier.Verify(ctx, ticket)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAuthorityUnavailable):
			serviceUnavailable(w, "ticket authority unavailable")
		case errors.Is(err, auth.ErrInvalidTicket), errors.Is(err, auth.ErrTicketRejected):
			unauthorized(w)
		default:
			slog.Error("ticket verification error", "err", err)
			internalServerError(w)
		}
		return 0, false
	}
	return steamID, true
}

func (s *Server) handleSubmitStructure(w http.ResponseWriter, r *http.Request) {
	steamID, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	if !s.postLimiter.Allow(steamID) {
		rateLimited(w, s.postLimiter.Interval())
		return
	}
	if !isJSONContentType(r) {
		badRequest(w, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, structures.MaxPayloadBytes+16*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req SubmitStructureRequest
	if err := dec.Decode(&req); err != nil {
		badRequest(w, mapDecodeError(err))
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		badRequest(w, "invalid json")
		return
	}

	sub := structures.Submission{
		Username: strings.TrimSpace(req.Username),
		MapID:    req.MapID,
		Scene:    req.Scene,
		Segment:  req.Segment,
		Prefab:   req.Prefab,
		Payload:  req.Payload,
	}
	if err := sub.Validate(s.cfg.MaxSceneLength); err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	st, err := s.store.Create(ctx, storage.Structure{
		UserID:   steamID,
		Username: sub.Username,
		MapID:    sub.MapID,
		Scene:    sub.Scene,
		Segment:  sub.Segment,
		Prefab:   sub.Prefab,
		Payload:  sub.Payload,
	}, s.cfg.MaxUserStructsSavedPerScene)
	if err != nil {
		slog.Error("create structure error", "err", err)
		serviceUnavailable(w, "storage unavailable")
		return
	}

	writeJSON(w, http.StatusCreated, toStructureResponse(st))
}

func (s *Server) handleRandomStructures(w http.ResponseWriter, r *http.Request) {
	steamID, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	if !s.getLimiter.Allow(steamID) {
		rateLimited(w, s.getLimiter.Interval())
		return
	}

	q := r.URL.Query()

	scene := q.Get("scene")
	if err := structures.ValidateScene(scene, s.cfg.MaxSceneLength); err != nil {
		badRequest(w, err.Error())
		return
	}

	var requested *int
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "invalid limit")
			return
		}
		requested = &n
	}
	limit := structures.ClampRandomLimit(requested, s.cfg.DefaultRandomLimit, s.cfg.MaxRequestedStructs)

	filter := storage.RandomFilter{Scene: scene}
	if v := q.Get("map_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			badRequest(w, "invalid map_id")
			return
		}
		mapID := int32(n)
		filter.MapID = &mapID
	}
	if v := q.Get("exclude_prefabs"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				filter.ExcludePrefabs = append(filter.ExcludePrefabs, p)
			}
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	found, err := s.store.Random(ctx, filter, limit)
	if err != nil {
		slog.Error("random structures error", "err", err)
		serviceUnavailable(w, "storage unavailable")
		return
	}

	out := make([]StructureResponse, 0, len(found))
	for _, st := range found {
		out = append(out, toStructureResponse(st))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLikeStructure(w http.ResponseWriter, r *http.Request) {
	steamID, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	if !s.likeLimiter.Allow(steamID) {
		rateLimited(w, s.likeLimiter.Interval())
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		notFound(w)
		return
	}

	// The body is optional: an absent or empty body means one like.
	var req LikeStructureRequest
	if r.ContentLength != 0 {
		if !isJSONContentType(r) {
			badRequest(w, "content-type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 4*1024)
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			badRequest(w, mapDecodeError(err))
			return
		}
		if err := dec.Decode(&struct{}{}); err != io.EOF {
			badRequest(w, "invalid json")
			return
		}
	}

	delta, err := structures.NormalizeLikeDelta(req.Count)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	likes, err := s.store.AddLikes(ctx, id, steamID, delta)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		notFound(w)
		return
	case errors.Is(err, storage.ErrSelfLike):
		badRequest(w, "cannot like your own structure")
		return
	case err != nil:
		slog.Error("like structure error", "err", err)
		serviceUnavailable(w, "storage unavailable")
		return
	}

	writeJSON(w, http.StatusOK, LikeStructureResponse{ID: id, Likes: likes})
}

func toStructureResponse(st storage.Structure) StructureResponse {
	return StructureResponse{
		ID:        st.ID,
		UserID:    st.UserID,
		Username:  st.Username,
		MapID:     st.MapID,
		Scene:     st.Scene,
		Segment:   st.Segment,
		Prefab:    st.Prefab,
		Payload:   st.Payload,
		Likes:     st.Likes,
		CreatedAt: st.CreatedAt,
	}
}
