package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"probgen"
)

const sessionName = "probgen-session"

type Server struct {
	generator *probgen.ProblemGenerator
	store     *probgen.SQLiteStore
	sessions  *sessions.CookieStore
	log       *zap.SugaredLogger
}

func main() {
	var (
		addr      = flag.String("addr", ":8080", "Listen address")
		dbPath    = flag.String("db", "./probgen.db", "SQLite database path")
		redisAddr = flag.String("redis", "", "Redis address for the problem cache (default: SQLite-backed cache)")
		validator = flag.String("validator", "sampled", "Independent validator mode (off, sampled, full)")
	)
	flag.Parse()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}
	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		sessionSecret = "dev-only-secret"
	}

	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	store, err := probgen.OpenSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	var cacheStore probgen.CacheStore = store
	if *redisAddr != "" {
		redisCache, err := probgen.NewRedisCacheStore(context.Background(), *redisAddr, probgen.DefaultCacheTTL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisCache.Close()
		cacheStore = redisCache
	}

	gateway := probgen.NewOpenAIGateway(apiKey, logger)
	embedder := probgen.NewOpenAIEmbedder(apiKey)
	retriever := probgen.NewRetriever(store, embedder, nil, logger)
	cache := probgen.NewProblemCache(cacheStore, probgen.DefaultCacheTTL, logger)
	costs := probgen.NewCostTracker(store, logger)
	filter := probgen.NewQualityFilterChain(gateway, costs, probgen.FilterConfig{
		ValidatorMode: probgen.ValidatorMode(*validator),
	}, logger)
	generator := probgen.NewProblemGenerator(
		gateway, retriever, cache, filter, costs, store,
		probgen.DefaultGeneratorConfig(), logger,
	)

	srv := &Server{
		generator: generator,
		store:     store,
		sessions:  sessions.NewCookieStore([]byte(sessionSecret)),
		log:       logger.Named("http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/generate", srv.handleGenerate)
	mux.HandleFunc("/api/samples", srv.handleSamples)

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // generation can be slow
	}
	log.Printf("Listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req probgen.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tech == "" {
		writeError(w, http.StatusBadRequest, "tech is required")
		return
	}
	req.UserID = s.userID(w, r)

	result, err := s.generator.GenerateProblems(r.Context(), req)
	if err != nil {
		s.writeGenerateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeGenerateError maps pipeline errors onto HTTP statuses: security
// rejections identify the offending field, rate limits ask the client to
// retry, anything else is a 503.
func (s *Server) writeGenerateError(w http.ResponseWriter, err error) {
	var sv *probgen.SecurityViolationError
	switch {
	case errors.As(err, &sv):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "input rejected",
			"field": sv.Field,
		})
	case errors.Is(err, probgen.ErrRateLimited):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "model temporarily rate limited, try again later")
	default:
		s.log.Errorw("generation failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "problem generation failed")
	}
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	domain := r.URL.Query().Get("domain")
	subdomain := r.URL.Query().Get("tech")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	samples, err := s.store.SamplesBySubdomain(r.Context(), domain, subdomain, limit)
	if err != nil {
		s.log.Errorw("sample listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sample listing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": samples})
}

// userID returns the stable anonymous id for this browser session, minting
// one on first contact. Cost records attribute to it.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) string {
	session, _ := s.sessions.Get(r, sessionName)
	if id, ok := session.Values["user_id"].(string); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	session.Values["user_id"] = id
	if err := session.Save(r, w); err != nil {
		s.log.Warnw("session save failed", "error", err)
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
