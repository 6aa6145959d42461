package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/epic1st/rtx/backend/auth"
	"github.com/epic1st/rtx/backend/cache"
	"github.com/epic1st/rtx/backend/config"
	"github.com/epic1st/rtx/backend/database"
	"github.com/epic1st/rtx/backend/internal/core"
	"github.com/epic1st/rtx/backend/logging"
	"github.com/epic1st/rtx/backend/monitoring"
	"github.com/epic1st/rtx/backend/ws"
)

func main() {
	logger := logging.NewLogger(logging.INFO)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", err)
	}

	if cfg.LogFile != "" {
		rfw, err := logging.NewRotatingFileWriter(logging.RotationConfig{
			Filename:           cfg.LogFile,
			MaxSizeMB:          100,
			MaxAge:             7 * 24 * time.Hour,
			MaxBackups:         5,
			CompressionEnabled: true,
		})
		if err != nil {
			logger.Warn("log file rotation disabled", logging.String("error", err.Error()))
		} else {
			logger = logging.NewLogger(logging.INFO, logging.NewMultiWriter(os.Stdout, rfw))
		}
	}

	if cfg.SentryDSN != "" {
		hook, err := logging.NewSentryHook(cfg.SentryDSN, cfg.Environment)
		if err != nil {
			logger.Warn("sentry hook disabled", logging.String("error", err.Error()))
		} else {
			logger.AddHook(hook)
		}
	}

	engine := core.NewEngine(cfg.Engine.AccountKey,
		core.WithInitBalance(cfg.Engine.InitBalance),
		core.WithLogger(logger),
	)

	authService := auth.NewService(cfg.Engine.AccountKey, cfg.Operator.PasswordHash, cfg.JWT.Secret)

	hub := ws.NewHub()
	hub.SetAuthService(authService)
	go hub.Run()

	var tradeLogStore *database.TradeLogStore
	connStr := database.GetConnectionString()
	if db, err := database.Connect(connStr); err != nil {
		logger.Warn("database unavailable, settlements will not be persisted", logging.String("error", logging.MaskSensitiveData(err.Error())))
	} else {
		migrator := database.NewMigrator(db, database.WithVerbose(true))
		if err := migrator.Initialize(); err != nil {
			logger.Warn("migrator initialize failed", logging.String("error", err.Error()))
		} else if err := migrator.Up(); err != nil {
			logger.Warn("migration failed", logging.String("error", err.Error()))
		}
		tradeLogStore = database.NewTradeLogStore(db)
	}

	var quoteFeed *cache.QuoteFeed
	if redisCache, err := cache.NewRedisCache(cache.DefaultRedisConfig()); err != nil {
		logger.Warn("redis unavailable, quote fan-out disabled", logging.String("error", err.Error()))
	} else {
		quoteFeed = cache.NewQuoteFeed(redisCache)
		seedQuotes(context.Background(), engine, cfg.Engine.WatchSymbols, quoteFeed, logger)
	}

	auditLogger, err := logging.NewAuditLogger(cfg.AuditDir)
	if err != nil {
		logger.Warn("audit logger disabled", logging.String("error", err.Error()))
	} else {
		defer auditLogger.Close()
	}

	srv := &server{engine: engine, hub: hub, authService: authService, tradeLogStore: tradeLogStore, quoteFeed: quoteFeed, logger: logger, audit: auditLogger}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", monitoring.Handler())
	mux.HandleFunc("/login", timed("POST", "/login", monitoring.APIRequestMiddleware("/login", srv.handleLogin)))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) { ws.ServeWs(hub, w, r) })
	mux.HandleFunc("/snapshot", timed("GET", "/snapshot", monitoring.APIRequestMiddleware("/snapshot", srv.requireAuth(srv.handleSnapshot))))
	mux.HandleFunc("/orders", timed("POST", "/orders", monitoring.APIRequestMiddleware("/orders", srv.requireAuth(srv.handleOrders))))
	mux.HandleFunc("/orders/", timed("DELETE", "/orders/", monitoring.APIRequestMiddleware("/orders/", srv.requireAuth(srv.handleCancelOrder))))
	mux.HandleFunc("/quotes", timed("POST", "/quotes", monitoring.APIRequestMiddleware("/quotes", srv.requireAuth(srv.handleQuotes))))
	mux.HandleFunc("/settle", timed("POST", "/settle", monitoring.APIRequestMiddleware("/settle", srv.requireAuth(srv.handleSettle))))

	handler := logging.PanicRecoveryMiddleware(logger)(logging.HTTPLoggingMiddleware(logger)(mux))
	httpServer := &http.Server{Addr: ":" + cfg.Port, Handler: handler}

	go func() {
		logger.Info("server listening", logging.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
}

// server holds the single account engine and the ambient collaborators
// every handler needs. One process owns exactly one engine, matching
// the engine's own one-account-per-instance contract.
type server struct {
	engine        *core.Engine
	hub           *ws.Hub
	authService   *auth.Service
	tradeLogStore *database.TradeLogStore
	quoteFeed     *cache.QuoteFeed
	logger        *logging.Logger
	audit         *logging.AuditLogger
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	token, op, err := s.authService.Login(req.Password)
	if err != nil {
		if s.audit != nil {
			s.audit.LogAuthenticationFailed(r.Context(), "operator", r.RemoteAddr, err.Error())
		}
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if s.audit != nil {
		s.audit.LogAuthentication(r.Context(), op.AccountKey, r.RemoteAddr, "password")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token, "operator": op})
}

func (s *server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(authHeader) <= len(prefix) || authHeader[:len(prefix)] != prefix {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := s.authService.ValidateToken(authHeader[len(prefix):]); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.InitSnapshot())
}

func (s *server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req core.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" {
		req.OrderID = uuid.NewString()
	}

	start := time.Now()
	diffs, events := s.engine.InsertOrder(req)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	status := "rejected"
	for _, o := range events {
		if o.LastMsg != "" {
			status = string(o.Status)
		}
	}
	monitoring.RecordOrderInsert(req.ExchangeID, string(req.Offset), status, latencyMs)
	if s.audit != nil {
		s.audit.LogOrderPlacement(r.Context(), req.OrderID, req.InstrumentID, string(req.Direction), float64(req.Volume), req.LimitPrice, string(req.PriceType), s.engine.AccountKey())
	}

	s.hub.BroadcastDiffs(diffs)
	writeJSON(w, http.StatusOK, map[string]interface{}{"diffs": diffs, "events": events})
}

func (s *server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	orderID := r.URL.Path[len("/orders/"):]
	if orderID == "" {
		http.Error(w, "missing order id", http.StatusBadRequest)
		return
	}
	diffs, events := s.engine.CancelOrder(orderID)
	if s.audit != nil {
		s.audit.LogOrderCancellation(r.Context(), orderID, s.engine.AccountKey(), "operator request")
	}
	s.hub.BroadcastDiffs(diffs)
	writeJSON(w, http.StatusOK, map[string]interface{}{"diffs": diffs, "events": events})
}

func (s *server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var packet map[string]*core.Quote
	if err := json.NewDecoder(r.Body).Decode(&packet); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var diffs []core.Diff
	var events []*core.Order
	for symbol := range packet {
		d, ev := s.engine.UpdateQuotes(symbol, packet)
		diffs = append(diffs, d...)
		events = append(events, ev...)
	}
	s.hub.BroadcastDiffs(diffs)

	if s.quoteFeed != nil {
		published := make(map[string]core.Quote, len(packet))
		for symbol, q := range packet {
			published[symbol] = *q
		}
		if err := s.quoteFeed.Publish(r.Context(), published); err != nil {
			s.logger.Warn("quote fan-out publish failed", logging.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"diffs": diffs, "events": events})
}

func (s *server) handleSettle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	diffs, events, log := s.engine.Settle()
	s.hub.BroadcastDiffs(diffs)

	if s.tradeLogStore != nil {
		if err := s.tradeLogStore.Save(s.engine.AccountKey(), log); err != nil {
			s.logger.Error("failed to persist settlement", err)
			logging.TrackError(r.Context(), err, "high", map[string]interface{}{"account_key": s.engine.AccountKey()})
		}
	}

	monitoring.SetAccountGauges(log.Account.Balance, log.Account.Available, log.Account.RiskRatio)
	writeJSON(w, http.StatusOK, map[string]interface{}{"diffs": diffs, "events": events})
}

// seedQuotes pre-warms the engine's quote cache from the shared feed for
// every configured watch symbol, so a freshly started process doesn't
// reject the first order against those symbols for want of a quote.
func seedQuotes(ctx context.Context, engine *core.Engine, symbols []string, feed *cache.QuoteFeed, logger *logging.Logger) {
	if len(symbols) == 0 {
		return
	}
	packet, err := feed.Fetch(ctx, symbols)
	if err != nil {
		logger.Warn("quote seed fetch failed", logging.String("error", err.Error()))
		return
	}
	if len(packet) == 0 {
		return
	}
	enginePacket := cache.ToEnginePacket(packet)
	for symbol := range enginePacket {
		engine.UpdateQuotes(symbol, enginePacket)
	}
	logger.Info("quote cache seeded", logging.Int("symbols", len(packet)))
}

// timed wraps a handler so a request taking longer than the package's
// slow-endpoint threshold gets logged for later investigation.
func timed(method, path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		logging.LogSlowEndpoint(method, path, time.Since(start), sw.status, r.Header.Get("X-Request-ID"))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
