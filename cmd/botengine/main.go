package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"tradingcore/config"
	"tradingcore/internal/api"
	"tradingcore/internal/execution"
	"tradingcore/internal/logger"
	"tradingcore/internal/markethours"
	"tradingcore/internal/model"
	"tradingcore/internal/notification"
	"tradingcore/internal/paperengine"
	"tradingcore/internal/ringbuf"
	"tradingcore/internal/store/paperstore"
	redisstore "tradingcore/internal/store/redis"
	"tradingcore/internal/strategy"
	"tradingcore/internal/tradingbot"
)

// ltpCache is a minimal PriceOracle fed by the shared market-data pipeline's
// own TF candle stream — the Trading Bot has no independent tick feed of
// its own, it rides on whatever cmd/mdengine already published to Redis.
type ltpCache struct {
	mu     sync.RWMutex
	prices map[string]int64 // "exchange:symbol" -> paise
}

func newLTPCache() *ltpCache {
	return &ltpCache{prices: make(map[string]int64)}
}

func (c *ltpCache) set(exchange, symbol string, price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[exchange+":"+symbol] = price
}

func (c *ltpCache) LTP(ctx context.Context, exchange, symbol string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prices[exchange+":"+symbol], nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	sl := logger.Init("botengine", slog.LevelInfo)
	sl.Info("starting botengine")

	if stale, reason := markethours.CheckHolidayStaleness(); stale {
		sl.Warn("holiday calendar stale", "reason", reason)
	}

	cfg := config.Load()
	symbols := cfg.ParseTradeSymbols()
	sl.Info("trading universe", "symbols", symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Paper Engine + its SQLite store ----
	os.MkdirAll(filepath.Dir(cfg.StoreDSN), 0o755)
	store, err := paperstore.New(cfg.StoreDSN)
	if err != nil {
		log.Fatalf("[botengine] paperstore init failed: %v", err)
	}
	defer store.Close()

	prices := newLTPCache()
	paper := paperengine.New(store, prices, paperengine.Config{
		LiveMode:        !cfg.PaperTrading,
		MaxLossPerDay:   cfg.MaxLossPerDay,
		MaxTradesPerDay: cfg.MaxTradesPerDay,
		MaxPositions:    cfg.MaxPositions,
		FallbackPrice:   0,
	}, cfg.DefaultCapitalPerSymbol*int64(len(symbols)))
	if err := paper.Restore(); err != nil {
		log.Printf("[botengine] paper engine restore: %v (starting fresh)", err)
	}
	log.Println("[botengine] paper engine ready")

	// ---- Trading journal for live fills (used only when !PaperTrading) ----
	journal, err := execution.NewJournal(filepath.Join(filepath.Dir(cfg.StoreDSN), "journal.db"))
	if err != nil {
		log.Fatalf("[botengine] journal init failed: %v", err)
	}
	defer journal.Close()

	// ---- Strategy instances, one per symbol, per the configured family ----
	const timeframeSeconds = 60
	bot := tradingbot.New(paper, prices, tradingbot.Config{
		CheckInterval:      60 * time.Second,
		BarWindow:          200,
		TimeframeSeconds:   timeframeSeconds,
		SquareOffHour:      cfg.AutoSquareOffHour,
		SquareOffMinute:    cfg.AutoSquareOffMinute,
		CapitalPerStrategy: cfg.DefaultCapitalPerSymbol,
	})
	bot.SetNotifier(buildNotifier())

	var entries []tradingbot.Entry
	for _, sym := range symbols {
		exchange, symbol := sym[0], sym[1]
		s := buildStrategy(cfg.DefaultStrategy, symbol, exchange, cfg)
		if s == nil {
			log.Fatalf("[botengine] unknown strategy %q", cfg.DefaultStrategy)
		}
		entries = append(entries, tradingbot.Entry{Strategy: s, Symbol: symbol, Exchange: exchange})
	}

	// ---- Subscribe to the shared market-data pipeline's TF candle stream ----
	reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: "botengine",
		ConsumerName:  "botengine-1",
	})
	if err != nil {
		log.Fatalf("[botengine] redis reader init failed: %v", err)
	}
	defer reader.Close()

	streams := reader.DiscoverTFStreams(ctx, []int{60}, symbolTokens(symbols))
	if err := reader.EnsureConsumerGroup(ctx, streams); err != nil {
		log.Printf("[botengine] consumer group setup: %v", err)
	}

	tfCh := make(chan model.TFCandle, 2000)
	go func() {
		if err := reader.ConsumeTFCandles(ctx, streams, tfCh); err != nil {
			log.Printf("[botengine] tf candle consume stopped: %v", err)
		}
	}()

	// Closed bars are buffered through a lock-free SPSC ring so a momentary
	// stall in strategy evaluation never blocks the Redis consumer goroutine.
	candleRing := ringbuf.New(4096)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-tfCh:
				if !ok {
					return
				}
				prices.set(c.Exchange, c.Token, c.Close)
				if c.Forming || c.TF != timeframeSeconds {
					continue
				}
				if !candleRing.Push(model.Candle{
					Token: c.Token, Exchange: c.Exchange, TS: c.TS,
					Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume,
				}) {
					log.Printf("[botengine] candle ring full, dropped bar for %s (overflow=%d)", c.Token, candleRing.Overflow())
				}
			}
		}
	}()
	go func() {
		drain := time.NewTicker(10 * time.Millisecond)
		defer drain.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-drain.C:
				for {
					bar, ok := candleRing.Pop()
					if !ok {
						break
					}
					bot.PushBar(bar.Token, bar)
				}
			}
		}
	}()

	if err := bot.Start(ctx, entries); err != nil {
		log.Fatalf("[botengine] bot start failed: %v", err)
	}
	sl.Info("trading bot running", "strategies", len(entries), "paper_trading", cfg.PaperTrading, "trace_id", logger.GenerateTraceID("botengine", time.Now()))

	apiAddr := getEnv("BOT_API_ADDR", ":8081")
	apiSrv := &http.Server{Addr: apiAddr, Handler: api.NewRouter(api.Dependencies{Paper: paper, Bot: bot})}
	go func() {
		log.Printf("[botengine] control API listening on %s", apiAddr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[botengine] api server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[botengine] shutdown signal received, squaring off and stopping...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := bot.Stop(stopCtx, true); err != nil {
		log.Printf("[botengine] stop error: %v", err)
	}
	apiSrv.Shutdown(stopCtx)
	cancel()
	log.Println("[botengine] stopped")
}

// buildNotifier picks an alert backend from environment configuration,
// falling back to logging when nothing is configured.
func buildNotifier() notification.Notifier {
	if token, chatID := os.Getenv("NOTIFY_TELEGRAM_TOKEN"), os.Getenv("NOTIFY_TELEGRAM_CHAT_ID"); token != "" && chatID != "" {
		log.Println("[botengine] alerts via Telegram")
		return notification.NewTelegramNotifier(token, chatID)
	}
	if url := os.Getenv("NOTIFY_WEBHOOK_URL"); url != "" {
		log.Println("[botengine] alerts via webhook")
		return notification.NewWebhookNotifier(url)
	}
	return notification.NewLogNotifier()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func symbolTokens(symbols [][2]string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, s[1])
	}
	return out
}

// buildStrategy constructs one of the six strategy family variants with
// conventional default parameters for a single symbol.
func buildStrategy(kind, symbol, exchange string, cfg *config.Config) strategy.Strategy {
	capital := cfg.DefaultCapitalPerSymbol
	risk := cfg.RiskPerTrade

	switch kind {
	case "ema_rsi", "indicator_threshold":
		return strategy.NewIndicatorThreshold(symbol, exchange, 9, 21, 14, capital, risk, 0.005, 0.01, cfg.MaxLossPerDay, cfg.MaxTradesPerDay)
	case "breakout":
		return strategy.NewBreakout(symbol, exchange, 20, 1.5, 1.5, 0.005, capital, risk, cfg.MaxLossPerDay, cfg.MaxTradesPerDay)
	case "orb":
		return strategy.NewORB(symbol, exchange, 15, 0.005, 0.01, capital, risk)
	case "pattern":
		return strategy.NewPatternConfirmation(symbol, exchange, 20, 14, 25, 1.5, 0.005, capital, risk)
	case "supertrend_triplet":
		return strategy.NewSupertrendTriplet(symbol, exchange,
			strategy.SupertrendConfig{Period: 7, Multiplier: 3.0},
			strategy.SupertrendConfig{Period: 10, Multiplier: 3.0},
			strategy.SupertrendConfig{Period: 11, Multiplier: 2.0},
			0.01, capital, risk)
	case "renko_macd":
		return strategy.NewRenkoMACD(symbol, exchange, 14, 3, 0.01, capital, risk)
	default:
		return nil
	}
}
