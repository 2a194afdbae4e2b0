package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sea021/promptshop-go/internal/auth"
	"github.com/sea021/promptshop-go/internal/checkout"
	"github.com/sea021/promptshop-go/internal/gateway"
	"github.com/sea021/promptshop-go/internal/store"
	"github.com/sea021/promptshop-go/internal/web"
	"github.com/sea021/promptshop-go/pkg/kafka"
	"github.com/sea021/promptshop-go/pkg/metrics"
	"github.com/sea021/promptshop-go/pkg/outbox"
)

type cfg struct {
	Port           string
	DatabaseURL    string
	PaygateBaseURL string
	PaygateSecret  string
	WebhookSecret  string
	JWTSecret      string
	Currency       string
	KafkaBrokers   string
	OrderTopic     string
	RequestTimeout time.Duration
}

func readCfg() (cfg, error) {
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if db == "" {
		return cfg{}, errors.New("DATABASE_URL is required")
	}
	gw := strings.TrimSpace(os.Getenv("PAYGATE_BASE_URL"))
	if gw == "" {
		return cfg{}, errors.New("PAYGATE_BASE_URL is required")
	}
	secret := strings.TrimSpace(os.Getenv("PAYGATE_SECRET_KEY"))
	if secret == "" {
		return cfg{}, errors.New("PAYGATE_SECRET_KEY is required")
	}
	webhookSecret := strings.TrimSpace(os.Getenv("PAYGATE_WEBHOOK_SECRET"))
	if webhookSecret == "" {
		return cfg{}, errors.New("PAYGATE_WEBHOOK_SECRET is required")
	}
	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		return cfg{}, errors.New("JWT_SECRET is required")
	}
	toutMS, _ := strconv.Atoi(getenv("REQUEST_TIMEOUT_MS", "5000"))

	return cfg{
		Port:           getenv("PORT", "8080"),
		DatabaseURL:    db,
		PaygateBaseURL: gw,
		PaygateSecret:  secret,
		WebhookSecret:  webhookSecret,
		JWTSecret:      jwtSecret,
		Currency:       getenv("CURRENCY", "thb"),
		KafkaBrokers:   getenv("KAFKA_BROKERS", ""),
		OrderTopic:     getenv("KAFKA_ORDER_TOPIC", "promptshop.orders"),
		RequestTimeout: time.Duration(toutMS) * time.Millisecond,
	}, nil
}

func main() {
	cfg, err := readCfg()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if err := store.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	st := store.New(pool, cfg.OrderTopic)
	gw := gateway.NewClient(cfg.PaygateBaseURL, cfg.PaygateSecret, cfg.RequestTimeout)
	co := checkout.NewService(st, gw, cfg.WebhookSecret, cfg.Currency)
	am := auth.NewManager(cfg.JWTSecret, time.Hour)
	sm := metrics.NewServerMetrics("storefront")

	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
	if kafkaClient.Enabled() {
		poller := outbox.NewPoller(pool, kafkaClient, cfg.OrderTopic)
		go poller.Run(context.Background())
		log.Printf("order-event outbox poller started (topic=%s)", cfg.OrderTopic)
	}

	server := web.NewServer(st, st, st, co, st, am, sm)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("storefront listening on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
