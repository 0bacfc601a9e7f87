package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	handshakeOK       = 0
	handshakeOKLabel  = "HSHK_OK"
	handshakeBadAuth  = 1401
	handshakeBadLabel = "HSHK_ERR_UA_AUTH"
	unitPrice         = 0.03
)

type handshake struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

type sendRequest struct {
	Text         string            `json:"text" binding:"required"`
	Type         int               `json:"type"`
	Sender       string            `json:"sender" binding:"required"`
	Destinations []json.RawMessage `json:"destinations" binding:"required"`
	Schedule     string            `json:"schedule"`
}

type destinationReport struct {
	ID     string `json:"id"`
	To     string `json:"to"`
	Status string `json:"status"`
}

type deliveryItem struct {
	MessageID string `json:"message_id"`
	Phone     string `json:"phone"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// MockGateway answers the handshake protocol of the SMS gateway and can
// post delivery webhooks back to the API.
type MockGateway struct {
	mu           sync.Mutex
	apiKey       string
	acceptRate   float64
	balance      float64
	callbackURL  string
	callbackWait time.Duration
	rng          *rand.Rand
	http         *http.Client
}

func NewMockGateway(apiKey string, acceptRate, balance float64, callbackURL string, callbackWait time.Duration) *MockGateway {
	return &MockGateway{
		apiKey:       apiKey,
		acceptRate:   acceptRate,
		balance:      balance,
		callbackURL:  callbackURL,
		callbackWait: callbackWait,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *MockGateway) authorized(c *gin.Context) bool {
	if m.apiKey == "" {
		return true
	}
	return c.GetHeader("Authorization") == "key "+m.apiKey
}

func (m *MockGateway) accept() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < m.acceptRate
}

// destinationNumber reads either a plain number or a personalized {number, values} entry.
func destinationNumber(raw json.RawMessage) string {
	var number string
	if err := json.Unmarshal(raw, &number); err == nil {
		return number
	}
	var personalized struct {
		Number string `json:"number"`
	}
	if err := json.Unmarshal(raw, &personalized); err == nil {
		return personalized.Number
	}
	return ""
}

func segments(text string) int {
	limit := 160
	for _, r := range text {
		if r > 127 {
			limit = 70
			break
		}
	}
	n := len([]rune(text))
	return (n + limit - 1) / limit
}

func (m *MockGateway) Send(c *gin.Context) {
	if !m.authorized(c) {
		c.JSON(http.StatusOK, gin.H{"handshake": handshake{ID: handshakeBadAuth, Label: handshakeBadLabel}})
		return
	}

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	batch := uuid.New().String()
	reports := make([]destinationReport, 0, len(req.Destinations))
	for _, raw := range req.Destinations {
		r := destinationReport{ID: uuid.New().String()[:12], To: destinationNumber(raw), Status: "sent"}
		if r.To == "" || !m.accept() {
			r.Status = "rejected"
		}
		reports = append(reports, r)
	}

	m.mu.Lock()
	m.balance -= float64(segments(req.Text)*len(reports)) * unitPrice
	m.mu.Unlock()

	log.Info().
		Str("batch", batch).
		Str("sender", req.Sender).
		Int("destinations", len(reports)).
		Str("schedule", req.Schedule).
		Msg("SMS batch accepted")

	if m.callbackURL != "" {
		go m.report(reports)
	}

	c.JSON(http.StatusOK, gin.H{
		"handshake": handshake{ID: handshakeOK, Label: handshakeOKLabel},
		"data":      gin.H{"batch": batch, "destinations": reports},
	})
}

func (m *MockGateway) Balance(c *gin.Context) {
	if !m.authorized(c) {
		c.JSON(http.StatusOK, gin.H{"handshake": handshake{ID: handshakeBadAuth, Label: handshakeBadLabel}})
		return
	}
	m.mu.Lock()
	balance := m.balance
	m.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"handshake": handshake{ID: handshakeOK, Label: handshakeOKLabel},
		"data":      gin.H{"balance": balance, "currency": "GHS"},
	})
}

func (m *MockGateway) UpdateConfig(c *gin.Context) {
	var config struct {
		AcceptRate *float64 `json:"accept_rate"`
		Balance    *float64 `json:"balance"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	m.mu.Lock()
	if config.AcceptRate != nil && *config.AcceptRate >= 0 && *config.AcceptRate <= 1.0 {
		m.acceptRate = *config.AcceptRate
		log.Info().Float64("rate", *config.AcceptRate).Msg("Updated accept rate")
	}
	if config.Balance != nil {
		m.balance = *config.Balance
	}
	rate, balance := m.acceptRate, m.balance
	m.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"accept_rate": rate, "balance": balance})
}

// report posts a delivery webhook for the accepted destinations after a delay.
func (m *MockGateway) report(reports []destinationReport) {
	time.Sleep(m.callbackWait)

	items := make([]deliveryItem, 0, len(reports))
	for _, r := range reports {
		if r.Status != "sent" {
			continue
		}
		item := deliveryItem{MessageID: r.ID, Phone: r.To, Status: "delivered", Timestamp: time.Now().Format("2006-01-02 15:04:05")}
		if !m.accept() {
			item.Status = "failed"
			item.Error = "absent subscriber"
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return
	}

	body, err := json.Marshal(gin.H{
		"handshake": handshake{ID: handshakeOK, Label: handshakeOKLabel},
		"data":      items,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode delivery webhook")
		return
	}
	resp, err := m.http.Post(m.callbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Str("url", m.callbackURL).Msg("Delivery webhook failed")
		return
	}
	defer resp.Body.Close()
	log.Info().Int("items", len(items)).Int("status", resp.StatusCode).Msg("Delivery webhook posted")
}

func SetupRouter(gw *MockGateway) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	v5 := router.Group("/v5")
	{
		v5.POST("/message/sms/send", gw.Send)
		v5.GET("/account/balance", gw.Balance)
	}
	router.PUT("/config", gw.UpdateConfig)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})
	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	apiKey := getEnv("GATEWAY_API_KEY", "")
	acceptRate := getEnvFloat("ACCEPT_RATE", 1)
	balance := getEnvFloat("BALANCE", 100)
	callbackURL := getEnv("CALLBACK_URL", "")
	callbackWait := getEnvDuration("CALLBACK_DELAY", 2*time.Second)

	log.Info().
		Str("port", port).
		Float64("accept_rate", acceptRate).
		Str("callback_url", callbackURL).
		Msg("Starting mock SMS gateway")

	router := SetupRouter(NewMockGateway(apiKey, acceptRate, balance, callbackURL, callbackWait))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
