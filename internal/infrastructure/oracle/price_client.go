package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/repository"
	"solana-wallet-indexer/internal/domain/service"
	"solana-wallet-indexer/internal/infrastructure/config"
	"solana-wallet-indexer/internal/infrastructure/logger"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// PriceClient fetches USD prices from the external price oracle over HTTP.
// The oracle is a shared, rate-limited resource: every call first takes a
// token from the limiter, so the call rate is bounded regardless of how many
// workers are fetching.
type PriceClient struct {
	baseURL string
	http    *http.Client
	limiter ratelimit.Limiter
	rpcLogs repository.RPCLogRepository
	logger  *logger.Logger
}

// NewPriceClient creates a new price oracle client. rpcLogs may be nil, in
// which case upstream calls are not audited.
func NewPriceClient(cfg *config.OracleConfig, rpcLogs repository.RPCLogRepository, logger *logger.Logger) service.PriceOracle {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &PriceClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.New(rps),
		rpcLogs: rpcLogs,
		logger:  logger.WithComponent("price-oracle"),
	}
}

type priceResponse struct {
	PriceUSD float64 `json:"price_usd"`
}

// GetPrice returns the current USD price for a mint. A missing quote (404 or
// any non-200 status) maps to ErrPriceUnavailable; the caller decides what a
// missing price means.
func (c *PriceClient) GetPrice(ctx context.Context, mint string) (float64, error) {
	c.limiter.Take()

	start := time.Now()
	price, err := c.fetch(ctx, mint)
	c.audit(ctx, mint, time.Since(start), err)

	if err != nil {
		return 0, err
	}
	return price, nil
}

func (c *PriceClient) fetch(ctx context.Context, mint string) (float64, error) {
	endpoint := fmt.Sprintf("%s/price/%s", c.baseURL, url.PathEscape(mint))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build price request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Oracle returned no price",
			zap.String("mint", mint),
			zap.Int("status", resp.StatusCode))
		return 0, service.ErrPriceUnavailable
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}

	return body.PriceUSD, nil
}

// audit appends the call to the RPC log, best-effort
func (c *PriceClient) audit(ctx context.Context, mint string, duration time.Duration, callErr error) {
	if c.rpcLogs == nil {
		return
	}

	params, _ := json.Marshal(map[string]string{"mint": mint})
	log := &entity.RPCCallLog{
		Method:     "oracle.getPrice",
		Params:     params,
		Success:    callErr == nil,
		DurationMS: duration.Milliseconds(),
		CalledAt:   time.Now().UTC(),
	}
	if callErr != nil {
		log.Error = callErr.Error()
	}

	if err := c.rpcLogs.Append(ctx, log); err != nil {
		c.logger.Warn("Failed to append rpc log", zap.Error(err))
	}
}
