package ledger

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"skymarket/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RestClient is a client for the economy provider's REST API.
// It implements the Ledger interface.
type RestClient struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RestClient implements the interface
var _ Ledger = (*RestClient)(nil)

// NewRestClient creates a new economy provider REST API client.
func NewRestClient(cfg *config.Ledger, logger *zap.Logger) *RestClient {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger,
		limiter: limiter,
	}
}

// balanceResponse is the provider's representation of an account balance.
type balanceResponse struct {
	ActorID string `json:"actor_id"`
	Balance string `json:"balance"`
}

// transferRequest is the body for deposit and withdraw calls.
type transferRequest struct {
	Amount string `json:"amount"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// A payment-required response is a definitive business answer,
		// never a transient failure. Surface it without retrying.
		if resp != nil && resp.StatusCode() == http.StatusPaymentRequired {
			return nil, ErrInsufficientFunds
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// Balance fetches the actor's current balance from the provider.
func (c *RestClient) Balance(ctx context.Context, actorID string) (decimal.Decimal, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.apiKey).
		SetResult(&balanceResponse{})

	resp, err := c.doRequest(ctx, "GET", "/accounts/"+actorID+"/balance", req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance for %s: %w", actorID, err)
	}

	result := resp.Result().(*balanceResponse)
	balance, err := decimal.NewFromString(result.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("provider returned unparseable balance %q: %w", result.Balance, err)
	}
	return balance, nil
}

// Withdraw removes amount from the actor's balance. A 402 from the provider
// maps to ErrInsufficientFunds.
func (c *RestClient) Withdraw(ctx context.Context, actorID string, amount decimal.Decimal) error {
	return c.transfer(ctx, actorID, "withdraw", amount)
}

// Deposit adds amount to the actor's balance.
func (c *RestClient) Deposit(ctx context.Context, actorID string, amount decimal.Decimal) error {
	return c.transfer(ctx, actorID, "deposit", amount)
}

func (c *RestClient) transfer(ctx context.Context, actorID, op string, amount decimal.Decimal) error {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(&transferRequest{Amount: amount.String()})

	_, err := c.doRequest(ctx, "POST", "/accounts/"+actorID+"/"+op, req)
	if err != nil {
		c.logger.Error("Ledger transfer failed",
			zap.String("actor", actorID),
			zap.String("op", op),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to %s for %s: %w", op, actorID, err)
	}

	c.logger.Info("Ledger transfer complete",
		zap.String("actor", actorID),
		zap.String("op", op),
		zap.String("amount", amount.String()),
	)
	return nil
}
