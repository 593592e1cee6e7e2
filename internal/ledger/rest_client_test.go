package ledger

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	rc := &RestClient{
		client:  client,
		apiKey:  "test_api_key",
		logger:  logger,
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return rc, server
}

func TestBalance(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/accounts/steve/balance", r.URL.Path)
			assert.Equal(t, "test_api_key", r.Header.Get("X-API-KEY"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"actor_id": "steve", "balance": "1234.56"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		balance, err := rc.Balance(context.Background(), "steve")

		// Assert
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("1234.56")), "balance %s", balance)
	})

	t.Run("UnparseableBalance", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"actor_id": "steve", "balance": "lots"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.Balance(context.Background(), "steve")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unparseable balance")
	})
}

func TestWithdraw(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		var gotBody string
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/accounts/steve/withdraw", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			body, _ := io.ReadAll(r.Body)
			gotBody = string(body)
			w.WriteHeader(http.StatusOK)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		// Act
		err := rc.Withdraw(context.Background(), "steve", decimal.RequireFromString("100"))

		// Assert
		assert.NoError(t, err)
		assert.JSONEq(t, `{"amount": "100"}`, gotBody)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error": "insufficient funds"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		err := rc.Withdraw(context.Background(), "steve", decimal.RequireFromString("100"))

		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("ProviderError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error": "bad api key"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		err := rc.Withdraw(context.Background(), "steve", decimal.RequireFromString("100"))

		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrInsufficientFunds)
		assert.Contains(t, err.Error(), "failed to withdraw")
	})
}

func TestDeposit(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/accounts/alex/deposit", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		err := rc.Deposit(context.Background(), "alex", decimal.RequireFromString("42.50"))

		assert.NoError(t, err)
	})
}
