package rpc

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"prover-api/internal/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// contractCaller is the subset of ethclient used by this package.
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client wraps a go-ethereum contract caller with retries, per-call timeouts
// and client-side pacing.
type Client struct {
	caller contractCaller
	eth    *ethclient.Client

	attempts int
	delay    time.Duration
	timeout  time.Duration
	limiter  *rate.Limiter
}

// Dial establishes a new RPC connection with retry support. The retry
// configuration controls the number of attempts and the delay between them,
// and is reused for every subsequent call.
func Dial(ctx context.Context, cfg *config.Config) (*Client, error) {
	attempt := 0
	cli, err := backoff.RetryNotifyWithData(func() (*ethclient.Client, error) {
		attempt++
		return ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	}, retryPolicy(ctx, cfg.Retry.Attempts, cfg.RetryDelay()), func(err error, _ time.Duration) {
		logrus.Warnf("RPC dial failed (attempt %d/%d): %v", attempt, cfg.Retry.Attempts, err)
	})
	if err != nil {
		return nil, err
	}

	c := newClient(cli, cfg.Retry.Attempts, cfg.RetryDelay(), cfg.RPCTimeout(), cfg.Chain.CallsPerSecond)
	c.eth = cli
	return c, nil
}

func newClient(caller contractCaller, attempts int, delay, timeout time.Duration, callsPerSecond float64) *Client {
	if attempts < 1 {
		attempts = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if callsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(callsPerSecond), 1)
	}
	return &Client{
		caller:   caller,
		attempts: attempts,
		delay:    delay,
		timeout:  timeout,
		limiter:  limiter,
	}
}

// Call performs an eth_call against the latest block. Transport failures are
// retried; reverts are returned immediately.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(func() ([]byte, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		out, err := c.caller.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: data}, nil)
		if err != nil {
			if IsRevert(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return out, nil
	}, retryPolicy(ctx, c.attempts, c.delay), func(err error, _ time.Duration) {
		logrus.Warnf("eth_call to %s failed (attempt %d/%d): %v", to.Hex(), attempt, c.attempts, err)
	})
}

func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// IsRevert reports whether err is an execution revert returned by the node
// rather than a transport failure.
func IsRevert(err error) bool {
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}

func retryPolicy(ctx context.Context, attempts int, delay time.Duration) backoff.BackOff {
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
}
