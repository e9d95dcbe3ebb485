/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"deposit-reconciler-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// ClientConfig configures the explorer-API client.
type ClientConfig struct {
	BaseURL string
	APIKeys []string // rotated round-robin across requests
	Timeout time.Duration
}

// Client queries a block-explorer-style API for token-transfer events.
// It satisfies EventSource; everything above it depends on the
// interface, not on this implementation.
type Client struct {
	httpClient http.Client
	baseURL    string

	mutex   sync.Mutex
	apiKeys []string
	nextKey int
}

var _ EventSource = (*Client)(nil)

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("explorer base URL cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient, err := createCustomHttpClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		apiKeys:    cfg.APIKeys,
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// rotateKey hands out API keys round-robin so one key's rate limit
// does not throttle every watch task.
func (c *Client) rotateKey() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.apiKeys) == 0 {
		return ""
	}
	key := c.apiKeys[c.nextKey]
	c.nextKey = (c.nextKey + 1) % len(c.apiKeys)
	return key
}

// transferListResponse is the explorer's account/tokentx envelope.
type transferListResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  []transferEntry `json:"result"`
}

type transferEntry struct {
	From            string `json:"from"`
	To              string `json:"to"`
	ContractAddress string `json:"contractAddress"`
	Value           string `json:"value"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	BlockNumber     string `json:"blockNumber"`
}

func (c *Client) TransferEvents(ctx context.Context, contractAddress, counterparty string, since time.Time) ([]models.TransferEvent, error) {
	query := url.Values{}
	query.Set("module", "account")
	query.Set("action", "tokentx")
	query.Set("contractaddress", contractAddress)
	query.Set("address", counterparty)
	query.Set("sort", "asc")
	if key := c.rotateKey(); key != "" {
		query.Set("apikey", key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build transfer query: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: explorer returned HTTP %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var payload transferListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: malformed explorer response: %v", ErrUpstreamUnavailable, err)
	}

	// The explorer reports an empty result set as status 0; only rate
	// limits and real errors are transient failures.
	if payload.Status != "1" {
		if strings.Contains(strings.ToLower(payload.Message), "no transactions found") {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: explorer status %s: %s", ErrUpstreamUnavailable, payload.Status, payload.Message)
	}

	events := make([]models.TransferEvent, 0, len(payload.Result))
	for _, entry := range payload.Result {
		event, err := parseTransferEntry(entry)
		if err != nil {
			zap.L().Warn("Skipping malformed transfer entry",
				zap.String("tx_hash", entry.Hash),
				zap.Error(err))
			continue
		}
		if event.Timestamp.Before(since) {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func parseTransferEntry(entry transferEntry) (models.TransferEvent, error) {
	value, err := decimal.NewFromString(entry.Value)
	if err != nil {
		return models.TransferEvent{}, fmt.Errorf("invalid value %q: %w", entry.Value, err)
	}
	unix, err := strconv.ParseInt(entry.TimeStamp, 10, 64)
	if err != nil {
		return models.TransferEvent{}, fmt.Errorf("invalid timestamp %q: %w", entry.TimeStamp, err)
	}
	block, err := strconv.ParseInt(entry.BlockNumber, 10, 64)
	if err != nil {
		return models.TransferEvent{}, fmt.Errorf("invalid block number %q: %w", entry.BlockNumber, err)
	}

	return models.TransferEvent{
		From:            entry.From,
		To:              entry.To,
		ContractAddress: entry.ContractAddress,
		Value:           value,
		Timestamp:       time.Unix(unix, 0).UTC(),
		TxHash:          entry.Hash,
		BlockNumber:     block,
	}, nil
}
