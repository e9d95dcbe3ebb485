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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"deposit-reconciler-go/internal/models"

	"github.com/shopspring/decimal"
)

func Load() (*models.Config, error) {
	pollInterval, err := getEnvDuration("WATCH_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}

	requestTimeout, err := getEnvDuration("CHAIN_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	tolerance, err := getEnvFloat("MATCH_TOLERANCE_PCT", 0.05)
	if err != nil {
		return nil, err
	}
	if tolerance < 0 || tolerance >= 1 {
		return nil, fmt.Errorf("MATCH_TOLERANCE_PCT must be in [0, 1), got %v", tolerance)
	}

	dailyAmount, err := getEnvDecimal("ACCESS_DAILY_AMOUNT", decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "deposits.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Watcher: models.WatcherConfig{
			PollInterval: pollInterval,
			MaxAttempts:  getEnvInt("WATCH_MAX_ATTEMPTS", 60),
			TolerancePct: tolerance,
			SweepSpec:    getEnvString("EXPIRY_SWEEP_SPEC", "@every 1m"),
		},
		Chain: models.ChainConfig{
			ApiUrl:         getEnvString("CHAIN_API_URL", "https://api.bscscan.com/api"),
			ApiKeys:        getEnvList("CHAIN_API_KEYS"),
			SystemAddress:  getEnvString("SYSTEM_ADDRESS", ""),
			RequestTimeout: requestTimeout,
		},
		Catalog: models.CatalogConfig{
			PlansFile:  getEnvString("PLANS_FILE", "plans.yaml"),
			TokensFile: getEnvString("TOKENS_FILE", "tokens.yaml"),
		},
		Access: models.AccessConfig{
			Currency:    getEnvString("ACCESS_CURRENCY", "USDT"),
			DailyAmount: dailyAmount,
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid float for %s: %q (%w)", key, value, err)
		}
		return floatValue, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		decValue, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return decValue, nil
	}
	return defaultValue, nil
}
