package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// ErrTokenNotFound is returned for currencies without a configured token.
var ErrTokenNotFound = errors.New("token not configured")

// TokenInfo describes one supported payment token.
type TokenInfo struct {
	Symbol          string `yaml:"symbol"`
	ContractAddress string `yaml:"contract_address"`
	Decimals        int32  `yaml:"decimals"`
}

type tokensFile struct {
	Tokens []TokenInfo `yaml:"tokens"`
}

// TokenRegistry resolves a currency symbol to its token contract and
// converts between human amounts and on-chain base units. Injected
// into the matcher and chain client - no ambient lookup.
type TokenRegistry struct {
	bySymbol map[string]TokenInfo
}

// LoadTokenRegistry reads and validates the token definitions file.
func LoadTokenRegistry(tokensFile string) (*TokenRegistry, error) {
	tokens, err := readTokensFile(tokensFile)
	if err != nil {
		return nil, err
	}
	return NewTokenRegistry(tokens)
}

// NewTokenRegistry validates the token definitions.
func NewTokenRegistry(tokens []TokenInfo) (*TokenRegistry, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("token registry is empty")
	}
	bySymbol := make(map[string]TokenInfo, len(tokens))
	for i, tok := range tokens {
		if tok.Symbol == "" {
			return nil, fmt.Errorf("token at index %d missing symbol", i)
		}
		if tok.ContractAddress == "" {
			return nil, fmt.Errorf("token %q missing contract_address", tok.Symbol)
		}
		if tok.Decimals < 0 {
			return nil, fmt.Errorf("token %q: decimals cannot be negative", tok.Symbol)
		}
		key := strings.ToUpper(tok.Symbol)
		if _, dup := bySymbol[key]; dup {
			return nil, fmt.Errorf("duplicate token symbol %q", tok.Symbol)
		}
		bySymbol[key] = tok
	}
	return &TokenRegistry{bySymbol: bySymbol}, nil
}

// Token returns the token configured for the currency symbol.
func (r *TokenRegistry) Token(currency string) (TokenInfo, error) {
	tok, ok := r.bySymbol[strings.ToUpper(currency)]
	if !ok {
		return TokenInfo{}, fmt.Errorf("%w: %q", ErrTokenNotFound, currency)
	}
	return tok, nil
}

// ContractFor returns the token contract address for the currency.
func (r *TokenRegistry) ContractFor(currency string) (string, error) {
	tok, err := r.Token(currency)
	if err != nil {
		return "", err
	}
	return tok.ContractAddress, nil
}

// BaseUnits converts a human-readable amount to the token's smallest
// unit, truncating any precision below one base unit.
func (r *TokenRegistry) BaseUnits(currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	tok, err := r.Token(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Shift(tok.Decimals).Truncate(0), nil
}

// FromBaseUnits converts a smallest-unit value back to a human amount.
func (r *TokenRegistry) FromBaseUnits(currency string, value decimal.Decimal) (decimal.Decimal, error) {
	tok, err := r.Token(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return value.Shift(-tok.Decimals), nil
}

func readTokensFile(path string) ([]TokenInfo, error) {
	var tokensPath string
	if filepath.IsAbs(path) {
		tokensPath = path
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		tokensPath = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(tokensPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}

	var file tokensFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return file.Tokens, nil
}
