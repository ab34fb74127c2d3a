package services

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

// IsTxHash reports whether s is a 0x-prefixed 32-byte hex string.
func IsTxHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}

// NormalizeAddress returns the EIP-55 checksummed form of a hex address, or
// "" when s is not an address.
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return ""
	}
	return common.HexToAddress(s).Hex()
}

// validateMetadata checks on-chain references carried by an event and
// normalises them in place.
func validateMetadata(md *domain.EventMetadata) error {
	if md.TxHash != "" {
		md.TxHash = strings.ToLower(strings.TrimSpace(md.TxHash))
		if !IsTxHash(md.TxHash) {
			return fmt.Errorf("%w: txHash must be 0x + 64 hex chars", ErrInvalidMetadata)
		}
	}
	for name, p := range map[string]*string{"contractAddress": &md.ContractAddress, "tokenAddress": &md.TokenAddress} {
		if *p == "" {
			continue
		}
		norm := NormalizeAddress(*p)
		if norm == "" {
			return fmt.Errorf("%w: %s is not an EVM address", ErrInvalidMetadata, name)
		}
		*p = norm
	}
	if md.Amount < 0 {
		return fmt.Errorf("%w: amount must be >= 0", ErrInvalidMetadata)
	}
	return nil
}
