package chain

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// ValidateBech32Address checks the checksum and, when prefix is set, the human readable part.
func ValidateBech32Address(address string, prefix string) error {
	hrp, data, err := bech32.Decode(address)
	if err != nil {
		return fmt.Errorf("failed to decode address: %w", err)
	}
	if prefix != "" && hrp != prefix {
		return fmt.Errorf("address prefix %q does not match %q", hrp, prefix)
	}
	if len(data) == 0 {
		return fmt.Errorf("address %q has no data", address)
	}
	return nil
}
