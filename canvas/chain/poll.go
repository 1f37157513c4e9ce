package chain

import (
	"context"
	"errors"
	"time"
)

// DefaultPollInterval matches the browser's receipt loop.
const DefaultPollInterval = 3 * time.Second

// WaitForPayment checks the transaction every interval until it is confirmed or
// failed. Query errors are logged and retried; only an invalid hash or the
// context ends the loop early. Callers bound the wait through ctx.
func WaitForPayment(ctx context.Context, v Verifier, txHash string, interval time.Duration) (*Payment, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
		payment, err := v.Check(ctx, txHash)
		switch {
		case errors.Is(err, ErrInvalidTxHash):
			return nil, err
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			Logger.Warn().
				Err(err).
				Str("network", v.Network().ID).
				Str("tx_hash", txHash).
				Int("attempt", attempt).
				Msg("Payment query failed, retrying")
		case payment.Terminal():
			Logger.Info().
				Str("network", payment.Network).
				Str("tx_hash", payment.TxHash).
				Str("status", string(payment.Status)).
				Int("attempts", attempt).
				Msg("Payment reached terminal status")
			return payment, nil
		}

		timer.Reset(interval)
	}
}
