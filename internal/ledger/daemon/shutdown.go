package daemon

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	ledgersync "github.com/vertexads/ledger/internal/ledger/sync"
)

// Pusher is the part of a sync engine needed to flush local state.
type Pusher interface {
	Push(ctx context.Context) (ledgersync.Result, error)
}

// PushOnShutdown starts a push in the background and returns a channel
// that receives its outcome once. The push waits for the connection guard
// like any other flow and is bounded only by the engine's push timeout.
// Failures are logged; the caller decides how long to wait with WaitGrace.
func PushOnShutdown(p Pusher, logger logrus.FieldLogger) <-chan error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		res, err := p.Push(context.Background())
		if err != nil {
			logger.WithError(err).Warn("Push on shutdown failed")
			done <- err
			return
		}
		logger.WithField("transactions", res.Transactions.Applied).Info("Pushed on shutdown")
		done <- nil
	}()
	return done
}

// WaitGrace waits at most grace for done. It reports whether the push
// finished in time; a non-positive grace does not wait at all.
func WaitGrace(done <-chan error, grace time.Duration) bool {
	if grace <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
