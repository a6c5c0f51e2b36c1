//go:build integration

package test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	for _, backend := range refreshBackends {
		t.Run(backend, func(t *testing.T) {
			s := newStack(t, backend, func(c *authcore.Config) {
				c.Refresh.RevokeOnReuse = false
			})
			sess := s.register(t, "race@example.com")

			const racers = 16
			var (
				ready   sync.WaitGroup
				done    sync.WaitGroup
				wins    atomic.Int32
				revoked atomic.Int32
			)
			gate := make(chan struct{})
			errs := make(chan error, racers)
			ready.Add(racers)
			done.Add(racers)
			for range racers {
				go func() {
					defer done.Done()
					ready.Done()
					<-gate
					switch _, err := s.engine.Refresh(context.Background(), sess.RefreshToken); {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, authcore.ErrTokenRevoked):
						revoked.Add(1)
					default:
						errs <- err
					}
				}()
			}
			ready.Wait()
			close(gate)
			done.Wait()
			close(errs)

			for err := range errs {
				t.Errorf("unexpected refresh error: %v", err)
			}
			if wins.Load() != 1 || revoked.Load() != racers-1 {
				t.Fatalf("wins=%d revoked=%d, want 1 and %d", wins.Load(), revoked.Load(), racers-1)
			}
		})
	}
}
