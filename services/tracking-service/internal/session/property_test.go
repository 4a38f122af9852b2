package session

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/infrastructure/provider"
)

func checkInvariant(t *rapid.T, s domain.WalletSession) {
	if (s.Account != "") != (s.State == domain.StateConnected) {
		t.Fatalf("account/state invariant broken: %+v", s)
	}
}

// Any interleaving of connects, disconnects and provider notifications
// keeps Account set exactly when the session is Connected, both in
// snapshots and in every delivered notification.
func TestSessionInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := provider.NewMemory(1, accountA)
		m := NewManager(p, Config{ConnectTimeout: time.Second}, nil, nil)
		ctx := context.Background()

		notified := make(chan domain.WalletSession, 1024)
		m.Subscribe(func(s domain.WalletSession) { notified <- s })

		steps := rapid.IntRange(1, 25).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0, 1:
				_, _ = m.Connect(ctx)
			case 2:
				m.Disconnect(ctx)
			case 3:
				p.SetAccounts(accountB)
			case 4:
				p.SetAccounts()
			case 5:
				if rapid.Bool().Draw(t, "reject") {
					p.SetRequestError(domain.ErrProviderRejected)
				} else {
					p.SetRequestError(nil)
				}
			case 6:
				p.SetAccounts(rapid.SampledFrom([]string{"", "  "}).Draw(t, "blank"))
			}
			checkInvariant(t, m.CurrentSession())
		}

		m.Close(ctx)
		close(notified)
		for s := range notified {
			checkInvariant(t, s)
		}
	})
}
