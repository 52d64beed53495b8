package feed

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	s "github.com/jlym/minix/internal/server"
)

// NameResolver looks up the display name of an account.
type NameResolver interface {
	DisplayName(ctx context.Context, accountID string) (string, error)
}

// ServerNames reads display names straight from the backend.
type ServerNames struct {
	Server s.Server
}

func (n *ServerNames) DisplayName(ctx context.Context, accountID string) (string, error) {
	resp, err := n.Server.GetAccount(ctx, &s.GetAccountRequest{AccountID: accountID})
	if err != nil {
		return "", errors.Wrapf(err, "getting display name failed, accountID=%s", accountID)
	}
	return resp.Account.DisplayName, nil
}

// resolveNames looks up every distinct id concurrently. A failed or empty
// lookup yields UnknownUser for that id only.
func (a *Assembler) resolveNames(ctx context.Context, accountIDs []string) map[string]string {
	names := make(map[string]string, len(accountIDs))
	var lock sync.Mutex

	var g errgroup.Group
	limit := a.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g.SetLimit(limit)

	seen := map[string]bool{}
	for _, id := range accountIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		id := id
		g.Go(func() error {
			name, err := a.Names.DisplayName(ctx, id)
			if err != nil {
				a.Logger.WarnContext(ctx, "resolving author name failed", "accountID", id, "error", err)
				name = ""
			}
			if name == "" {
				name = UnknownUser
			}

			lock.Lock()
			names[id] = name
			lock.Unlock()
			return nil
		})
	}
	// Lookups never fail the group; errors become UnknownUser above.
	_ = g.Wait()

	return names
}
