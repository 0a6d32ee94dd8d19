package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource hands out the next account-abstraction nonce for a smart
// account. The entry point's own nonce view is the deployment-specific
// source of truth; this in-memory counter is a narrow stand-in that assumes
// one process drives all submissions for a given sender, matching spec.md
// §5's "trades for one agent are serialized within a tick ... their
// underlying smart account holds a monotonic nonce."
type NonceSource interface {
	NextNonce(ctx context.Context, sender common.Address) (int64, error)
}

// InMemoryNonceSource tracks one monotonic counter per sender address. It
// does not survive a process restart; a production deployment would seed
// each counter from the entry point's getNonce(sender) view on first use.
type InMemoryNonceSource struct {
	mu     sync.Mutex
	nonces map[common.Address]int64
}

// NewInMemoryNonceSource constructs an empty nonce source.
func NewInMemoryNonceSource() *InMemoryNonceSource {
	return &InMemoryNonceSource{nonces: make(map[common.Address]int64)}
}

// NextNonce returns sender's next nonce, starting at 0 on first use.
func (s *InMemoryNonceSource) NextNonce(ctx context.Context, sender common.Address) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nonces[sender]
	s.nonces[sender] = n + 1
	return n, nil
}
