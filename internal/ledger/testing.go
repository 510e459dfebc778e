package ledger

// SeedWallet is a test helper that installs or replaces a wallet in the
// in-memory store.
func SeedWallet(s Store, w Wallet) {
	if mem, ok := s.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.wallets[w.ID] = w
	}
}
