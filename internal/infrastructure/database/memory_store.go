package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"solana-wallet-indexer/internal/domain/entity"
	"solana-wallet-indexer/internal/domain/service"
)

// MemoryStore is an in-memory implementation of the repository interfaces for
// tests and local development. It mirrors the semantics of the Postgres and
// Neo4J backends: atomic transaction+transfer inserts, cascade on delete,
// expiry-as-miss cache reads, and per-edge additive relationship updates.
type MemoryStore struct {
	mu    sync.RWMutex
	score service.ScoreFunc

	wallets        map[string]*entity.Wallet
	transactions   map[string]*entity.Transaction
	solTransfers   map[string][]*entity.SolTransfer
	tokenTransfers map[string][]*entity.TokenTransfer
	tokens         map[string]*entity.Token
	relationships  map[string]*entity.WalletRelationship
	cache          map[string]*entity.AnalysisCacheEntry
	patterns       []*entity.DetectedPattern
	rpcLogs        []*entity.RPCCallLog
	stats          map[string]*entity.WalletStats
	patternSeq     int64
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(score service.ScoreFunc) *MemoryStore {
	if score == nil {
		score = service.DefaultRelationshipScore
	}
	return &MemoryStore{
		score:          score,
		wallets:        make(map[string]*entity.Wallet),
		transactions:   make(map[string]*entity.Transaction),
		solTransfers:   make(map[string][]*entity.SolTransfer),
		tokenTransfers: make(map[string][]*entity.TokenTransfer),
		tokens:         make(map[string]*entity.Token),
		relationships:  make(map[string]*entity.WalletRelationship),
		cache:          make(map[string]*entity.AnalysisCacheEntry),
		stats:          make(map[string]*entity.WalletStats),
	}
}

// UpsertWallet creates or updates a wallet
func (s *MemoryStore) UpsertWallet(ctx context.Context, wallet *entity.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.wallets[wallet.Address]
	if !ok {
		cp := *wallet
		s.wallets[wallet.Address] = &cp
		return nil
	}

	if wallet.Balance != nil {
		balance := *wallet.Balance
		existing.Balance = &balance
	}
	if wallet.LastUpdated.After(existing.LastUpdated) {
		existing.LastUpdated = wallet.LastUpdated
	}
	for k, v := range wallet.Metadata {
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]interface{})
		}
		existing.Metadata[k] = v
	}
	return nil
}

// GetWallet retrieves a wallet by address
func (s *MemoryStore) GetWallet(ctx context.Context, address string) (*entity.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet, ok := s.wallets[address]
	if !ok {
		return nil, fmt.Errorf("wallet not found: %s", address)
	}
	cp := *wallet
	return &cp, nil
}

// GetTopWalletsByBalance retrieves wallets ranked by balance; wallets with no
// known balance rank as zero
func (s *MemoryStore) GetTopWalletsByBalance(ctx context.Context, limit int) ([]*entity.Wallet, error) {
	balance := func(w *entity.Wallet) int64 {
		if w.Balance == nil {
			return 0
		}
		return *w.Balance
	}
	return s.sortedWallets(limit, func(a, b *entity.Wallet) bool { return balance(a) > balance(b) }, nil)
}

// GetTopWalletsByRisk retrieves wallets ranked by risk score
func (s *MemoryStore) GetTopWalletsByRisk(ctx context.Context, limit int) ([]*entity.Wallet, error) {
	return s.sortedWallets(limit,
		func(a, b *entity.Wallet) bool { return *a.RiskScore > *b.RiskScore },
		func(w *entity.Wallet) bool { return w.RiskScore != nil })
}

func (s *MemoryStore) sortedWallets(limit int, less func(a, b *entity.Wallet) bool, keep func(*entity.Wallet) bool) ([]*entity.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wallets []*entity.Wallet
	for _, w := range s.wallets {
		if keep != nil && !keep(w) {
			continue
		}
		cp := *w
		wallets = append(wallets, &cp)
	}
	sort.Slice(wallets, func(i, j int) bool { return less(wallets[i], wallets[j]) })
	if limit > 0 && len(wallets) > limit {
		wallets = wallets[:limit]
	}
	return wallets, nil
}

// InsertTransaction inserts a transaction with its transfers as one unit
func (s *MemoryStore) InsertTransaction(ctx context.Context, tx *entity.Transaction, solTransfers []*entity.SolTransfer, tokenTransfers []*entity.TokenTransfer) error {
	if tx == nil || tx.Signature == "" {
		return fmt.Errorf("transaction signature is required")
	}
	for _, t := range solTransfers {
		if t.Signature != tx.Signature {
			return fmt.Errorf("sol transfer references foreign transaction: %s", t.Signature)
		}
	}
	for _, t := range tokenTransfers {
		if t.Signature != tx.Signature {
			return fmt.Errorf("token transfer references foreign transaction: %s", t.Signature)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.transactions[tx.Signature]; ok {
		// Late status/error correction only; the row is otherwise immutable.
		existing.Status = tx.Status
		existing.Error = tx.Error
		return nil
	}

	txCp := *tx
	s.transactions[tx.Signature] = &txCp
	for _, t := range solTransfers {
		cp := *t
		s.solTransfers[tx.Signature] = append(s.solTransfers[tx.Signature], &cp)
	}
	for _, t := range tokenTransfers {
		cp := *t
		s.tokenTransfers[tx.Signature] = append(s.tokenTransfers[tx.Signature], &cp)
	}
	return nil
}

// GetTransaction retrieves a transaction by signature
func (s *MemoryStore) GetTransaction(ctx context.Context, signature string) (*entity.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[signature]
	if !ok {
		return nil, fmt.Errorf("transaction not found: %s", signature)
	}
	cp := *tx
	return &cp, nil
}

// DeleteTransaction deletes a transaction and cascades to its transfers
func (s *MemoryStore) DeleteTransaction(ctx context.Context, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[signature]; !ok {
		return fmt.Errorf("transaction not found: %s", signature)
	}
	delete(s.transactions, signature)
	delete(s.solTransfers, signature)
	delete(s.tokenTransfers, signature)
	return nil
}

// GetRecentTransactions retrieves transactions in block-time descending order
func (s *MemoryStore) GetRecentTransactions(ctx context.Context, limit int) ([]*entity.Transaction, error) {
	return s.sortedTransactions(limit, nil)
}

// GetTransactionsByAddress retrieves transactions mentioning the address
func (s *MemoryStore) GetTransactionsByAddress(ctx context.Context, address string, limit int) ([]*entity.Transaction, error) {
	return s.sortedTransactions(limit, func(tx *entity.Transaction) bool {
		for _, a := range tx.Accounts {
			if a == address {
				return true
			}
		}
		return false
	})
}

func (s *MemoryStore) sortedTransactions(limit int, keep func(*entity.Transaction) bool) ([]*entity.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var txs []*entity.Transaction
	for _, tx := range s.transactions {
		if keep != nil && !keep(tx) {
			continue
		}
		cp := *tx
		txs = append(txs, &cp)
	}
	sort.Slice(txs, func(i, j int) bool {
		ti, tj := txs[i].BlockTime, txs[j].BlockTime
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		return ti.After(*tj)
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// GetTransfers retrieves the transfers of a transaction
func (s *MemoryStore) GetTransfers(ctx context.Context, signature string) ([]*entity.SolTransfer, []*entity.TokenTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sol []*entity.SolTransfer
	for _, t := range s.solTransfers[signature] {
		cp := *t
		sol = append(sol, &cp)
	}
	var tok []*entity.TokenTransfer
	for _, t := range s.tokenTransfers[signature] {
		cp := *t
		tok = append(tok, &cp)
	}
	return sol, tok, nil
}

// ListUnpricedSwaps retrieves swap rows missing valuation, most recent first
func (s *MemoryStore) ListUnpricedSwaps(ctx context.Context, limit int) ([]*entity.TokenTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var swaps []*entity.TokenTransfer
	for _, transfers := range s.tokenTransfers {
		for _, t := range transfers {
			if t.IsSwap && !t.Enriched() {
				cp := *t
				swaps = append(swaps, &cp)
			}
		}
	}
	sort.Slice(swaps, func(i, j int) bool { return swaps[i].BlockTime.After(swaps[j].BlockTime) })
	if limit > 0 && len(swaps) > limit {
		swaps = swaps[:limit]
	}
	return swaps, nil
}

// CountUnpricedSwaps counts swap rows missing valuation
func (s *MemoryStore) CountUnpricedSwaps(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, transfers := range s.tokenTransfers {
		for _, t := range transfers {
			if t.IsSwap && !t.Enriched() {
				count++
			}
		}
	}
	return count, nil
}

// UpdateSwapValuation writes valuation fields back to one swap row
func (s *MemoryStore) UpdateSwapValuation(ctx context.Context, v *entity.SwapValuation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokenTransfers[v.Signature] {
		if t.TransferIndex == v.TransferIndex {
			priceIn, priceOut := v.PriceUSDIn, v.PriceUSDOut
			valueIn, valueOut, pnl := v.ValueUSDIn, v.ValueUSDOut, v.PnlUSD
			t.PriceUSDIn, t.PriceUSDOut = &priceIn, &priceOut
			t.ValueUSDIn, t.ValueUSDOut, t.PnlUSD = &valueIn, &valueOut, &pnl
			return nil
		}
	}
	return fmt.Errorf("swap row not found: %s[%d]", v.Signature, v.TransferIndex)
}

// UpsertToken creates or updates token metadata
func (s *MemoryStore) UpsertToken(ctx context.Context, token *entity.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tokens[token.Mint]
	if !ok {
		cp := *token
		s.tokens[token.Mint] = &cp
		return nil
	}
	existing.Decimals = token.Decimals
	existing.Supply = token.Supply
	existing.LiquidityUSD = token.LiquidityUSD
	existing.HolderCount = token.HolderCount
	existing.IsSuspicious = existing.IsSuspicious || token.IsSuspicious
	existing.IsNFT = existing.IsNFT || token.IsNFT
	if token.Symbol != "" {
		existing.Symbol = token.Symbol
	}
	if token.Name != "" {
		existing.Name = token.Name
	}
	if token.LastUpdated.After(existing.LastUpdated) {
		existing.LastUpdated = token.LastUpdated
	}
	return nil
}

// GetToken retrieves a token by mint
func (s *MemoryStore) GetToken(ctx context.Context, mint string) (*entity.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[mint]
	if !ok {
		return nil, fmt.Errorf("token not found: %s", mint)
	}
	cp := *token
	return &cp, nil
}

// UpsertRelationship applies an additive delta to an edge under the store lock
func (s *MemoryStore) UpsertRelationship(ctx context.Context, from, to string, delta *entity.RelationshipDelta) (*entity.WalletRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := from + "->" + to
	rel, ok := s.relationships[key]
	if !ok {
		rel = &entity.WalletRelationship{
			FromAddress:      from,
			ToAddress:        to,
			FirstInteraction: delta.Timestamp,
			LastInteraction:  delta.Timestamp,
		}
		s.relationships[key] = rel
	}

	rel.TotalSol += delta.Lamports
	rel.TotalTransactions += delta.Transactions
	if delta.Timestamp.Before(rel.FirstInteraction) {
		rel.FirstInteraction = delta.Timestamp
	}
	if delta.Timestamp.After(rel.LastInteraction) {
		rel.LastInteraction = delta.Timestamp
	}
	rel.Strength = s.score(rel.TotalTransactions, rel.TotalSol, rel.LastInteraction, time.Now())

	cp := *rel
	return &cp, nil
}

// GetRelationship retrieves the edge for an ordered pair
func (s *MemoryStore) GetRelationship(ctx context.Context, from, to string) (*entity.WalletRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel, ok := s.relationships[from+"->"+to]
	if !ok {
		return nil, fmt.Errorf("relationship not found: %s -> %s", from, to)
	}
	cp := *rel
	return &cp, nil
}

// GetTopRelationships retrieves a wallet's outgoing edges ranked by strength
func (s *MemoryStore) GetTopRelationships(ctx context.Context, address string, limit int) ([]*entity.WalletRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rels []*entity.WalletRelationship
	for _, rel := range s.relationships {
		if rel.FromAddress == address {
			cp := *rel
			rels = append(rels, &cp)
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].Strength > rels[j].Strength })
	if limit > 0 && len(rels) > limit {
		rels = rels[:limit]
	}
	return rels, nil
}

// RelationshipCount returns the number of edges in the graph
func (s *MemoryStore) RelationshipCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.relationships)
}

// Get retrieves a live cache entry; expired entries behave as absent
func (s *MemoryStore) Get(ctx context.Context, key string) (*entity.AnalysisCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok || entry.Expired(time.Now()) {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

// Put upserts a cache entry
func (s *MemoryStore) Put(ctx context.Context, key, cacheType string, result json.RawMessage, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.cache[key] = &entity.AnalysisCacheEntry{
		CacheKey:  key,
		CacheType: cacheType,
		Result:    append(json.RawMessage(nil), result...),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

// SweepExpired deletes all expired cache entries
func (s *MemoryStore) SweepExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var removed int64
	for key, entry := range s.cache {
		if entry.Expired(now) {
			delete(s.cache, key)
			removed++
		}
	}
	return removed, nil
}

// AppendPattern records a detected pattern
func (s *MemoryStore) AppendPattern(ctx context.Context, pattern *entity.DetectedPattern) error {
	if pattern.Confidence < 0 || pattern.Confidence > 1 {
		return fmt.Errorf("pattern confidence out of range: %f", pattern.Confidence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.patternSeq++
	cp := *pattern
	cp.ID = s.patternSeq
	pattern.ID = s.patternSeq
	s.patterns = append(s.patterns, &cp)
	return nil
}

// GetPatternsByWallet retrieves patterns for a wallet, highest confidence first
func (s *MemoryStore) GetPatternsByWallet(ctx context.Context, address string) ([]*entity.DetectedPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var patterns []*entity.DetectedPattern
	for _, p := range s.patterns {
		if p.WalletAddress == address {
			cp := *p
			patterns = append(patterns, &cp)
		}
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Confidence > patterns[j].Confidence })
	return patterns, nil
}

// GetTopPatterns retrieves patterns of a type ranked by confidence
func (s *MemoryStore) GetTopPatterns(ctx context.Context, patternType string, limit int) ([]*entity.DetectedPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var patterns []*entity.DetectedPattern
	for _, p := range s.patterns {
		if p.PatternType == patternType {
			cp := *p
			patterns = append(patterns, &cp)
		}
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Confidence > patterns[j].Confidence })
	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns, nil
}

// Append records one upstream call
func (s *MemoryStore) Append(ctx context.Context, log *entity.RPCCallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *log
	cp.ID = int64(len(s.rpcLogs) + 1)
	s.rpcLogs = append(s.rpcLogs, &cp)
	return nil
}

// RPCLogs returns a copy of the recorded upstream calls
func (s *MemoryStore) RPCLogs() []*entity.RPCCallLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]*entity.RPCCallLog, 0, len(s.rpcLogs))
	for _, l := range s.rpcLogs {
		cp := *l
		logs = append(logs, &cp)
	}
	return logs
}

// Refresh recomputes the wallet stats snapshot by folding over all transfers.
// Like the materialized view it replaces, the result is a point-in-time
// snapshot; reads between refreshes may be stale.
func (s *MemoryStore) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]*entity.WalletStats)
	counterparties := make(map[string]map[string]struct{})
	mints := make(map[string]map[string]struct{})

	get := func(address string) *entity.WalletStats {
		st, ok := stats[address]
		if !ok {
			st = &entity.WalletStats{Address: address}
			stats[address] = st
			counterparties[address] = make(map[string]struct{})
			mints[address] = make(map[string]struct{})
		}
		return st
	}

	for _, transfers := range s.solTransfers {
		for _, t := range transfers {
			from, to := get(t.FromAddress), get(t.ToAddress)
			from.SolTransfersSent++
			from.LamportsSent += t.Lamports
			to.SolTransfersReceived++
			to.LamportsReceived += t.Lamports
			counterparties[t.FromAddress][t.ToAddress] = struct{}{}
			counterparties[t.ToAddress][t.FromAddress] = struct{}{}
		}
	}
	for _, transfers := range s.tokenTransfers {
		for _, t := range transfers {
			from, to := get(t.FromAddress), get(t.ToAddress)
			from.TokenTransfersSent++
			to.TokenTransfersReceived++
			counterparties[t.FromAddress][t.ToAddress] = struct{}{}
			counterparties[t.ToAddress][t.FromAddress] = struct{}{}
			mints[t.FromAddress][t.Mint] = struct{}{}
			mints[t.ToAddress][t.Mint] = struct{}{}
		}
	}

	for address, st := range stats {
		st.UniqueCounterparties = int64(len(counterparties[address]))
		st.UniqueTokens = int64(len(mints[address]))
	}
	s.stats = stats
	return nil
}

// GetWalletStats retrieves the rollup for a wallet from the last refresh
func (s *MemoryStore) GetWalletStats(ctx context.Context, address string) (*entity.WalletStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[address]
	if !ok {
		return &entity.WalletStats{Address: address}, nil
	}
	cp := *st
	return &cp, nil
}
