// Package redis implements the ledger store on Redis. Account state lives in
// a hash and the transaction log in a list, mutated together by Lua scripts
// so every check-then-act is atomic server-side. Safe for multi-instance
// deployments sharing one Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"spendgate/internal/ledger/models"
	"spendgate/internal/ledger/ports"
)

type Store struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ ports.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "spendgate:ledger:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a Redis-backed ledger store. The client must be a connected
// *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "spendgate:ledger:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) accountKey(userID string) string {
	return s.keyPrefix + "account:" + userID
}

func (s *Store) logKey(userID string) string {
	return s.keyPrefix + "log:" + userID
}

// createScript inserts the account hash and pushes the grant transaction only
// when the hash does not exist yet.
//
// KEYS[1] = account hash, KEYS[2] = transaction list
// ARGV[1] = balance, ARGV[2] = total_earned, ARGV[3] = total_used
// ARGV[4] = updated_at (unix nanos), ARGV[5] = grant transaction JSON
//
// Returns 1 when created, 0 when the account already existed.
var createScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1],
	"balance", ARGV[1],
	"total_earned", ARGV[2],
	"total_used", ARGV[3],
	"updated_at", ARGV[4])
redis.call("LPUSH", KEYS[2], ARGV[5])
return 1
`)

// applyScript applies the balance delta and appends the transaction, refusing
// when the balance would go negative.
//
// KEYS[1] = account hash, KEYS[2] = transaction list
// ARGV[1] = balance delta, ARGV[2] = earned delta, ARGV[3] = used delta
// ARGV[4] = updated_at (unix nanos), ARGV[5] = transaction JSON
//
// Returns {1, balance} on success, {0, balance} on insufficient funds,
// {-1, 0} when the account does not exist.
var applyScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return {-1, 0}
end
local balance = tonumber(redis.call("HGET", KEYS[1], "balance"))
local delta = tonumber(ARGV[1])
if balance + delta < 0 then
	return {0, balance}
end
redis.call("HINCRBY", KEYS[1], "balance", delta)
redis.call("HINCRBY", KEYS[1], "total_earned", ARGV[2])
redis.call("HINCRBY", KEYS[1], "total_used", ARGV[3])
redis.call("HSET", KEYS[1], "updated_at", ARGV[4])
redis.call("LPUSH", KEYS[2], ARGV[5])
return {1, balance + delta}
`)

func (s *Store) LoadAccount(ctx context.Context, userID string) (*models.Account, error) {
	fields, err := s.client.HGetAll(ctx, s.accountKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return accountFromHash(userID, fields)
}

func (s *Store) CreateAccount(ctx context.Context, account *models.Account, grant *models.Transaction) (*models.Account, bool, error) {
	payload, err := json.Marshal(grant)
	if err != nil {
		return nil, false, fmt.Errorf("marshal grant transaction: %w", err)
	}

	created, err := createScript.Run(ctx, s.client,
		[]string{s.accountKey(account.UserID), s.logKey(account.UserID)},
		account.Balance, account.TotalEarned, account.TotalUsed,
		account.UpdatedAt.UnixNano(), payload,
	).Int()
	if err != nil {
		return nil, false, fmt.Errorf("create account: %w", err)
	}

	result, err := s.LoadAccount(ctx, account.UserID)
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		return nil, false, ports.ErrAccountNotFound
	}
	return result, created == 1, nil
}

func (s *Store) Apply(ctx context.Context, userID string, delta models.BalanceDelta, txn *models.Transaction) (*models.Account, error) {
	payload, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}

	raw, err := applyScript.Run(ctx, s.client,
		[]string{s.accountKey(userID), s.logKey(userID)},
		delta.Balance, delta.TotalEarned, delta.TotalUsed,
		time.Now().UnixNano(), payload,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("apply transaction: %w", err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("apply transaction: unexpected script reply %v", raw)
	}

	switch raw[0] {
	case -1:
		return nil, ports.ErrAccountNotFound
	case 0:
		return nil, &models.InsufficientCreditsError{
			Required: -delta.Balance,
			Current:  int(raw[1]),
		}
	}

	account, err := s.LoadAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ports.ErrAccountNotFound
	}
	return account, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	// LPUSH keeps newest entries at the head, so LRANGE is already newest first.
	entries, err := s.client.LRange(ctx, s.logKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	result := make([]*models.Transaction, 0, len(entries))
	for _, entry := range entries {
		var txn models.Transaction
		if err := json.Unmarshal([]byte(entry), &txn); err != nil {
			return nil, fmt.Errorf("unmarshal transaction: %w", err)
		}
		result = append(result, &txn)
	}
	return result, nil
}

func accountFromHash(userID string, fields map[string]string) (*models.Account, error) {
	account := &models.Account{UserID: userID}
	var err error
	if account.Balance, err = strconv.Atoi(fields["balance"]); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	if account.TotalEarned, err = strconv.Atoi(fields["total_earned"]); err != nil {
		return nil, fmt.Errorf("parse total_earned: %w", err)
	}
	if account.TotalUsed, err = strconv.Atoi(fields["total_used"]); err != nil {
		return nil, fmt.Errorf("parse total_used: %w", err)
	}
	nanos, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	account.UpdatedAt = time.Unix(0, nanos)
	return account, nil
}
