package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"walletscope/internal/analyze"
)

// Store publishes per-day wallet statistics to Postgres for the chat
// notifier and chart renderer to query.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertDailyStats inserts or updates one row per complete day.
func (s *Store) UpsertDailyStats(ctx context.Context, address string, days map[string]*analyze.WindowStats) error {
	if len(days) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for date, day := range days {
		batch.Queue(`
			INSERT INTO wallet_daily_stats (
				address, day, stake_a_agent_count, stake_a_agent_total,
				stake_a_user_count, stake_a_user_total, stake_b_count, stake_b_total,
				topups_count, topups_total, uncategorized_count, uncategorized_total,
				all_incoming_count, all_incoming_total, all_incoming_wallets,
				payouts_count, payouts_total, payouts_wallets, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
			ON CONFLICT (address, day)
			DO UPDATE SET
				stake_a_agent_count = EXCLUDED.stake_a_agent_count,
				stake_a_agent_total = EXCLUDED.stake_a_agent_total,
				stake_a_user_count = EXCLUDED.stake_a_user_count,
				stake_a_user_total = EXCLUDED.stake_a_user_total,
				stake_b_count = EXCLUDED.stake_b_count,
				stake_b_total = EXCLUDED.stake_b_total,
				topups_count = EXCLUDED.topups_count,
				topups_total = EXCLUDED.topups_total,
				uncategorized_count = EXCLUDED.uncategorized_count,
				uncategorized_total = EXCLUDED.uncategorized_total,
				all_incoming_count = EXCLUDED.all_incoming_count,
				all_incoming_total = EXCLUDED.all_incoming_total,
				all_incoming_wallets = EXCLUDED.all_incoming_wallets,
				payouts_count = EXCLUDED.payouts_count,
				payouts_total = EXCLUDED.payouts_total,
				payouts_wallets = EXCLUDED.payouts_wallets,
				updated_at = now()
		`,
			address,
			date,
			day.StakeAAgent.Count,
			day.StakeAAgent.TotalAmount.String(),
			day.StakeAUser.Count,
			day.StakeAUser.TotalAmount.String(),
			day.StakeB.Count,
			day.StakeB.TotalAmount.String(),
			day.TopUps.Count,
			day.TopUps.TotalAmount.String(),
			day.Uncategorized.Count,
			day.Uncategorized.TotalAmount.String(),
			day.AllIncoming.Count,
			day.AllIncoming.TotalAmount.String(),
			day.AllIncoming.UniqueWallets(),
			day.Payouts.Count,
			day.Payouts.TotalAmount.String(),
			day.Payouts.UniqueWallets(),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range days {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
