package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/chucky-1/virtual-trader/internal/model"
	log "github.com/sirupsen/logrus"
)

// DefaultRankingLimit is how many gainers and losers Ranking returns
const DefaultRankingLimit = 5

// Ranking analyzes unrealized profit of all accounts. Accounts without
// profit or loss are left out. Each side holds at most limit entries.
func (s *Service) Ranking(ctx context.Context, limit int) (*model.Ranking, error) {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	accounts, err := s.ledger.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}

	ranking := &model.Ranking{Gainers: []model.RankEntry{}, Losers: []model.RankEntry{}}
	for _, acc := range accounts {
		items, err := s.portfolio(ctx, acc.ID)
		if err != nil {
			log.WithField("account", acc.ID).Error(err)
			continue
		}
		profit, percent := s.UnrealizedProfit(items)
		entry := model.RankEntry{AccountID: acc.ID, Name: acc.Name, Profit: profit, Percent: percent}
		switch {
		case profit > 0:
			ranking.Gainers = append(ranking.Gainers, entry)
		case profit < 0:
			ranking.Losers = append(ranking.Losers, entry)
		}
	}

	sort.SliceStable(ranking.Gainers, func(i, j int) bool {
		return ranking.Gainers[i].Profit > ranking.Gainers[j].Profit
	})
	sort.SliceStable(ranking.Losers, func(i, j int) bool {
		return ranking.Losers[i].Profit < ranking.Losers[j].Profit
	})
	if len(ranking.Gainers) > limit {
		ranking.Gainers = ranking.Gainers[:limit]
	}
	if len(ranking.Losers) > limit {
		ranking.Losers = ranking.Losers[:limit]
	}
	return ranking, nil
}
