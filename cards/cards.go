// Package cards serves the card catalog through the cache: per-card
// read-through, a per-user daily card and minute-stable random draws.
package cards

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/unkn0wn-root/tarotcache"
	"github.com/unkn0wn-root/tarotcache/internal/interpret"
	"github.com/unkn0wn-root/tarotcache/internal/storage"
)

const (
	CardTTL   = time.Hour
	DailyTTL  = 24 * time.Hour
	RandomTTL = time.Minute
)

var ErrInvalidCount = errors.New("cards: invalid count")

// Catalog is the authoritative card source.
type Catalog interface {
	ListCards(ctx context.Context, cardType string) ([]storage.Card, error)
	CardByID(ctx context.Context, id int64) (storage.Card, error)
	SearchCards(ctx context.Context, keyword, cardType string) ([]storage.Card, error)
}

// DailyCard is the card a user drew for a calendar day.
type DailyCard struct {
	storage.Card
	IsReversed bool   `json:"isReversed"`
	Date       string `json:"date"`
}

type Service struct {
	cache   *tarotcache.Store
	catalog Catalog
	log     tarotcache.Logger
	now     func() time.Time
	intn    func(n int) int
}

type Options struct {
	Logger tarotcache.Logger
	Now    func() time.Time
	Intn   func(n int) int // random source; nil => math/rand/v2
}

func New(cache *tarotcache.Store, catalog Catalog, opts Options) *Service {
	s := &Service{cache: cache, catalog: catalog, log: opts.Logger, now: opts.Now, intn: opts.Intn}
	if s.log == nil {
		s.log = tarotcache.NopLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.intn == nil {
		s.intn = rand.IntN
	}
	return s
}

func cardKey(id int64) string { return "card:" + strconv.FormatInt(id, 10) }

// List returns the catalog, optionally filtered by type.
func (s *Service) List(ctx context.Context, cardType string) ([]storage.Card, error) {
	k := "cards:list:" + cardType
	if cardType == "" {
		k = "cards:list:all"
	}
	return tarotcache.GetOrFetch(ctx, s.cache, k, func(ctx context.Context) ([]storage.Card, error) {
		return s.catalog.ListCards(ctx, cardType)
	}, tarotcache.WithTTL(CardTTL))
}

// ByID is a read-through on card:{id}. Unknown ids are not cached.
func (s *Service) ByID(ctx context.Context, id int64) (storage.Card, error) {
	return tarotcache.GetOrFetch(ctx, s.cache, cardKey(id), func(ctx context.Context) (storage.Card, error) {
		return s.catalog.CardByID(ctx, id)
	}, tarotcache.WithTTL(CardTTL))
}

func (s *Service) Search(ctx context.Context, keyword, cardType string) ([]storage.Card, error) {
	return s.catalog.SearchCards(ctx, keyword, cardType)
}

// Random draws n distinct cards with random orientation. The draw is cached
// for the current minute so repeated requests agree.
func (s *Service) Random(ctx context.Context, n int) ([]interpret.CardSelection, error) {
	seed := s.now().Unix() / 60
	k := fmt.Sprintf("cards:random:%d:%d", n, seed)
	return tarotcache.GetOrFetch(ctx, s.cache, k, func(ctx context.Context) ([]interpret.CardSelection, error) {
		all, err := s.List(ctx, "")
		if err != nil {
			return nil, err
		}
		if n < 1 || n > len(all) {
			return nil, errors.Wrapf(ErrInvalidCount, "count must be between 1 and %d", len(all))
		}
		// partial Fisher-Yates over a copy
		idx := make([]int, len(all))
		for i := range idx {
			idx[i] = i
		}
		out := make([]interpret.CardSelection, 0, n)
		for i := 0; i < n; i++ {
			j := i + s.intn(len(idx)-i)
			idx[i], idx[j] = idx[j], idx[i]
			c := all[idx[i]]
			out = append(out, interpret.CardSelection{
				ID:          c.ID,
				Name:        c.Name,
				EnglishName: c.EnglishName,
				ImageURL:    c.ImageURL,
				IsReversed:  s.intn(2) == 1,
			})
		}
		return out, nil
	}, tarotcache.WithTTL(RandomTTL))
}

// Daily returns userKey's card for today, drawing it on first request.
func (s *Service) Daily(ctx context.Context, userKey string) (DailyCard, error) {
	if userKey == "" {
		userKey = "guest"
	}
	date := s.now().UTC().Format(time.DateOnly)
	k := fmt.Sprintf("daily_card_user_%s_%s", userKey, date)
	return tarotcache.GetOrFetch(ctx, s.cache, k, func(ctx context.Context) (DailyCard, error) {
		all, err := s.List(ctx, "")
		if err != nil {
			return DailyCard{}, err
		}
		if len(all) == 0 {
			return DailyCard{}, errors.New("cards: empty catalog")
		}
		return DailyCard{
			Card:       all[s.intn(len(all))],
			IsReversed: s.intn(2) == 1,
			Date:       date,
		}, nil
	}, tarotcache.WithTTL(DailyTTL))
}

// Warm writes every card to card:{id} in one batch and returns how many.
func (s *Service) Warm(ctx context.Context) (int, error) {
	all, err := s.catalog.ListCards(ctx, "")
	if err != nil {
		return 0, err
	}
	items := make(map[string]any, len(all))
	for _, c := range all {
		items[cardKey(c.ID)] = c
	}
	s.cache.MSet(ctx, items, tarotcache.WithTTL(CardTTL))
	s.log.Info("card cache warmed", tarotcache.Fields{"cards": len(items)})
	return len(items), nil
}

// Invalidate drops every cached card view and returns the number of keys removed.
func (s *Service) Invalidate(ctx context.Context) int {
	n := s.cache.Flush(ctx, "cards:*") + s.cache.Flush(ctx, "card:*")
	s.log.Info("card cache invalidated", tarotcache.Fields{"deleted": n})
	return n
}
