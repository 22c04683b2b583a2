package appointment

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"servicecenter/internal/config"
)

type ChainTrackerParams struct {
	fx.In

	DB     *gorm.DB
	Repo   Repository
	Config config.BookingConfig `optional:"true"`
	Log    *zap.Logger
}

// ChainTracker reconstructs reschedule lineages from the
// rescheduled_from_id back references.
type ChainTracker struct {
	db       *gorm.DB
	repo     Repository
	maxDepth int
	log      *zap.Logger
}

func NewChainTracker(p ChainTrackerParams) *ChainTracker {
	depth := p.Config.MaxChainDepth
	if depth <= 0 {
		depth = defaultBookingConfig.MaxChainDepth
	}
	return &ChainTracker{
		db:       p.DB,
		repo:     p.Repo,
		maxDepth: depth,
		log:      p.Log.Named("appointment.chain"),
	}
}

// GetChain returns the lineage of id: the origin first, then every
// descendant in breadth-first order. Each direction walks at most maxDepth
// steps, so cycles and overly long chains in bad data still terminate.
func (t *ChainTracker) GetChain(ctx context.Context, id int64) ([]ChainLink, error) {
	start, err := t.link(ctx, id)
	if err != nil {
		return nil, err
	}

	origin := start
	seen := map[int64]bool{start.ID: true}
	for depth := 0; origin.RescheduledFromID != nil; depth++ {
		if depth >= t.maxDepth {
			t.log.Warn("reschedule chain truncated walking back", zap.Int64("appointment_id", id), zap.Int("max_depth", t.maxDepth))
			break
		}
		parentID := *origin.RescheduledFromID
		if seen[parentID] {
			t.log.Warn("reschedule chain has a cycle", zap.Int64("appointment_id", id), zap.Int64("parent_id", parentID))
			break
		}
		parents, err := t.repo.FindLinks(ctx, t.db, []int64{parentID})
		if err != nil {
			return nil, err
		}
		if len(parents) == 0 {
			break
		}
		seen[parentID] = true
		origin = parents[0]
	}

	chain := []ChainLink{origin}
	visited := map[int64]bool{origin.ID: true}
	frontier := []int64{origin.ID}
	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= t.maxDepth {
			t.log.Warn("reschedule chain truncated walking forward", zap.Int64("appointment_id", id), zap.Int("max_depth", t.maxDepth))
			break
		}
		children, err := t.repo.FindChildren(ctx, t.db, frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, c := range children {
			if visited[c.ID] {
				continue
			}
			visited[c.ID] = true
			chain = append(chain, c)
			frontier = append(frontier, c.ID)
		}
	}

	if !visited[start.ID] {
		chain = append(chain, start)
	}
	return chain, nil
}

func (t *ChainTracker) link(ctx context.Context, id int64) (ChainLink, error) {
	links, err := t.repo.FindLinks(ctx, t.db, []int64{id})
	if err != nil {
		return ChainLink{}, err
	}
	if len(links) == 0 {
		return ChainLink{}, ErrNotFound
	}
	return links[0], nil
}
