package command

import (
	"sync"

	"github.com/arenaboard/arenaboard/internal/domain/leaderboard"
)

// StoreResolver is a ManagerResolver over one primary score store and an
// optional set of per-country partition stores. Managers are created lazily
// per (mode, store) and cached; the resolver is safe for concurrent use.
type StoreResolver struct {
	mu        sync.Mutex
	primary   leaderboard.ScoreStore
	countries map[string]leaderboard.ScoreStore
	managers  map[resolverKey]*leaderboard.Manager
	opts      []leaderboard.ManagerOption
}

type resolverKey struct {
	mode    string
	country string
}

// NewStoreResolver creates a resolver. countries maps ISO codes to dedicated
// partition stores and may be nil.
func NewStoreResolver(primary leaderboard.ScoreStore, countries map[string]leaderboard.ScoreStore, opts ...leaderboard.ManagerOption) (*StoreResolver, error) {
	if primary == nil {
		return nil, ErrNilDependency
	}
	return &StoreResolver{
		primary:   primary,
		countries: countries,
		managers:  make(map[resolverKey]*leaderboard.Manager),
		opts:      opts,
	}, nil
}

// Primary implements ManagerResolver.
func (r *StoreResolver) Primary(mode string) (*leaderboard.Manager, error) {
	return r.manager(resolverKey{mode: mode}, r.primary)
}

// ForCountry implements ManagerResolver. Countries without a dedicated
// partition resolve to nil.
func (r *StoreResolver) ForCountry(mode, countryCode string) (*leaderboard.Manager, error) {
	store, ok := r.countries[countryCode]
	if !ok {
		return nil, nil
	}
	return r.manager(resolverKey{mode: mode, country: countryCode}, store)
}

func (r *StoreResolver) manager(key resolverKey, store leaderboard.ScoreStore) (*leaderboard.Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mgr, ok := r.managers[key]; ok {
		return mgr, nil
	}
	mgr, err := leaderboard.NewManager(key.mode, store, r.opts...)
	if err != nil {
		return nil, err
	}
	r.managers[key] = mgr
	return mgr, nil
}

var _ ManagerResolver = (*StoreResolver)(nil)
