// Package session holds the user's selection state: favorites, the
// comparison set and recent searches. State lives for the process only.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ispfinder/ispfinder/internal/models"
)

const (
	MaxComparison     = 3
	MaxRecentSearches = 5
)

// State is a point-in-time copy of a session. Mutating it does not affect
// the session.
type State struct {
	ID             string                  `json:"id"`
	Favorites      []string                `json:"favorites"`
	Comparison     []models.ComparisonItem `json:"comparison"`
	RecentSearches []models.RecentSearch   `json:"recent_searches"`
	PlanType       models.PlanType         `json:"plan_type"`
}

// Session is a single logical selection session. All methods are safe for
// concurrent use and every mutator returns the resulting state.
type Session struct {
	mu         sync.Mutex
	id         string
	favorites  []string
	comparison []models.ComparisonItem
	recents    []models.RecentSearch
	planType   models.PlanType
	now        func() time.Time
}

// New creates an empty session with the residential plan type preference.
func New() *Session {
	return &Session{
		id:       uuid.NewString(),
		planType: models.PlanTypeResidential,
		now:      time.Now,
	}
}

// ID identifies the session in logs and events.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	return State{
		ID:             s.id,
		Favorites:      append([]string{}, s.favorites...),
		Comparison:     append([]models.ComparisonItem{}, s.comparison...),
		RecentSearches: append([]models.RecentSearch{}, s.recents...),
		PlanType:       s.planType,
	}
}

// AddFavorite marks an ISP as favorite. Adding an existing favorite is a no-op.
func (s *Session) AddFavorite(ispID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.favorites, ispID) < 0 {
		s.favorites = append(s.favorites, ispID)
	}
	return s.snapshotLocked()
}

// RemoveFavorite unmarks an ISP. Removing an absent id is a no-op.
func (s *Session) RemoveFavorite(ispID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := indexOf(s.favorites, ispID); i >= 0 {
		s.favorites = append(s.favorites[:i:i], s.favorites[i+1:]...)
	}
	return s.snapshotLocked()
}

// IsFavorite reports whether ispID is a favorite.
func (s *Session) IsFavorite(ispID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.favorites, ispID) >= 0
}

// Favorites returns favorite ISP ids in the order they were added.
func (s *Session) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.favorites...)
}

// AddToComparison appends item unless the comparison is full or already holds
// the same ISP. A rejected add leaves the state untouched and reports false.
func (s *Session) AddToComparison(item models.ComparisonItem) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.comparison) >= MaxComparison || s.inComparisonLocked(item.ISP.ID) {
		return s.snapshotLocked(), false
	}
	s.comparison = append(s.comparison, item)
	return s.snapshotLocked(), true
}

// RemoveFromComparison drops the item for ispID, if any.
func (s *Session) RemoveFromComparison(ispID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.comparison[:0:0]
	for _, item := range s.comparison {
		if item.ISP.ID != ispID {
			kept = append(kept, item)
		}
	}
	s.comparison = kept
	return s.snapshotLocked()
}

// ClearComparison empties the comparison set.
func (s *Session) ClearComparison() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.comparison = nil
	return s.snapshotLocked()
}

// IsInComparison reports whether the comparison holds ispID.
func (s *Session) IsInComparison(ispID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inComparisonLocked(ispID)
}

func (s *Session) inComparisonLocked(ispID string) bool {
	for _, item := range s.comparison {
		if item.ISP.ID == ispID {
			return true
		}
	}
	return false
}

// Comparison returns the comparison items in insertion order.
func (s *Session) Comparison() []models.ComparisonItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ComparisonItem{}, s.comparison...)
}

// AddRecentSearch moves the city to the front of the history, dropping any
// earlier entry for it and keeping at most MaxRecentSearches entries. An
// empty timestamp is filled with the current time.
func (s *Session) AddRecentSearch(search models.RecentSearch) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if search.Timestamp == "" {
		search.Timestamp = s.now().UTC().Format(time.RFC3339)
	}

	recents := make([]models.RecentSearch, 0, MaxRecentSearches)
	recents = append(recents, search)
	for _, r := range s.recents {
		if r.CityID == search.CityID {
			continue
		}
		if len(recents) == MaxRecentSearches {
			break
		}
		recents = append(recents, r)
	}
	s.recents = recents
	return s.snapshotLocked()
}

// ClearRecentSearches empties the search history.
func (s *Session) ClearRecentSearches() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recents = nil
	return s.snapshotLocked()
}

// RecentSearches returns the history, most recent first.
func (s *Session) RecentSearches() []models.RecentSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RecentSearch{}, s.recents...)
}

// PlanType returns the residential/business preference.
func (s *Session) PlanType() models.PlanType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planType
}

// SetPlanType changes the residential/business preference.
func (s *Session) SetPlanType(t models.PlanType) (State, error) {
	if !t.Valid() {
		return State{}, fmt.Errorf("unknown plan type %q", t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.planType = t
	return s.snapshotLocked(), nil
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
