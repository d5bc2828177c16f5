package salt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/capture-core/internal/media"
)

// Store hands out per-origin hashing contexts, creating and rotating
// salts as needed. It is safe for concurrent use.
type Store struct {
	repo     Repository
	rotation time.Duration

	mu    sync.RWMutex
	cache map[media.Origin]Salts

	now     func() time.Time
	newSalt func() string
}

// NewStore creates a Store over repo. A positive rotation replaces an
// origin's salts once they are older than rotation.
func NewStore(repo Repository, rotation time.Duration) *Store {
	return &Store{
		repo:     repo,
		rotation: rotation,
		cache:    make(map[media.Origin]Salts),
		now:      time.Now,
		newSalt:  randomSalt,
	}
}

func randomSalt() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ForOrigin returns the hashing context of origin.
//
// Parameters:
//   - ctx: Context for the repository calls on a cache miss
//   - origin: Normalised origin of the requester
//   - hasFocus: Whether the requesting page has focus, carried through
//
// Returns:
//   - media.SaltAndOrigin: salts and origin ready for a capture request
//   - error: ErrOpaqueOrigin, or a repository failure
func (s *Store) ForOrigin(ctx context.Context, origin media.Origin, hasFocus bool) (media.SaltAndOrigin, error) {
	if origin.Opaque() {
		return media.SaltAndOrigin{}, ErrOpaqueOrigin
	}

	s.mu.RLock()
	salts, ok := s.cache[origin]
	s.mu.RUnlock()
	if !ok || s.expired(salts) {
		var err error
		if salts, err = s.load(ctx, origin); err != nil {
			return media.SaltAndOrigin{}, err
		}
	}

	return media.SaltAndOrigin{
		DeviceIDSalt: salts.DeviceIDSalt,
		GroupIDSalt:  salts.GroupIDSalt,
		Origin:       origin,
		HasFocus:     hasFocus,
	}, nil
}

func (s *Store) expired(salts Salts) bool {
	if s.rotation <= 0 {
		return false
	}
	since := salts.CreatedAt
	if !salts.RotatedAt.IsZero() {
		since = salts.RotatedAt
	}
	return s.now().Sub(since) >= s.rotation
}

// load fetches, creates or rotates the salts of origin under the write
// lock so concurrent first requests agree on one pair.
func (s *Store) load(ctx context.Context, origin media.Origin) (Salts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if salts, ok := s.cache[origin]; ok && !s.expired(salts) {
		return salts, nil
	}

	salts, err := s.repo.Get(ctx, origin)
	switch {
	case errors.Is(err, ErrNotFound):
		salts = Salts{
			Origin:       origin,
			DeviceIDSalt: s.newSalt(),
			GroupIDSalt:  s.newSalt(),
			CreatedAt:    s.now().UTC(),
		}
		if err := s.repo.Put(ctx, salts); err != nil {
			return Salts{}, err
		}
	case err != nil:
		return Salts{}, fmt.Errorf("loading salts for %s: %w", origin, err)
	case s.expired(salts):
		if salts, err = s.rotateLocked(ctx, salts); err != nil {
			return Salts{}, err
		}
	}

	s.cache[origin] = salts
	return salts, nil
}

// Rotate replaces the salts of origin immediately. Ids previously handed
// to that origin no longer resolve.
func (s *Store) Rotate(ctx context.Context, origin media.Origin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	salts, err := s.repo.Get(ctx, origin)
	if err != nil {
		return err
	}
	salts, err = s.rotateLocked(ctx, salts)
	if err != nil {
		return err
	}
	s.cache[origin] = salts
	return nil
}

func (s *Store) rotateLocked(ctx context.Context, salts Salts) (Salts, error) {
	salts.DeviceIDSalt = s.newSalt()
	salts.GroupIDSalt = s.newSalt()
	salts.RotatedAt = s.now().UTC()
	if err := s.repo.Put(ctx, salts); err != nil {
		return Salts{}, err
	}
	return salts, nil
}

// Forget deletes the salts of origin.
func (s *Store) Forget(ctx context.Context, origin media.Origin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, origin)
	return s.repo.Delete(ctx, origin)
}
