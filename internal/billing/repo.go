package billing

import (
	"context"
	"sync"
)

// Repository is the subscription persistence contract. FindByExternalID
// returns (nil, nil) when no record exists.
type Repository interface {
	FindByExternalID(ctx context.Context, externalSubscriptionID string) (*UserSubscription, error)
	Save(ctx context.Context, sub *UserSubscription) error
	ListByUser(ctx context.Context, userID string) ([]UserSubscription, error)
}

// memoryRepository is the default, process-lifetime store. All access is
// mutex guarded so concurrent webhook deliveries for the same subscription
// serialize instead of racing.
type memoryRepository struct {
	mu   sync.RWMutex
	byID map[string]UserSubscription
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{byID: make(map[string]UserSubscription)}
}

func (r *memoryRepository) FindByExternalID(_ context.Context, externalSubscriptionID string) (*UserSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byID[externalSubscriptionID]
	if !ok {
		return nil, nil
	}
	copied := sub
	return &copied, nil
}

func (r *memoryRepository) Save(_ context.Context, sub *UserSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[sub.ExternalSubscriptionID] = *sub
	return nil
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string) ([]UserSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var subs []UserSubscription
	for _, sub := range r.byID {
		if sub.UserID != nil && *sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}
