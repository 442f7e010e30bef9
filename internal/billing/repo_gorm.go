package billing

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormRepository is the durable swap-in for deployments that outlive a
// single process. Same contract as the in-memory store.
type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository returns a repository bound to the provided database.
func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindByExternalID(ctx context.Context, externalSubscriptionID string) (*UserSubscription, error) {
	if externalSubscriptionID == "" {
		return nil, nil
	}
	var sub UserSubscription
	if err := r.db.WithContext(ctx).
		Where("external_subscription_id = ?", externalSubscriptionID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) Save(ctx context.Context, sub *UserSubscription) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_subscription_id"}},
			UpdateAll: true,
		}).
		Save(sub).Error
}

func (r *gormRepository) ListByUser(ctx context.Context, userID string) ([]UserSubscription, error) {
	var subs []UserSubscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
