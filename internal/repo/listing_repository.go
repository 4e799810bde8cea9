package repo

import (
	"context"
	"errors"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/db"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/fault"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// ListingRepository is the boundary to the listing collaborator: id and
// ownership lookups for role assignment. Listings are written elsewhere.
type ListingRepository interface {
	GetByID(ctx context.Context, listingID string) (*model.Listing, error)
}

type listingRepository struct {
	mongoRepo *db.Repository[model.Listing]
	logger    *zap.Logger
}

func NewListingRepository(repo *db.Repository[model.Listing], logger *zap.Logger) ListingRepository {
	return &listingRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *listingRepository) GetByID(ctx context.Context, listingID string) (*model.Listing, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	if _, err := primitive.ObjectIDFromHex(listingID); err != nil {
		return nil, fault.ErrNotFound
	}

	listing, err := r.mongoRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("listing not found", zap.String("listing_id", listingID))
			return nil, fault.ErrNotFound
		}
		return nil, translateErr(err)
	}
	return listing, nil
}
