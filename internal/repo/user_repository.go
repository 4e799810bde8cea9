package repo

import (
	"context"
	"errors"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/db"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/fault"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserRepository validates that user references handed to conversation
// operations point at real accounts. Identity itself comes verified from
// the auth collaborator.
type UserRepository interface {
	GetByUserID(ctx context.Context, userID string) (*model.User, error)
	AllExist(ctx context.Context, userIDs []string) (bool, error)
}

type userRepository struct {
	con       *mongo.Database
	mongoRepo *db.Repository[model.User]
}

func NewUserRepository(con *mongo.Database, repo *db.Repository[model.User]) UserRepository {
	return &userRepository{
		con:       con,
		mongoRepo: repo,
	}
}

func (r *userRepository) GetByUserID(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	user, err := r.mongoRepo.FindOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fault.ErrNotFound
		}
		return nil, translateErr(err)
	}
	return user, nil
}

func (r *userRepository) AllExist(ctx context.Context, userIDs []string) (bool, error) {
	if len(userIDs) == 0 {
		return true, nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	count, err := r.mongoRepo.Count(ctx, db.NewFilter().In("user_id", userIDs).Build())
	if err != nil {
		return false, translateErr(err)
	}
	return count == int64(len(userIDs)), nil
}
