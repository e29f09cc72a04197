package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/classroomhub/classroom/internal/core/domain"
	"github.com/classroomhub/classroom/internal/core/ports"
)

const profileCollection = "users"

// MongoProfileRepository stores profiles keyed by identity ID (_id), which
// gives the one-profile-per-identity guarantee.
type MongoProfileRepository struct {
	coll *mongo.Collection
}

var _ ports.ProfileRepository = (*MongoProfileRepository)(nil)

func NewProfileRepository(db *mongo.Database) *MongoProfileRepository {
	return &MongoProfileRepository{coll: db.Collection(profileCollection)}
}

type mongoProfile struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Name      string    `bson:"name,omitempty"`
	AvatarURL string    `bson:"avatar_url,omitempty"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// EnsureIndexes creates the secondary indexes used by List and CountByRole.
func (r *MongoProfileRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "role", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("ensure profile indexes: %w", err)
	}
	return nil
}

func (r *MongoProfileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	var mp mongoProfile
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&mp); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return mp.toDomain(), nil
}

func (r *MongoProfileRepository) Insert(ctx context.Context, p *domain.Profile) error {
	doc := mongoProfile{
		ID:        p.ID,
		Email:     p.Email,
		Name:      p.Name,
		AvatarURL: p.AvatarURL,
		Role:      string(p.Role),
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrProfileExists
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (r *MongoProfileRepository) UpdateContact(ctx context.Context, id, email, name, avatarURL string, at time.Time) error {
	return r.update(ctx, id, bson.M{
		"email":      email,
		"name":       name,
		"avatar_url": avatarURL,
		"updated_at": at.UTC(),
	})
}

func (r *MongoProfileRepository) UpdateRole(ctx context.Context, id string, role domain.Role, at time.Time) error {
	return r.update(ctx, id, bson.M{"role": string(role), "updated_at": at.UTC()})
}

func (r *MongoProfileRepository) update(ctx context.Context, id string, set bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

func (r *MongoProfileRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}

func (r *MongoProfileRepository) CountByRole(ctx context.Context, role domain.Role) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"role": string(role)})
	if err != nil {
		return 0, fmt.Errorf("count profiles by role: %w", err)
	}
	return n, nil
}

func (r *MongoProfileRepository) List(ctx context.Context) ([]*domain.Profile, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoProfile
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]*domain.Profile, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// Ping reports whether the primary is reachable.
func (r *MongoProfileRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func (mp *mongoProfile) toDomain() *domain.Profile {
	return &domain.Profile{
		ID:        mp.ID,
		Email:     mp.Email,
		Name:      mp.Name,
		AvatarURL: mp.AvatarURL,
		Role:      domain.NormalizeRole(mp.Role),
		CreatedAt: mp.CreatedAt.UTC(),
		UpdatedAt: mp.UpdatedAt.UTC(),
	}
}
