package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/repositories"
	"github.com/yoockh/madprep/internal/utils"
)

const SessionCollection = "analysis_sessions"

// sessionRepo relies on the TTL index on expires_at for cleanup; reads also
// filter on it because the TTL monitor runs only once a minute.
type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) repositories.SessionRepository {
	return &sessionRepo{col: db.Collection(SessionCollection)}
}

func live(filter bson.M) bson.M {
	filter["expires_at"] = bson.M{"$gt": time.Now().UTC()}
	return filter
}

func (r *sessionRepo) Save(ctx context.Context, s *models.AnalysisSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	doc := *s
	doc.ID = primitive.NilObjectID
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"session_id": s.SessionID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *sessionRepo) Update(ctx context.Context, s *models.AnalysisSession) error {
	doc := *s
	doc.ID = primitive.NilObjectID
	res, err := r.col.ReplaceOne(ctx, live(bson.M{"session_id": s.SessionID}), doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, sessionID string) (*models.AnalysisSession, error) {
	var s models.AnalysisSession
	err := r.col.FindOne(ctx, live(bson.M{"session_id": sessionID})).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Latest(ctx context.Context, userID string) (*models.AnalysisSession, error) {
	var s models.AnalysisSession
	err := r.col.FindOne(ctx,
		live(bson.M{"user_id": userID}),
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"session_id": sessionID})
	return err
}
