package repository

import (
	"context"
	"errors"
	"log/slog"

	"minisocial/internal/models"
	"minisocial/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// mongoPostRepository stores each post as one document with embedded likes
// and comments. Likes and comments change through single-document updates,
// so concurrent togglers and commenters never overwrite each other.
type mongoPostRepository struct {
	coll *mongo.Collection
	log  *observability.RepoLogger
}

// NewMongoPostRepository creates a post repository over the given collection.
func NewMongoPostRepository(coll *mongo.Collection) PostRepository {
	return &mongoPostRepository{
		coll: coll,
		log:  observability.NewRepoLogger("mongo", coll.Name()),
	}
}

var returnAfter = options.FindOneAndUpdate().SetReturnDocument(options.After)

func byID(id string) bson.M {
	return bson.M{"_id": id}
}

func decodePost(res *mongo.SingleResult) (*models.Post, error) {
	var post models.Post
	if err := res.Decode(&post); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrPostNotFound
		}
		return nil, err
	}
	post.Normalize()
	return &post, nil
}

func (r *mongoPostRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("mongo", "create")()

	prepareNew(post)
	if _, err := r.coll.InsertOne(ctx, post); err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, slog.String("post_id", post.ID), slog.Uint64("author_id", uint64(post.AuthorID)))
	return nil
}

func (r *mongoPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackQuery("mongo", "get")()
	return decodePost(r.coll.FindOne(ctx, byID(id)))
}

func (r *mongoPostRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	defer observability.TrackQuery("mongo", "list")()

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	posts := make([]*models.Post, 0, limit)
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	for _, p := range posts {
		p.Normalize()
	}
	return posts, nil
}

// toggleLikePipeline removes uid from likes when present and appends it otherwise.
func toggleLikePipeline(uid uint) mongo.Pipeline {
	id := int64(uid)
	likes := bson.D{{Key: "$ifNull", Value: bson.A{"$likes", bson.A{}}}}
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "likes", Value: bson.D{{Key: "$cond", Value: bson.D{
				{Key: "if", Value: bson.D{{Key: "$in", Value: bson.A{id, likes}}}},
				{Key: "then", Value: bson.D{{Key: "$filter", Value: bson.D{
					{Key: "input", Value: likes},
					{Key: "as", Value: "uid"},
					{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$uid", id}}}},
				}}}},
				{Key: "else", Value: bson.D{{Key: "$concatArrays", Value: bson.A{likes, bson.A{id}}}}},
			}}}},
			{Key: "updatedAt", Value: now()},
		}}},
	}
}

func (r *mongoPostRepository) ToggleLike(ctx context.Context, postID string, userID uint) (*models.Post, error) {
	defer observability.TrackQuery("mongo", "toggle_like")()

	post, err := decodePost(r.coll.FindOneAndUpdate(ctx, byID(postID), toggleLikePipeline(userID), returnAfter))
	if err != nil {
		if !errors.Is(err, models.ErrPostNotFound) {
			r.log.LogError(ctx, err, "toggle_like")
		}
		return nil, err
	}
	r.log.LogUpdate(ctx, slog.String("post_id", postID), slog.String("field", "likes"))
	return post, nil
}

func (r *mongoPostRepository) AddComment(ctx context.Context, postID string, comment models.Comment) (*models.Post, error) {
	defer observability.TrackQuery("mongo", "add_comment")()

	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now()
	}
	update := bson.M{
		"$push": bson.M{"comments": comment},
		"$set":  bson.M{"updatedAt": now()},
	}
	post, err := decodePost(r.coll.FindOneAndUpdate(ctx, byID(postID), update, returnAfter))
	if err != nil {
		if !errors.Is(err, models.ErrPostNotFound) {
			r.log.LogError(ctx, err, "add_comment")
		}
		return nil, err
	}
	r.log.LogUpdate(ctx, slog.String("post_id", postID), slog.String("field", "comments"))
	return post, nil
}

func (r *mongoPostRepository) Update(ctx context.Context, id string, update models.PostUpdate) (*models.Post, error) {
	defer observability.TrackQuery("mongo", "update")()

	if update.Empty() {
		return decodePost(r.coll.FindOne(ctx, byID(id)))
	}

	set := bson.M{"updatedAt": now()}
	if update.Content != nil {
		set["content"] = *update.Content
	}
	if update.Image != nil {
		set["image"] = *update.Image
	}
	post, err := decodePost(r.coll.FindOneAndUpdate(ctx, byID(id), bson.M{"$set": set}, returnAfter))
	if err != nil {
		if !errors.Is(err, models.ErrPostNotFound) {
			r.log.LogError(ctx, err, "update")
		}
		return nil, err
	}
	r.log.LogUpdate(ctx, slog.String("post_id", id))
	return post, nil
}

func (r *mongoPostRepository) Delete(ctx context.Context, id string) error {
	defer observability.TrackQuery("mongo", "delete")()

	res, err := r.coll.DeleteOne(ctx, byID(id))
	if err != nil {
		r.log.LogError(ctx, err, "delete")
		return err
	}
	if res.DeletedCount == 0 {
		return models.ErrPostNotFound
	}
	r.log.LogDelete(ctx, slog.String("post_id", id))
	return nil
}

func (r *mongoPostRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}
