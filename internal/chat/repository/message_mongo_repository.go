package repository

import (
	"context"
	"fmt"
	"time"

	"direct_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository on the "messages" collection
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{
		coll: db.Collection(domain.TableMessages),
	}
}

// EnsureMongoIndexes 建立對話查詢與未讀統計用的索引
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(domain.TableMessages).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "seen", Value: 1}}},
	})
	return err
}

func (r *mongoMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	_, err := r.coll.InsertOne(ctx, msg)
	return err
}

func (r *mongoMessageRepository) FindConversation(ctx context.Context, userA, userB string) ([]domain.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": userA, "receiver_id": userB},
		bson.M{"sender_id": userB, "receiver_id": userA},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	defer cur.Close(ctx)

	msgs := []domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = appendValid(msgs, m)
	}
	return msgs, cur.Err()
}

func (r *mongoMessageRepository) MarkSeen(ctx context.Context, senderID, receiverID string, at time.Time) (int64, error) {
	filter := bson.M{"sender_id": senderID, "receiver_id": receiverID, "seen": false}
	update := bson.M{"$set": bson.M{"seen": true, "seen_at": at}}

	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *mongoMessageRepository) CountUnseenBySender(ctx context.Context, receiverID string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "receiver_id", Value: receiverID},
			{Key: "seen", Value: false},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$sender_id"},
			{Key: "unread_count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate error: %w", err)
	}

	var results []struct {
		SenderID    string `bson:"_id"`
		UnreadCount int    `bson:"unread_count"`
	}
	if err := cur.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("cursor All error: %w", err)
	}

	counts := make(map[string]int, len(results))
	for _, res := range results {
		counts[res.SenderID] = res.UnreadCount
	}
	return counts, nil
}
