package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/b-open-io/backplane/internal/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

// Collections backing each key type.
const (
	stringsCollection    = "strings"
	setsCollection       = "sets"
	hashesCollection     = "hashes"
	sortedSetsCollection = "sorted_sets"
)

// MongoStore implements Store on MongoDB, one collection per key type.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(connString string) (*MongoStore, error) {
	log.Println("Connecting to Mongo store...", utils.SanitizeConnectionString(connString))
	clientOpts := options.Client().ApplyURI(connString)

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, err
	}

	dbName := "backplane"
	if cs, err := connstring.ParseAndValidate(connString); err == nil && cs.Database != "" {
		dbName = cs.Database
	}

	return &MongoStore{db: client.Database(dbName)}, nil
}

// Close disconnects from the MongoDB database
func (s *MongoStore) Close() error {
	if s.db != nil {
		return s.db.Client().Disconnect(context.Background())
	}
	return nil
}

// Connection
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

func (s *MongoStore) Connected(ctx context.Context) bool {
	return s.Ping(ctx) == nil
}

// liveFilter matches key unless it has expired.
func liveFilter(key string) bson.M {
	return bson.M{
		"_id": key,
		"$or": bson.A{
			bson.M{"expiresAt": bson.M{"$exists": false}},
			bson.M{"expiresAt": bson.M{"$gt": time.Now()}},
		},
	}
}

// String Operations
func (s *MongoStore) Get(ctx context.Context, key string) (string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := s.db.Collection(stringsCollection).FindOne(ctx, liveFilter(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNil
	}
	return doc.Value, err
}

func (s *MongoStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	update := bson.M{"$set": bson.M{"value": value}}
	if ttl > 0 {
		update["$set"] = bson.M{"value": value, "expiresAt": time.Now().Add(ttl)}
	} else {
		update["$unset"] = bson.M{"expiresAt": ""}
	}
	_, err := s.db.Collection(stringsCollection).UpdateOne(ctx,
		bson.M{"_id": key},
		update,
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	deleted := make(map[string]bool)
	for _, key := range keys {
		for _, coll := range []string{stringsCollection, setsCollection, hashesCollection} {
			res, err := s.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": key})
			if err != nil {
				return 0, err
			}
			if res.DeletedCount > 0 {
				deleted[key] = true
			}
		}
		res, err := s.db.Collection(sortedSetsCollection).DeleteMany(ctx, bson.M{"key": key})
		if err != nil {
			return 0, err
		}
		if res.DeletedCount > 0 {
			deleted[key] = true
		}
	}
	return int64(len(deleted)), nil
}

func (s *MongoStore) Exists(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	for _, key := range keys {
		ok, err := s.exists(ctx, key)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *MongoStore) exists(ctx context.Context, key string) (bool, error) {
	filters := map[string]bson.M{
		stringsCollection:    liveFilter(key),
		setsCollection:       {"_id": key},
		hashesCollection:     {"_id": key},
		sortedSetsCollection: {"key": key},
	}
	for coll, filter := range filters {
		count, err := s.db.Collection(coll).CountDocuments(ctx, filter, options.Count().SetLimit(1))
		if err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Expire sets a TTL. Only string keys carry one in this store.
func (s *MongoStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	res, err := s.db.Collection(stringsCollection).UpdateOne(ctx,
		liveFilter(key),
		bson.M{"$set": bson.M{"expiresAt": time.Now().Add(ttl)}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// Set Operations
func (s *MongoStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	_, err := s.db.Collection(setsCollection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$addToSet": bson.M{"members": bson.M{"$each": members}}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) SMembers(ctx context.Context, key string) ([]string, error) {
	var doc struct {
		Members []string `bson:"members"`
	}

	err := s.db.Collection(setsCollection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []string{}, nil
	}
	return doc.Members, err
}

func (s *MongoStore) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	_, err := s.db.Collection(setsCollection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$pullAll": bson.M{"members": members}},
	)
	return err
}

func (s *MongoStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	count, err := s.db.Collection(setsCollection).CountDocuments(ctx, bson.M{
		"_id":     key,
		"members": member,
	})
	return count > 0, err
}

// Hash Operations
func (s *MongoStore) HSet(ctx context.Context, key, field, value string) error {
	_, err := s.db.Collection(hashesCollection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"fields." + field: value}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) HGet(ctx context.Context, key, field string) (string, error) {
	fields, err := s.HGetAll(ctx, key)
	if err != nil {
		return "", err
	}
	value, ok := fields[field]
	if !ok {
		return "", ErrNil
	}
	return value, nil
}

func (s *MongoStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var doc struct {
		Fields map[string]string `bson:"fields"`
	}

	err := s.db.Collection(hashesCollection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}

	if doc.Fields == nil {
		return make(map[string]string), nil
	}
	return doc.Fields, nil
}

func (s *MongoStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}

	unsetFields := bson.M{}
	for _, field := range fields {
		unsetFields["fields."+field] = ""
	}

	_, err := s.db.Collection(hashesCollection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$unset": unsetFields},
	)
	return err
}

// Sorted Set Operations
func (s *MongoStore) ZAdd(ctx context.Context, key string, members ...ScoredMember) error {
	if len(members) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(members))
	for _, member := range members {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"key": key, "member": member.Member}).
			SetUpdate(bson.M{"$set": bson.M{"score": member.Score}}).
			SetUpsert(true))
	}

	_, err := s.db.Collection(sortedSetsCollection).BulkWrite(ctx, writes)
	return err
}

func (s *MongoStore) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}

	_, err := s.db.Collection(sortedSetsCollection).DeleteMany(ctx, bson.M{
		"key":    key,
		"member": bson.M{"$in": members},
	})
	return err
}

func (s *MongoStore) ZRangeByScore(ctx context.Context, key string, scoreRange ScoreRange) ([]ScoredMember, error) {
	filter := bson.M{"key": key}
	if scoreRange.Min != nil || scoreRange.Max != nil {
		scoreFilter := bson.M{}
		if scoreRange.Min != nil {
			scoreFilter["$gte"] = *scoreRange.Min
		}
		if scoreRange.Max != nil {
			scoreFilter["$lte"] = *scoreRange.Max
		}
		filter["score"] = scoreFilter
	}

	opts := options.Find().SetSort(bson.D{{Key: "score", Value: 1}, {Key: "member", Value: 1}})
	if scoreRange.Offset > 0 {
		opts.SetSkip(scoreRange.Offset)
	}
	if scoreRange.Count > 0 {
		opts.SetLimit(scoreRange.Count)
	}

	cursor, err := s.db.Collection(sortedSetsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	members := []ScoredMember{}
	for cursor.Next(ctx) {
		var doc struct {
			Member string  `bson:"member"`
			Score  float64 `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		members = append(members, ScoredMember{
			Member: doc.Member,
			Score:  doc.Score,
		})
	}
	return members, cursor.Err()
}

func (s *MongoStore) ZScore(ctx context.Context, key, member string) (float64, error) {
	var doc struct {
		Score float64 `bson:"score"`
	}

	err := s.db.Collection(sortedSetsCollection).FindOne(ctx, bson.M{
		"key":    key,
		"member": member,
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNil
	}
	return doc.Score, err
}

func (s *MongoStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.db.Collection(sortedSetsCollection).CountDocuments(ctx, bson.M{"key": key})
}

func (s *MongoStore) ZIncrBy(ctx context.Context, key, member string, increment float64) (float64, error) {
	filter := bson.M{"key": key, "member": member}
	update := bson.M{"$inc": bson.M{"score": increment}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var result struct {
		Score float64 `bson:"score"`
	}
	err := s.db.Collection(sortedSetsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&result)
	return result.Score, err
}
