package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"watch-harvest/pkg/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultMongoDatabase   = "watches"
	defaultMongoCollection = "products"
)

// MongoStore keeps one document per reference. Upserts only touch provided
// fields so concurrent writers never clobber each other's fields.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// mongoTarget reads the database from the DSN path and the collection from
// the "collection" query parameter, which is removed before connecting.
func mongoTarget(dsn string) (clean, database, collection string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid mongo dsn: %w", err)
	}
	database = strings.Trim(u.Path, "/")
	if database == "" {
		database = defaultMongoDatabase
	}
	q := u.Query()
	collection = q.Get("collection")
	if collection == "" {
		collection = defaultMongoCollection
	}
	q.Del("collection")
	u.RawQuery = q.Encode()
	return u.String(), database, collection, nil
}

func OpenMongo(ctx context.Context, dsn string) (*MongoStore, error) {
	clean, database, collection, err := mongoTarget(dsn)
	if err != nil {
		return nil, err
	}
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(clean))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "reference", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ensure reference index: %w", err)
	}
	return &MongoStore{client: client, coll: coll}, nil
}

func (s *MongoStore) FindByKey(ctx context.Context, reference string) (*models.ProductRecord, error) {
	var rec models.ProductRecord
	err := s.coll.FindOne(ctx, bson.M{"reference": models.NormalizeReference(reference)}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	normalizeLoaded(&rec)
	return &rec, nil
}

// upsertUpdate builds a pipeline update for rec. Provided fields overwrite,
// sourceUrl only fills a missing or empty value, the unknown price is only
// written when the document has none, and aliases are appended once.
// Values are wrapped in $literal so strings such as "$12,500" are never read
// as field paths.
func upsertUpdate(rec models.ProductRecord) mongo.Pipeline {
	set := bson.M{}
	for k, v := range models.PartialFields(rec) {
		set[k] = bson.M{"$literal": v}
	}
	if rec.SourceURL != "" {
		set["sourceUrl"] = bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$sourceUrl", ""}}, ""}},
			bson.M{"$literal": rec.SourceURL},
			"$sourceUrl",
		}}
	}
	if !rec.Price.Known() {
		set["price"] = bson.M{"$ifNull": bson.A{"$price", bson.M{"$literal": models.UnknownPrice()}}}
	}
	aliases := rec.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	existing := bson.M{"$ifNull": bson.A{"$aliases", bson.A{}}}
	set["aliases"] = bson.M{"$concatArrays": bson.A{
		existing,
		bson.M{"$filter": bson.M{
			"input": bson.M{"$literal": aliases},
			"cond":  bson.M{"$not": bson.A{bson.M{"$in": bson.A{"$$this", existing}}}},
		}},
	}}
	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

func (s *MongoStore) Upsert(ctx context.Context, rec models.ProductRecord) (models.ProductRecord, error) {
	ref, err := validate(rec)
	if err != nil {
		return models.ProductRecord{}, err
	}
	rec.Reference = ref

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var merged models.ProductRecord
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"reference": ref}, upsertUpdate(rec), opts).Decode(&merged)
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("failed to upsert %s: %w", ref, err)
	}
	normalizeLoaded(&merged)
	return merged, nil
}

func (s *MongoStore) ListAll(ctx context.Context) ([]models.ProductRecord, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.ProductRecord
	for cur.Next(ctx) {
		var rec models.ProductRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		normalizeLoaded(&rec)
		out = append(out, rec)
	}
	return out, cur.Err()
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
