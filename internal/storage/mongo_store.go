package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps one document per vault. Single-document atomicity gives
// the same all-or-nothing replacement FileStore gets from rename.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger zerolog.Logger
}

type vaultDoc struct {
	ID        string    `bson:"_id"`
	Payload   []byte    `bson:"payload"`
	Secret    string    `bson:"secret"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func NewMongoStore(ctx context.Context, uri, dbName, collName string, logger zerolog.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("storage: mongo uri is empty")
	}
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongo")
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongo")
	}
	return NewMongoStoreWithClient(cli, dbName, collName, logger), nil
}

func NewMongoStoreWithClient(cli *mongo.Client, dbName, collName string, logger zerolog.Logger) *MongoStore {
	return &MongoStore{
		client: cli,
		coll:   cli.Database(dbName).Collection(collName),
		logger: logger,
	}
}

func (m *MongoStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := checkID("exists", id); err != nil {
		return false, err
	}
	n, err := m.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, ioError("exists", id, err, "count vault")
	}
	return n > 0, nil
}

func (m *MongoStore) Create(ctx context.Context, id string) (Record, error) {
	const op = "create"
	if err := checkID(op, id); err != nil {
		return Record{}, err
	}
	secret, err := NewSecret()
	if err != nil {
		return Record{}, ioError(op, id, err, "generate secret")
	}
	now := time.Now()
	doc := vaultDoc{ID: id, Payload: baseline(secret), Secret: secret, CreatedAt: now, UpdatedAt: now}

	// payload and secret land in one insert, so there is nothing to roll back
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Record{}, newError(op, id, KindAlreadyExists, nil)
		}
		return Record{}, ioError(op, id, err, "insert vault")
	}
	m.logger.Info().Str("vault", id).Msg("vault created")
	return Record{ID: id, Payload: doc.Payload, Secret: secret}, nil
}

func (m *MongoStore) Read(ctx context.Context, id string) (Record, error) {
	const op = "read"
	if err := checkID(op, id); err != nil {
		return Record{}, err
	}
	var doc vaultDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, newError(op, id, KindNotFound, nil)
	}
	if err != nil {
		return Record{}, ioError(op, id, err, "find vault")
	}
	return Record{ID: doc.ID, Payload: doc.Payload, Secret: doc.Secret}, nil
}

func (m *MongoStore) Write(ctx context.Context, id string, signed []byte) error {
	const op = "write"
	rec, err := m.Read(ctx, id)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			se.Op = op
		}
		return err
	}
	payload, err := authorize(rec.Secret, signed)
	if err != nil {
		m.logger.Warn().Str("vault", id).Msg("rejected write with invalid signature")
		return newError(op, id, KindInvalidSignature, err)
	}

	// matching on the secret ties the update to the record we verified against
	res, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": id, "secret": rec.Secret},
		bson.M{"$set": bson.M{"payload": payload, "updatedAt": time.Now()}},
	)
	if err != nil {
		return ioError(op, id, err, "update vault")
	}
	if res.MatchedCount == 0 {
		return newError(op, id, KindNotFound, nil)
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, id string) error {
	const op = "delete"
	if err := checkID(op, id); err != nil {
		return err
	}
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return ioError(op, id, err, "delete vault")
	}
	if res.DeletedCount == 0 {
		return newError(op, id, KindNotFound, nil)
	}
	m.logger.Info().Str("vault", id).Msg("vault deleted")
	return nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
