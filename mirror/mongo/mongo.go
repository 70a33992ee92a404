// Package mongo is a Mirror stored in a MongoDB collection, one document
// per handle.
//
// MongoDB keeps millisecond time precision, so CreatedAt read back from this
// mirror may be truncated. The resolver overrides it with the ledger's value.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"xdao.co/postledger/keys"
	"xdao.co/postledger/mirror"
	"xdao.co/postledger/model"
)

const (
	DefaultDatabase   = "postledger"
	DefaultCollection = "posts"
)

type Options struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type document struct {
	Handle    string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	Body      string    `bson:"body"`
	CreatedAt time.Time `bson:"createdAt"`
	TxRef     string    `bson:"txRef,omitempty"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type Mirror struct {
	coll   *mongo.Collection
	client *mongo.Client
	now    func() time.Time
}

// New wraps an existing collection. The caller keeps ownership of its client.
func New(coll *mongo.Collection) *Mirror {
	return &Mirror{coll: coll, now: time.Now}
}

// Open connects, pings and ensures the owner index exists.
func Open(ctx context.Context, opts Options) (*Mirror, error) {
	if opts.URI == "" {
		return nil, errors.New("mongo: missing uri")
	}
	if opts.Database == "" {
		opts.Database = DefaultDatabase
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	copts := options.Client().ApplyURI(opts.URI)
	if opts.Timeout > 0 {
		copts.SetTimeout(opts.Timeout)
	}
	client, err := mongo.Connect(ctx, copts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	m := New(client.Database(opts.Database).Collection(opts.Collection))
	m.client = client
	if err := m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *Mirror) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure owner index: %w", err)
	}
	return nil
}

// Close disconnects the client if Open created it.
func (m *Mirror) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(context.Background())
}

func (m *Mirror) Upsert(ctx context.Context, it model.Item) error {
	if err := mirror.CheckItem(it); err != nil {
		return err
	}
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": it.Handle},
		bson.M{"$set": setFields(toDocument(it, m.now()))},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: upsert %s: %w", it.Handle, err)
	}
	return nil
}

func (m *Mirror) Get(ctx context.Context, handle string) (model.Item, error) {
	var doc document
	err := m.coll.FindOne(ctx, bson.M{"_id": handle}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Item{}, mirror.ErrNotFound
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("mongo: get %s: %w", handle, err)
	}
	return fromDocument(doc), nil
}

func (m *Mirror) ByOwner(ctx context.Context, owner string) ([]model.Item, error) {
	cur, err := m.coll.Find(ctx,
		bson.M{"owner": keys.NormalizeAddress(owner)},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo: by owner: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: by owner: %w", err)
	}
	out := make([]model.Item, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out, nil
}

func toDocument(it model.Item, now time.Time) document {
	return document{
		Handle:    it.Handle,
		Owner:     keys.NormalizeAddress(it.Owner),
		Body:      string(it.Body),
		CreatedAt: it.CreatedAt.UTC(),
		TxRef:     it.TxRef,
		UpdatedAt: now.UTC(),
	}
}

// setFields is the $set payload for doc. An empty TxRef is left out so an
// upsert never clears a reference recorded earlier.
func setFields(doc document) bson.M {
	set := bson.M{
		"owner":     doc.Owner,
		"body":      doc.Body,
		"createdAt": doc.CreatedAt,
		"updatedAt": doc.UpdatedAt,
	}
	if doc.TxRef != "" {
		set["txRef"] = doc.TxRef
	}
	return set
}

func fromDocument(d document) model.Item {
	return model.Item{
		Handle:    d.Handle,
		Owner:     d.Owner,
		Body:      json.RawMessage(d.Body),
		CreatedAt: d.CreatedAt.UTC(),
		TxRef:     d.TxRef,
	}
}
