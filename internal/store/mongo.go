package store

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo keeps every document in one collection with a compound (kind, id)
// unique index. The resource body is carried as its JSON text so reads
// round-trip byte-for-byte through the same codec the other stores use.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoDoc struct {
	Kind      string     `bson:"kind"`
	DocID     string     `bson:"docId"`
	Owner     string     `bson:"owner"`
	TS        *time.Time `bson:"ts,omitempty"`
	Data      string     `bson:"data"`
	CreatedAt time.Time  `bson:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt"`
}

func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(database).Collection("documents")
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "docId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "kind", Value: 1}, {Key: "owner", Value: 1}},
		},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	glog.Infof("[store] mongo store ready, database %s", database)
	return &Mongo{client: client, coll: coll}, nil
}

func (m *Mongo) toDocument(md *mongoDoc) *Document {
	return &Document{
		Kind:      md.Kind,
		Owner:     md.Owner,
		ID:        md.DocID,
		TS:        md.TS,
		Data:      []byte(md.Data),
		CreatedAt: md.CreatedAt,
		UpdatedAt: md.UpdatedAt,
	}
}

func (m *Mongo) Get(ctx context.Context, kind, id string) (*Document, error) {
	var md mongoDoc
	err := m.coll.FindOne(ctx, bson.M{"kind": kind, "docId": id}).Decode(&md)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toDocument(&md), nil
}

func (m *Mongo) List(ctx context.Context, kind, owner string) ([]*Document, error) {
	return m.find(ctx, bson.M{"kind": kind, "owner": owner},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (m *Mongo) ListRange(ctx context.Context, kind, owner string, start, end time.Time) ([]*Document, error) {
	filter := bson.M{
		"kind":  kind,
		"owner": owner,
		"ts":    bson.M{"$gte": start, "$lte": end},
	}
	return m.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "ts", Value: 1}}))
}

func (m *Mongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Document, error) {
	cur, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*Document
	for cur.Next(ctx) {
		var md mongoDoc
		if err := cur.Decode(&md); err != nil {
			return nil, err
		}
		out = append(out, m.toDocument(&md))
	}
	return out, cur.Err()
}

func (m *Mongo) Insert(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := m.coll.InsertOne(ctx, &mongoDoc{
		Kind:      doc.Kind,
		DocID:     doc.ID,
		Owner:     doc.Owner,
		TS:        doc.TS,
		Data:      string(doc.Data),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrExists
	}
	return err
}

func (m *Mongo) Update(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{
		"ts":        doc.TS,
		"data":      string(doc.Data),
		"updatedAt": now,
	}}
	res, err := m.coll.UpdateOne(ctx, bson.M{"kind": doc.Kind, "docId": doc.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	doc.UpdatedAt = now
	return nil
}

func (m *Mongo) Delete(ctx context.Context, kind, id string) error {
	res, err := m.coll.DeleteOne(ctx, bson.M{"kind": kind, "docId": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
