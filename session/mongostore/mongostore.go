// Package mongostore provides a session.Store backed by MongoDB, grounded
// on the teacher's session client (features/session/mongo): a thin
// collection wrapper around the driver, context timeouts on every
// operation, and an index supporting Load's ordering guarantee.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentcore-go/agentcore/session"
)

const (
	defaultCollection = "agent_session_entries"
	defaultOpTimeout  = 5 * time.Second
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// record is the on-disk shape of one Entry: the full entry is JSON-encoded
// into Payload via session.EncodeEntry so its Message field's tagged Parts
// round-trip without a parallel BSON part-discrimination scheme, and Seq
// gives Load a stable append order that survives compaction/migration.
type record struct {
	Seq     int64  `bson:"seq"`
	ID      string `bson:"id"`
	Payload []byte `bson:"payload"`
}

// Store implements session.Store over a single Mongo collection, one
// document per Entry.
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
	seq     int64
}

// New returns a ready-to-use Store, creating the sequence index it relies on
// for Load's ordering guarantee.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)

	idxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	idx := mongodriver.IndexModel{Keys: bson.D{{Key: "seq", Value: 1}}}
	if _, err := coll.Indexes().CreateOne(idxCtx, idx); err != nil {
		return nil, fmt.Errorf("mongostore: ensure index: %w", err)
	}

	// Continue the sequence after any entries already in the collection.
	var last record
	err := coll.FindOne(idxCtx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})).Decode(&last)
	if err != nil && !errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, fmt.Errorf("mongostore: read last sequence: %w", err)
	}

	return &Store{coll: coll, timeout: timeout, seq: last.Seq}, nil
}

// Append implements session.Store. Entries are assigned a monotonically
// increasing sequence number so Load can reconstruct append order even
// though Mongo does not guarantee natural insertion order is preserved on
// a sharded or replicated collection.
func (s *Store) Append(ctx context.Context, entry session.Entry) error {
	payload, err := session.EncodeEntry(entry)
	if err != nil {
		return fmt.Errorf("mongostore: encode entry: %w", err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.seq++
	rec := record{Seq: s.seq, ID: entry.ID, Payload: payload}
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("mongostore: insert: %w", err)
	}
	return nil
}

// Load implements session.Store, returning every entry in append order.
func (s *Store) Load(ctx context.Context) (session.Tree, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return session.Tree{}, fmt.Errorf("mongostore: find: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var tree session.Tree
	for cur.Next(ctx) {
		var rec record
		if err := cur.Decode(&rec); err != nil {
			return session.Tree{}, fmt.Errorf("mongostore: decode: %w", err)
		}
		entry, err := session.DecodeEntry(rec.Payload)
		if err != nil {
			return session.Tree{}, fmt.Errorf("mongostore: decode entry %s: %w", rec.ID, err)
		}
		tree.Entries = append(tree.Entries, entry)
	}
	if err := cur.Err(); err != nil {
		return session.Tree{}, fmt.Errorf("mongostore: cursor: %w", err)
	}
	return tree, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
