package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	countersCollection = "counters"
	createdAtField     = "_created_at"
	updatedAtField     = "_updated_at"
)

type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	// Root nests every collection under a document path, e.g. "tenants/bethel".
	Root string
}

// FirestoreStore maps collections onto Firestore collections.
type FirestoreStore struct {
	client *firestore.Client
	root   string
}

func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	logger.Info("firestore store initialized", "project", cfg.ProjectID, "root", cfg.Root)
	return &FirestoreStore{client: client, root: cfg.Root}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) collection(name string) *firestore.CollectionRef {
	if s.root == "" {
		return s.client.Collection(name)
	}
	return s.client.Doc(s.root).Collection(name)
}

func (s *FirestoreStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if collection == "" {
		return "", ErrEmptyCollection
	}
	data := Merge(fields, Fields{createdAtField: firestore.ServerTimestamp, updatedAtField: firestore.ServerTimestamp})
	ref, _, err := s.collection(collection).Add(ctx, map[string]any(data))
	if err != nil {
		return "", fmt.Errorf("failed to create %s record: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	ref := s.collection(collection).Doc(id)
	if _, err := s.get(ctx, ref); err != nil {
		return err
	}
	data := Merge(fields, Fields{updatedAtField: firestore.ServerTimestamp})
	if _, err := ref.Set(ctx, map[string]any(data), firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	ref := s.collection(collection).Doc(id)
	if _, err := s.get(ctx, ref); err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	snap, err := s.get(ctx, s.collection(collection).Doc(id))
	if err != nil {
		return nil, err
	}
	r := snapshotRecord(collection, snap)
	return &r, nil
}

func (s *FirestoreStore) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	query := s.collection(collection).Query
	for _, f := range q.Where {
		query = query.Where(f.Field, "==", f.Value)
	}
	dir := firestore.Asc
	if q.Desc {
		dir = firestore.Desc
	}
	query = query.OrderBy(createdAtField, dir)
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	it := query.Documents(ctx)
	defer it.Stop()

	var out []Record
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", collection, err)
		}
		out = append(out, snapshotRecord(collection, snap))
	}
	return out, nil
}

// Subscribe follows query snapshots. The first snapshot reports every existing record as added.
func (s *FirestoreStore) Subscribe(ctx context.Context, collection string, onChange func(Change)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.collection(collection).Snapshots(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			qs, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled && !errors.Is(err, iterator.Done) && ctx.Err() == nil {
					logger.Warn("firestore snapshot listener stopped", "collection", collection, "error", err)
				}
				return
			}
			for _, ch := range qs.Changes {
				onChange(Change{Kind: changeKind(ch.Kind), Record: snapshotRecord(collection, ch.Doc)})
			}
		}
	}()

	return func() {
		cancel()
		it.Stop()
		<-done
	}, nil
}

func (s *FirestoreStore) Increment(ctx context.Context, counter string, delta int64) (int64, error) {
	ref := s.collection(countersCollection).Doc(counter)
	var value int64
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		value = 0
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			if v, ok := snap.Data()["value"].(int64); ok {
				value = v
			}
		case status.Code(err) != codes.NotFound:
			return err
		}
		value += delta
		return tx.Set(ref, map[string]any{"value": firestore.Increment(delta)}, firestore.MergeAll)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", counter, err)
	}
	return value, nil
}

func (s *FirestoreStore) get(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return snap, nil
}

func snapshotRecord(collection string, snap *firestore.DocumentSnapshot) Record {
	fields := Fields(snap.Data())
	delete(fields, createdAtField)
	delete(fields, updatedAtField)
	return Record{
		ID:         snap.Ref.ID,
		Collection: collection,
		Fields:     fields,
		CreatedAt:  nonZero(snap.CreateTime),
		UpdatedAt:  nonZero(snap.UpdateTime),
	}
}

func changeKind(k firestore.DocumentChangeKind) ChangeKind {
	switch k {
	case firestore.DocumentAdded:
		return ChangeAdded
	case firestore.DocumentRemoved:
		return ChangeRemoved
	default:
		return ChangeModified
	}
}

func nonZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
