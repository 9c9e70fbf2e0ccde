package db

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// collect runs q once, dropping documents that fail to decode or that keep rejects.
func collect[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error), keep func(T) bool, limit int, logger *zap.Logger) ([]T, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()

	items := make([]T, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		item, err := decode(doc)
		if err != nil {
			logger.Warn("Skipping undecodable document", zap.String("path", doc.Ref.Path), zap.Error(err))
			continue
		}
		if keep != nil && !keep(item) {
			continue
		}
		items = append(items, item)
	}
	return truncate(items, limit), nil
}

// watch turns q.Snapshots into a Stream. Each snapshot carries the full,
// filtered result set in query order.
func watch[T any](ctx context.Context, q firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error), keep func(T) bool, limit int, logger *zap.Logger) Stream[T] {
	return Run(ctx, func(ctx context.Context, send func(Snapshot[T]) bool) error {
		it := q.Snapshots(ctx)
		defer it.Stop()

		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return nil
				}
				return fmt.Errorf("live query failed: %w", err)
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				return fmt.Errorf("failed to read live query snapshot: %w", err)
			}
			items := make([]T, 0, len(docs))
			for _, doc := range docs {
				item, err := decode(doc)
				if err != nil {
					logger.Warn("Skipping undecodable document in live query", zap.String("path", doc.Ref.Path), zap.Error(err))
					continue
				}
				if keep != nil && !keep(item) {
					continue
				}
				items = append(items, item)
			}
			if !send(Snapshot[T]{Items: truncate(items, limit), ReadTime: qs.ReadTime}) {
				return nil
			}
		}
	})
}
