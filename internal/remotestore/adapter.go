package remotestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/hazelgrove/moodsync/internal/models"
)

const (
	usersCollection    = "users"
	moodLogsCollection = "mood_logs"

	// The store commits bulk deletes in independent batches of at most this
	// many documents.
	maxDeleteBatchSize = 500
)

// Connect dials the remote document store and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}

// Adapter is a thin accessor over the per-user documents in the remote store.
// It carries no business logic; failures are returned to callers as-is.
type Adapter struct {
	client       *mongo.Client
	databaseName string
}

func NewAdapter(client *mongo.Client, databaseName string) *Adapter {
	return &Adapter{
		client:       client,
		databaseName: databaseName,
	}
}

func (adapter *Adapter) users() *mongo.Collection {
	return adapter.client.Database(adapter.databaseName).Collection(usersCollection)
}

func (adapter *Adapter) moodLogs() *mongo.Collection {
	return adapter.client.Database(adapter.databaseName).Collection(moodLogsCollection)
}

func (adapter *Adapter) Ping(ctx context.Context) error {
	return adapter.client.Ping(ctx, nil)
}

// UserDocument fetches the user's document. The second result is false when no
// document exists for the user.
func (adapter *Adapter) UserDocument(ctx context.Context, userID string) (*models.UserMoodDocument, bool, error) {
	doc := &models.UserMoodDocument{}
	err := adapter.users().FindOne(ctx, bson.M{"_id": userID}).Decode(doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch user document %s: %w", userID, err)
	}
	return doc, true, nil
}

// MergeUserFields upserts only the given fields into the user's document.
// Remote fields not named here (profile, preferences) are preserved.
func (adapter *Adapter) MergeUserFields(ctx context.Context, userID string, fields map[string]any) error {
	_, err := adapter.users().UpdateOne(
		ctx,
		bson.M{"_id": userID},
		bson.M{"$set": fields},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("merge user document %s: %w", userID, err)
	}
	return nil
}

type moodLogRecord struct {
	ID                  string `bson:"_id"`
	UserID              string `bson:"userId"`
	models.MoodLogEntry `bson:",inline"`
}

func moodLogID(userID string, date string) string {
	return userID + ":" + date
}

// PutMoodLog upserts the user's entry for its date; writing the same date
// again overwrites the previous entry.
func (adapter *Adapter) PutMoodLog(ctx context.Context, userID string, entry models.MoodLogEntry) error {
	record := moodLogRecord{
		ID:           moodLogID(userID, entry.Date),
		UserID:       userID,
		MoodLogEntry: entry,
	}
	_, err := adapter.moodLogs().ReplaceOne(ctx, bson.M{"_id": record.ID}, record, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put mood log %s: %w", record.ID, err)
	}
	return nil
}

// MoodLogs returns all of the user's entries in date order.
func (adapter *Adapter) MoodLogs(ctx context.Context, userID string) ([]models.MoodLogEntry, error) {
	cursor, err := adapter.moodLogs().Find(
		ctx,
		bson.M{"userId": userID},
		options.Find().SetSort(bson.M{"date": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("list mood logs for %s: %w", userID, err)
	}

	records := make([]moodLogRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode mood logs for %s: %w", userID, err)
	}

	entries := make([]models.MoodLogEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, record.MoodLogEntry)
	}
	return entries, nil
}

// DeleteMoodLogs removes the user's entries for the given dates. Deletes are
// committed in independent batches running concurrently; the first batch
// failure fails the whole operation.
func (adapter *Adapter) DeleteMoodLogs(ctx context.Context, userID string, dates []string) error {
	ids := make([]string, 0, len(dates))
	for _, date := range dates {
		ids = append(ids, moodLogID(userID, date))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, batch := range chunkIDs(ids, maxDeleteBatchSize) {
		batch := batch
		group.Go(func() error {
			if _, err := adapter.moodLogs().DeleteMany(groupCtx, bson.M{"_id": bson.M{"$in": batch}}); err != nil {
				return fmt.Errorf("delete mood log batch of %d: %w", len(batch), err)
			}
			return nil
		})
	}
	return group.Wait()
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
