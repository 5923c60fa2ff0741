package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rag-knowledge-backend/models"
)

// MongoDocumentStore keeps document records in the documents collection.
type MongoDocumentStore struct {
	col *mongo.Collection
}

func NewMongoDocumentStore(db *mongo.Database) *MongoDocumentStore {
	return &MongoDocumentStore{col: db.Collection("documents")}
}

func (s *MongoDocumentStore) Create(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := s.col.InsertOne(ctx, doc)
	return err
}

func (s *MongoDocumentStore) Get(ctx context.Context, ownerID, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.col.FindOne(ctx, bson.M{"_id": documentID, "owner_id": ownerID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("document %s not found", documentID)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *MongoDocumentStore) List(ctx context.Context, ownerID string) ([]models.DocumentSummary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.col.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []models.Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	summaries := make([]models.DocumentSummary, 0, len(docs))
	for i := range docs {
		summaries = append(summaries, docs[i].Summary())
	}
	return summaries, nil
}

func (s *MongoDocumentStore) SetStatus(ctx context.Context, documentID string, status string) error {
	return s.update(ctx, documentID, bson.M{"status": status})
}

func (s *MongoDocumentStore) SetTitle(ctx context.Context, documentID, title string) error {
	return s.update(ctx, documentID, bson.M{"title": title})
}

func (s *MongoDocumentStore) SetCompleted(ctx context.Context, documentID string, chunkCount int) error {
	return s.update(ctx, documentID, bson.M{
		"status":      models.StatusCompleted,
		"chunk_count": chunkCount,
	})
}

func (s *MongoDocumentStore) SetFailed(ctx context.Context, documentID string) error {
	return s.update(ctx, documentID, bson.M{"status": models.StatusFailed})
}

func (s *MongoDocumentStore) Delete(ctx context.Context, ownerID, documentID string) error {
	res, err := s.col.DeleteOne(ctx, bson.M{"_id": documentID, "owner_id": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("document %s not found", documentID)
	}
	return nil
}

func (s *MongoDocumentStore) update(ctx context.Context, documentID string, set bson.M) error {
	set["updated_at"] = time.Now().UTC()
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": documentID}, bson.M{"$set": set})
	return err
}

// MongoJobStore keeps ingestion jobs in the ingest_jobs collection. The claim
// is a single conditional FindOneAndUpdate, so two concurrent workers can
// never both observe the job in queued state.
type MongoJobStore struct {
	col *mongo.Collection
}

func NewMongoJobStore(db *mongo.Database) *MongoJobStore {
	return &MongoJobStore{col: db.Collection("ingest_jobs")}
}

func (s *MongoJobStore) Create(ctx context.Context, job *models.IngestJob) error {
	job.State = models.JobQueued
	job.CreatedAt = time.Now().UTC()
	_, err := s.col.InsertOne(ctx, job)
	return err
}

func (s *MongoJobStore) Get(ctx context.Context, ownerID, jobID string) (*models.IngestJob, error) {
	var job models.IngestJob
	err := s.col.FindOne(ctx, bson.M{"_id": jobID, "owner_id": ownerID}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MongoJobStore) Claim(ctx context.Context, jobID string) (*models.IngestJob, error) {
	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var job models.IngestJob
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": jobID, "state": models.JobQueued},
		bson.M{"$set": bson.M{
			"state":      models.JobProcessing,
			"started_at": now,
		}},
		opts,
	).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotClaimable
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *MongoJobStore) SetProgress(ctx context.Context, jobID string, percent int) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": jobID, "state": models.JobProcessing},
		bson.M{"$set": bson.M{"progress": percent}},
	)
	return err
}

func (s *MongoJobStore) Complete(ctx context.Context, jobID string) error {
	return s.finish(ctx, jobID, models.JobCompleted, "")
}

func (s *MongoJobStore) Fail(ctx context.Context, jobID, reason string) error {
	return s.finish(ctx, jobID, models.JobFailed, reason)
}

// finish transitions a processing job to a terminal state. The state filter
// makes terminal states write-once: a late retry cannot overwrite an outcome.
func (s *MongoJobStore) finish(ctx context.Context, jobID string, state, reason string) error {
	set := bson.M{
		"state":        state,
		"completed_at": time.Now().UTC(),
	}
	if state == models.JobCompleted {
		set["progress"] = 100
	}
	if reason != "" {
		set["error"] = reason
	}
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": jobID, "state": models.JobProcessing},
		bson.M{"$set": set},
	)
	return err
}

func (s *MongoJobStore) ReapStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.col.UpdateMany(ctx,
		bson.M{"state": models.JobProcessing, "started_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{
			"state":        models.JobFailed,
			"error":        "timed out in processing",
			"completed_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}
