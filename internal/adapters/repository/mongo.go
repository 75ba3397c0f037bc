package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/osena/curator/internal/domain/admission"
	"github.com/osena/curator/internal/domain/model"
	"github.com/osena/curator/internal/domain/quality"
	"github.com/osena/curator/pkg/logger"
)

// Collection names and the rate-counter singleton id.
const (
	colRawItems     = "raw_items"
	colCandidates   = "candidates"
	colPublications = "publications"
	colEngagement   = "engagement"
	colDecisionLog  = "decision_log"
	colTaskStates   = "task_states"
	colRateCounters = "rate_counters"
	colArtifacts    = "model_artifacts"

	counterDocID = "publication_counters"

	defaultConnectTimeout = 10 * time.Second
	defaultOpTimeout      = 30 * time.Second
)

// MongoStore is the production Store backed by MongoDB. Quota reservation
// and task locks rely on Mongo's single-document atomicity: conditional
// updates either match and mutate in one step or leave the document alone.
type MongoStore struct {
	client *mongo.Client

	rawItems     *mongo.Collection
	candidates   *mongo.Collection
	publications *mongo.Collection
	engagement   *mongo.Collection
	decisions    *mongo.Collection
	tasks        *mongo.Collection
	counters     *mongo.Collection
	artifacts    *mongo.Collection

	opTimeout time.Duration
	logger    logger.Logger
}

// NewMongoStore connects, pings, and prepares indexes.
func NewMongoStore(ctx context.Context, uri, database string, opts ...MongoOption) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:       client,
		rawItems:     db.Collection(colRawItems),
		candidates:   db.Collection(colCandidates),
		publications: db.Collection(colPublications),
		engagement:   db.Collection(colEngagement),
		decisions:    db.Collection(colDecisionLog),
		tasks:        db.Collection(colTaskStates),
		counters:     db.Collection(colRateCounters),
		artifacts:    db.Collection(colArtifacts),
		opTimeout:    defaultOpTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	specs := []struct {
		col    *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.rawItems, []mongo.IndexModel{
			{Keys: bson.D{{Key: "content_hash", Value: 1}}},
			{Keys: bson.D{{Key: "fetched_at", Value: 1}}},
		}},
		{s.candidates, []mongo.IndexModel{
			{Keys: bson.D{{Key: "content_hash", Value: 1}}},
			{Keys: bson.D{{Key: "source_url", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "quality_score", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		}},
		{s.publications, []mongo.IndexModel{
			{Keys: bson.D{{Key: "candidate_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "published_at", Value: 1}}},
		}},
		{s.decisions, []mongo.IndexModel{
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		}},
	}

	for _, spec := range specs {
		if _, err := spec.col.Indexes().CreateMany(ctx, spec.models); err != nil {
			return err
		}
	}
	return nil
}

// SaveRawItem records a fetched item.
func (s *MongoStore) SaveRawItem(ctx context.Context, item model.RawItem) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.rawItems.InsertOne(ctx, item)
	return err
}

// RawItemCount returns the size of the raw corpus.
func (s *MongoStore) RawItemCount(ctx context.Context) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.rawItems.CountDocuments(ctx, bson.M{})
	return int(n), err
}

// SaveCandidate upserts a candidate.
func (s *MongoStore) SaveCandidate(ctx context.Context, c model.Candidate) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	opts := options.Replace().SetUpsert(true)
	_, err := s.candidates.ReplaceOne(ctx, bson.M{"_id": c.ID}, c, opts)
	return err
}

// Candidate returns a candidate by id.
func (s *MongoStore) Candidate(ctx context.Context, id string) (model.Candidate, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var c model.Candidate
	err := s.candidates.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Candidate{}, ErrNotFound
	}
	return c, err
}

// SetQualityScore stores a quality score on an existing candidate.
func (s *MongoStore) SetQualityScore(ctx context.Context, id string, score float64) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.candidates.UpdateByID(ctx, id, bson.M{"$set": bson.M{"quality_score": score}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPublished transitions a candidate to published.
func (s *MongoStore) MarkPublished(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.candidates.UpdateByID(ctx, id,
		bson.M{"$set": bson.M{"status": model.StatusPublished}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// EligibleCandidates returns pending scored candidates, highest score first.
func (s *MongoStore) EligibleCandidates(ctx context.Context) ([]model.Candidate, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{
		"status":        model.StatusPending,
		"quality_score": bson.M{"$exists": true},
	}
	opts := options.Find().SetSort(bson.D{{Key: "quality_score", Value: -1}})
	cursor, err := s.candidates.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []model.Candidate
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExpirePendingBefore rejects pending candidates created before cutoff.
func (s *MongoStore) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.candidates.UpdateMany(ctx,
		bson.M{"status": model.StatusPending, "created_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"status": model.StatusRejected}})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

// PendingCount returns the number of pending candidates.
func (s *MongoStore) PendingCount(ctx context.Context) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.candidates.CountDocuments(ctx, bson.M{"status": model.StatusPending})
	return int(n), err
}

// HasContentHash reports whether hash exists among raw items or candidates.
func (s *MongoStore) HasContentHash(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	for _, col := range []*mongo.Collection{s.rawItems, s.candidates} {
		err := col.FindOne(ctx, bson.M{"content_hash": hash},
			options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return false, err
		}
	}
	return false, nil
}

// HasActiveSourceURL reports whether url belongs to a pending or published
// candidate.
func (s *MongoStore) HasActiveSourceURL(ctx context.Context, url string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{
		"source_url": url,
		"status":     bson.M{"$in": []model.CandidateStatus{model.StatusPending, model.StatusPublished}},
	}
	err := s.candidates.FindOne(ctx, filter,
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return false, err
}

// RecentTitles returns titles seen at or after since.
func (s *MongoStore) RecentTitles(ctx context.Context, since time.Time) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var out []string
	collect := func(col *mongo.Collection, timeField string) error {
		cursor, err := col.Find(ctx,
			bson.M{timeField: bson.M{"$gte": since}},
			options.Find().SetProjection(bson.M{"title": 1}))
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			var doc struct {
				Title string `bson:"title"`
			}
			if err := cursor.Decode(&doc); err != nil {
				return err
			}
			out = append(out, doc.Title)
		}
		return cursor.Err()
	}

	if err := collect(s.rawItems, "fetched_at"); err != nil {
		return nil, err
	}
	if err := collect(s.candidates, "created_at"); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentEmbeddings returns stored candidate embeddings from since onward.
func (s *MongoStore) RecentEmbeddings(ctx context.Context, since time.Time) ([][]float32, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	filter := bson.M{
		"created_at": bson.M{"$gte": since},
		"embedding":  bson.M{"$exists": true, "$ne": nil},
	}
	cursor, err := s.candidates.Find(ctx, filter,
		options.Find().SetProjection(bson.M{"embedding": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out [][]float32
	for cursor.Next(ctx) {
		var doc struct {
			Embedding []float32 `bson:"embedding"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		if len(doc.Embedding) > 0 {
			out = append(out, doc.Embedding)
		}
	}
	return out, cursor.Err()
}

// SavePublication persists a publication record.
func (s *MongoStore) SavePublication(ctx context.Context, rec model.PublicationRecord) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.publications.InsertOne(ctx, rec)
	return err
}

// Publications returns all publication records, oldest first.
func (s *MongoStore) Publications(ctx context.Context) ([]model.PublicationRecord, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	cursor, err := s.publications.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "published_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []model.PublicationRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetEngagementScore stores the recomputed score on a publication.
func (s *MongoStore) SetEngagementScore(ctx context.Context, publicationID string, score float64) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.publications.UpdateByID(ctx, publicationID,
		bson.M{"$set": bson.M{"engagement_score": score}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// EngagementAggregate returns the reader-signal aggregate for a publication.
func (s *MongoStore) EngagementAggregate(ctx context.Context, publicationID string) (model.EngagementAggregate, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var agg model.EngagementAggregate
	err := s.engagement.FindOne(ctx, bson.M{"_id": publicationID}).Decode(&agg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.EngagementAggregate{}, false, nil
	}
	if err != nil {
		return model.EngagementAggregate{}, false, err
	}
	return agg, true, nil
}

// UpsertEngagement replaces the aggregate for a publication.
func (s *MongoStore) UpsertEngagement(ctx context.Context, agg model.EngagementAggregate) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := s.engagement.ReplaceOne(ctx, bson.M{"_id": agg.PublicationID}, agg, opts)
	return err
}

// AppendDecision appends an admission decision. Entries are never updated
// or deleted.
func (s *MongoStore) AppendDecision(ctx context.Context, entry model.DecisionLogEntry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.decisions.InsertOne(ctx, entry)
	return err
}

// Decisions returns up to limit entries, newest first.
func (s *MongoStore) Decisions(ctx context.Context, limit int) ([]model.DecisionLogEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.decisions.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var out []model.DecisionLogEntry
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// rollWindows resets whichever counter windows have expired. Each reset is
// a conditional update matching only the stale stamp, so concurrent callers
// reset a window exactly once.
func (s *MongoStore) rollWindows(ctx context.Context, now time.Time) error {
	day := model.DayKey(now)
	hour := model.HourKey(now)

	_, err := s.counters.UpdateOne(ctx,
		bson.M{"_id": counterDocID},
		bson.M{"$setOnInsert": bson.M{
			"daily_count":      0,
			"hourly_count":     0,
			"daily_reset_date": day,
			"hourly_reset_at":  hour,
		}},
		options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}

	if _, err := s.counters.UpdateOne(ctx,
		bson.M{"_id": counterDocID, "daily_reset_date": bson.M{"$ne": day}},
		bson.M{"$set": bson.M{"daily_count": 0, "daily_reset_date": day}}); err != nil {
		return err
	}
	if _, err := s.counters.UpdateOne(ctx,
		bson.M{"_id": counterDocID, "hourly_reset_at": bson.M{"$ne": hour}},
		bson.M{"$set": bson.M{"hourly_count": 0, "hourly_reset_at": hour}}); err != nil {
		return err
	}
	return nil
}

// Counters reads the rate counters for the windows containing now.
func (s *MongoStore) Counters(ctx context.Context, now time.Time) (model.RateCounters, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.rollWindows(ctx, now); err != nil {
		return model.RateCounters{}, err
	}

	var c model.RateCounters
	err := s.counters.FindOne(ctx, bson.M{"_id": counterDocID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.RateCounters{
			DailyResetDate: model.DayKey(now),
			HourlyResetAt:  model.HourKey(now),
		}, nil
	}
	return c, err
}

// ReserveQuota consumes one publication slot through a single conditional
// increment, so the caps hold across processes.
func (s *MongoStore) ReserveQuota(ctx context.Context, now time.Time, maxPerDay, maxPerHour int) (model.RateCounters, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.rollWindows(ctx, now); err != nil {
		return model.RateCounters{}, err
	}

	filter := bson.M{
		"_id":              counterDocID,
		"daily_count":      bson.M{"$lt": maxPerDay},
		"hourly_count":     bson.M{"$lt": maxPerHour},
		"daily_reset_date": model.DayKey(now),
		"hourly_reset_at":  model.HourKey(now),
	}
	update := bson.M{"$inc": bson.M{"daily_count": 1, "hourly_count": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var c model.RateCounters
	err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, rErr := s.Counters(ctx, now)
		if rErr != nil {
			return model.RateCounters{}, rErr
		}
		if current.DailyCount >= maxPerDay {
			return model.RateCounters{}, admission.ErrDailyLimitReached
		}
		return model.RateCounters{}, admission.ErrHourlyLimitReached
	}
	return c, err
}

// TaskState returns the persisted state for a task.
func (s *MongoStore) TaskState(ctx context.Context, name string) (model.TaskState, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var state model.TaskState
	err := s.tasks.FindOne(ctx, bson.M{"_id": name}).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.TaskState{}, false, nil
	}
	if err != nil {
		return model.TaskState{}, false, err
	}
	return state, true, nil
}

// SaveTaskState upserts a task state record.
func (s *MongoStore) SaveTaskState(ctx context.Context, state model.TaskState) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	_, err := s.tasks.ReplaceOne(ctx, bson.M{"_id": state.Name}, state, opts)
	return err
}

// AcquireTaskLock is a compare-and-swap on the persisted lock flag: the
// conditional update matches only while the flag is clear, so exactly one
// caller wins.
func (s *MongoStore) AcquireTaskLock(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": name, "lock_flag": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"lock_flag": true}},
		options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// Lost the race: the document exists with the flag held.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1 || res.UpsertedCount == 1, nil
}

// ReleaseTaskLock clears the lock flag and records the run time.
func (s *MongoStore) ReleaseTaskLock(ctx context.Context, name string, lastRunAt time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.tasks.UpdateByID(ctx, name,
		bson.M{"$set": bson.M{"lock_flag": false, "last_run_at": lastRunAt}})
	return err
}

// ClearTaskLock clears the lock flag unconditionally.
func (s *MongoStore) ClearTaskLock(ctx context.Context, name string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.tasks.UpdateByID(ctx, name,
		bson.M{"$set": bson.M{"lock_flag": false}})
	return err
}

// SaveModelArtifact persists a trained artifact.
func (s *MongoStore) SaveModelArtifact(ctx context.Context, artifact model.ModelArtifact) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.artifacts.InsertOne(ctx, artifact)
	return err
}

// LatestModelArtifact returns the most recently trained artifact.
func (s *MongoStore) LatestModelArtifact(ctx context.Context) (model.ModelArtifact, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "trained_at", Value: -1}})
	var artifact model.ModelArtifact
	err := s.artifacts.FindOne(ctx, bson.M{}, opts).Decode(&artifact)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.ModelArtifact{}, false, nil
	}
	if err != nil {
		return model.ModelArtifact{}, false, err
	}
	return artifact, true, nil
}

// TrainingPairs joins published candidates with their non-zero engagement
// scores.
func (s *MongoStore) TrainingPairs(ctx context.Context) ([]quality.TrainingPair, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	cursor, err := s.publications.Find(ctx, bson.M{"engagement_score": bson.M{"$gt": 0}})
	if err != nil {
		return nil, err
	}
	var pubs []model.PublicationRecord
	if err := cursor.All(ctx, &pubs); err != nil {
		return nil, err
	}
	if len(pubs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pubs))
	scoreByCandidate := make(map[string]float64, len(pubs))
	for _, rec := range pubs {
		if rec.EngagementScore == nil {
			continue
		}
		ids = append(ids, rec.CandidateID)
		scoreByCandidate[rec.CandidateID] = *rec.EngagementScore
	}

	candCursor, err := s.candidates.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var cands []model.Candidate
	if err := candCursor.All(ctx, &cands); err != nil {
		return nil, err
	}

	out := make([]quality.TrainingPair, 0, len(cands))
	for _, c := range cands {
		out = append(out, quality.TrainingPair{
			Candidate:  c,
			Engagement: scoreByCandidate[c.ID],
		})
	}
	return out, nil
}
