/*
Package mongo provides a MongoDB-backed implementation of scheduling.Store.

COLLECTIONS:
  occurrences:    One document per scheduled delivery, _id is a uuid
  daily_limits:   { _id: "YYYY-MM-DD", limit }
  weekly_limits:  A single { _id: "weekly", limits: [7]int } document
  clients:        { _id, name, startDate, endDate }

Days are stored as YYYY-MM-DD strings so range filters compare lexically.

USAGE:
  client, err := mongo.Connect(ctx, "mongodb://localhost:27017")
  store := mongo.New(client, "deliveries")
  if err := store.EnsureIndexes(ctx); err != nil { ... }
*/
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/scheduling"
)

const (
	collectionOccurrences  = "occurrences"
	collectionDailyLimits  = "daily_limits"
	collectionWeeklyLimits = "weekly_limits"
	collectionClients      = "clients"

	weeklyDocID = "weekly"
)

// Connect opens and pings a MongoDB client.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo database: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo database: %w", err)
	}
	return client, nil
}

// Store implements scheduling.Store on MongoDB.
type Store struct {
	occurrences *mongo.Collection
	daily       *mongo.Collection
	weekly      *mongo.Collection
	clients     *mongo.Collection
}

var _ scheduling.Store = (*Store)(nil)

// New returns a store using the named database.
func New(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		occurrences: db.Collection(collectionOccurrences),
		daily:       db.Collection(collectionDailyLimits),
		weekly:      db.Collection(collectionWeeklyLimits),
		clients:     db.Collection(collectionClients),
	}
}

// EnsureIndexes creates the indexes the scheduler's queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.occurrences.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "day", Value: 1}}},
		{Keys: bson.D{{Key: "recurrenceId", Value: 1}, {Key: "clientId", Value: 1}, {Key: "day", Value: 1}}},
	})
	return err
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type occurrenceDoc struct {
	ID              string    `bson:"_id"`
	ClientID        string    `bson:"clientId"`
	Day             string    `bson:"day"`
	RecurrenceID    string    `bson:"recurrenceId,omitempty"`
	SeriesStartDate string    `bson:"seriesStartDate,omitempty"`
	Recurrence      string    `bson:"recurrence"`
	SeriesEnd       string    `bson:"seriesEnd,omitempty"`
	Notes           string    `bson:"notes,omitempty"`
	CreatedAt       time.Time `bson:"createdAt"`
}

func toOccurrenceDoc(o scheduling.Occurrence) occurrenceDoc {
	return occurrenceDoc{
		ID:              o.ID,
		ClientID:        o.ClientID,
		Day:             o.Day.Key(),
		RecurrenceID:    o.RecurrenceID,
		SeriesStartDate: o.SeriesStartDate.Key(),
		Recurrence:      string(o.Recurrence),
		SeriesEnd:       o.SeriesEnd.Key(),
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
	}
}

func (d occurrenceDoc) occurrence() scheduling.Occurrence {
	o := scheduling.Occurrence{
		ID:           d.ID,
		ClientID:     d.ClientID,
		RecurrenceID: d.RecurrenceID,
		Recurrence:   calendar.Kind(d.Recurrence),
		Notes:        d.Notes,
		CreatedAt:    d.CreatedAt,
	}
	o.Day, _ = calendar.ParseKey(d.Day)
	o.SeriesStartDate, _ = calendar.ParseKey(d.SeriesStartDate)
	o.SeriesEnd, _ = calendar.ParseKey(d.SeriesEnd)
	return o
}

func fieldsUpdate(f scheduling.OccurrenceFields) bson.M {
	doc := toOccurrenceDoc(f.Build("", time.Time{}))
	set := bson.M{
		"clientId":   doc.ClientID,
		"day":        doc.Day,
		"recurrence": doc.Recurrence,
	}
	unset := bson.M{}
	optional := map[string]string{
		"recurrenceId":    doc.RecurrenceID,
		"seriesStartDate": doc.SeriesStartDate,
		"seriesEnd":       doc.SeriesEnd,
		"notes":           doc.Notes,
	}
	for k, v := range optional {
		if v == "" {
			unset[k] = ""
		} else {
			set[k] = v
		}
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

type clientDoc struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	StartDate string `bson:"startDate,omitempty"`
	EndDate   string `bson:"endDate,omitempty"`
}

func (d clientDoc) client() scheduling.Client {
	c := scheduling.Client{ID: d.ID, Name: d.Name}
	c.Window.Start, _ = calendar.ParseKey(d.StartDate)
	c.Window.End, _ = calendar.ParseKey(d.EndDate)
	return c
}

// =============================================================================
// OCCURRENCE STORE
// =============================================================================

func (s *Store) GetOccurrence(ctx context.Context, id string) (*scheduling.Occurrence, error) {
	var doc occurrenceDoc
	err := s.occurrences.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, scheduling.ErrOccurrenceNotFound
	}
	if err != nil {
		return nil, err
	}
	occ := doc.occurrence()
	return &occ, nil
}

func (s *Store) ListOccurrences(ctx context.Context, from, to calendar.Day) ([]scheduling.Occurrence, error) {
	return s.findOccurrences(ctx, bson.M{"day": bson.M{"$gte": from.Key(), "$lte": to.Key()}})
}

func (s *Store) FetchOccurrencesBySeries(ctx context.Context, recurrenceID, clientID string, from calendar.Day) ([]scheduling.Occurrence, error) {
	return s.findOccurrences(ctx, bson.M{
		"recurrenceId": recurrenceID,
		"clientId":     clientID,
		"day":          bson.M{"$gte": from.Key()},
	})
}

func (s *Store) findOccurrences(ctx context.Context, filter bson.M) ([]scheduling.Occurrence, error) {
	opts := options.Find().SetSort(bson.D{{Key: "day", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.occurrences.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []occurrenceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]scheduling.Occurrence, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.occurrence())
	}
	return out, nil
}

func (s *Store) FetchOccupancyCounts(ctx context.Context, keys []string) (map[string]int, error) {
	counts := make(map[string]int, len(keys))
	if len(keys) == 0 {
		return counts, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"day": bson.M{"$in": keys}}}},
		{{Key: "$group", Value: bson.M{"_id": "$day", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.occurrences.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Day   string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.Day] = r.Count
	}
	return counts, nil
}

func (s *Store) CreateOccurrence(ctx context.Context, fields scheduling.OccurrenceFields) (scheduling.Occurrence, error) {
	occ := fields.Build(uuid.NewString(), time.Now().UTC().Truncate(time.Millisecond))
	if _, err := s.occurrences.InsertOne(ctx, toOccurrenceDoc(occ)); err != nil {
		return scheduling.Occurrence{}, err
	}
	return occ, nil
}

func (s *Store) UpdateOccurrence(ctx context.Context, id string, fields scheduling.OccurrenceFields) error {
	res, err := s.occurrences.UpdateOne(ctx, bson.M{"_id": id}, fieldsUpdate(fields), options.Update().SetUpsert(false))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return scheduling.ErrOccurrenceNotFound
	}
	return nil
}

func (s *Store) DeleteOccurrence(ctx context.Context, id string) error {
	res, err := s.occurrences.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return scheduling.ErrOccurrenceNotFound
	}
	return nil
}

// =============================================================================
// CAPACITY STORE
// =============================================================================

func (s *Store) FetchWeeklyDefaults(ctx context.Context) (capacity.WeeklyDefaults, error) {
	var doc struct {
		Limits []int `bson:"limits"`
	}
	err := s.weekly.FindOne(ctx, bson.M{"_id": weeklyDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return capacity.WeeklyDefaults(doc.Limits), nil
}

func (s *Store) SaveWeeklyDefaults(ctx context.Context, defaults capacity.WeeklyDefaults) error {
	_, err := s.weekly.UpdateOne(ctx,
		bson.M{"_id": weeklyDocID},
		bson.M{"$set": bson.M{"limits": []int(defaults)}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) FetchDailyOverride(ctx context.Context, key string) (int, bool, error) {
	var doc struct {
		Limit int `bson:"limit"`
	}
	err := s.daily.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return doc.Limit, true, nil
}

func (s *Store) SetDailyOverride(ctx context.Context, key string, limit int) error {
	_, err := s.daily.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"limit": limit, "updatedAt": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

// =============================================================================
// CLIENT STORE
// =============================================================================

func (s *Store) GetClient(ctx context.Context, id string) (*scheduling.Client, error) {
	var doc clientDoc
	err := s.clients.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, scheduling.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	c := doc.client()
	return &c, nil
}

func (s *Store) FetchClientMembershipWindow(ctx context.Context, clientID string) (scheduling.MembershipWindow, error) {
	c, err := s.GetClient(ctx, clientID)
	if err != nil {
		return scheduling.MembershipWindow{}, err
	}
	return c.Window, nil
}

func (s *Store) SaveClient(ctx context.Context, c scheduling.Client) error {
	doc := clientDoc{
		ID:        c.ID,
		Name:      c.Name,
		StartDate: c.Window.Start.Key(),
		EndDate:   c.Window.End.Key(),
	}
	_, err := s.clients.ReplaceOne(ctx, bson.M{"_id": c.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// Reset clears all collections (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	for _, c := range []*mongo.Collection{s.occurrences, s.daily, s.weekly, s.clients} {
		if _, err := c.DeleteMany(ctx, bson.D{}); err != nil {
			return fmt.Errorf("reset %s: %w", c.Name(), err)
		}
	}
	return nil
}
