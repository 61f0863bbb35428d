package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/fleet-registry/internal/compliance"
	"github.com/ukydev/fleet-registry/internal/errs"
	"github.com/ukydev/fleet-registry/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errNilCollection = errors.New("mongo collection is nil")

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", errs.ErrInvalidID, id)
	}
	return oid, nil
}

// MongoCollection wraps a MongoDB collection for vehicle operations.
type MongoCollection struct {
	Collection *mongo.Collection
}

// EnsureIndexes creates the unique plate index and the document id lookup index.
func (c *MongoCollection) EnsureIndexes(ctx context.Context) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "plate", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "documents._id", Value: 1}}},
	})
	return err
}

// mongoVehicleCursor wraps a MongoDB cursor for vehicle queries.
type mongoVehicleCursor struct {
	cursor *mongo.Cursor
}

// All retrieves all results from the cursor.
func (m *mongoVehicleCursor) All(ctx context.Context, out interface{}) error {
	return m.cursor.All(ctx, out)
}

// Close closes the cursor.
func (m *mongoVehicleCursor) Close(ctx context.Context) error {
	return m.cursor.Close(ctx)
}

// InsertVehicle inserts a vehicle record into the collection.
func (c *MongoCollection) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.InsertOne(ctx, vehicle)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("plate %s: %w", vehicle.Plate, errs.ErrAlreadyExists)
	}
	return err
}

// FindVehicles queries vehicle records from the collection.
func (c *MongoCollection) FindVehicles(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (VehicleCursor, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	cursor, err := c.Collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return &mongoVehicleCursor{cursor: cursor}, nil
}

// FindVehicleByID finds a vehicle by its ID.
func (c *MongoCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return c.findOne(ctx, bson.M{"_id": oid})
}

// FindVehicleByDocumentID finds the vehicle that owns a document.
func (c *MongoCollection) FindVehicleByDocumentID(ctx context.Context, documentID string) (*models.Vehicle, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	oid, err := objectID(documentID)
	if err != nil {
		return nil, err
	}
	return c.findOne(ctx, bson.M{"documents._id": oid})
}

func (c *MongoCollection) findOne(ctx context.Context, filter bson.M) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := c.Collection.FindOne(ctx, filter).Decode(&vehicle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("vehicle: %w", errs.ErrNotFound)
		}
		return nil, err
	}
	return &vehicle, nil
}

// ReplaceVehicle overwrites a vehicle, including its documents.
func (c *MongoCollection) ReplaceVehicle(ctx context.Context, id string, vehicle models.Vehicle) error {
	if c.Collection == nil {
		return errNilCollection
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	vehicle.ID = oid

	result, err := c.Collection.ReplaceOne(ctx, bson.M{"_id": oid}, vehicle)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("plate %s: %w", vehicle.Plate, errs.ErrAlreadyExists)
	}
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("vehicle: %w", errs.ErrNotFound)
	}
	return nil
}

// DeleteVehicle deletes a vehicle by its ID.
func (c *MongoCollection) DeleteVehicle(ctx context.Context, id string) error {
	if c.Collection == nil {
		return errNilCollection
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("vehicle: %w", errs.ErrNotFound)
	}
	return nil
}

// DeleteAll deletes all vehicle records from the collection.
func (c *MongoCollection) DeleteAll(ctx context.Context) error {
	if c.Collection == nil {
		return errNilCollection
	}
	_, err := c.Collection.DeleteMany(ctx, bson.M{})
	return err
}

// PrefilterFor narrows a roster query to the set axes of c that the database
// can answer. Search, document status and expiry range are left to
// compliance.Apply, which re-checks every axis anyway.
func PrefilterFor(c compliance.Criteria) bson.M {
	filter := bson.M{}
	if len(c.Statuses) > 0 {
		filter["status"] = bson.M{"$in": c.Statuses}
	}
	if len(c.Classes) > 0 {
		filter["class"] = bson.M{"$in": c.Classes}
	}
	if len(c.DocumentCategories) > 0 {
		filter["documents.category"] = bson.M{"$in": c.DocumentCategories}
	}
	return filter
}
