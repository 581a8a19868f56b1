package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/freshtrack/expiry_ocr_gemini/configs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB initializes MongoDB connection
func InitMongoDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connectionURI := configs.MONGO_URI

	clientOptions := options.Client().ApplyURI(connectionURI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(configs.MONGO_DB_NAME)

	log.Println("✅ Connected to MongoDB successfully!")
	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
		log.Println("MongoDB connection closed")
	}
}

// CorrectionLog records a user's manual fix of an extracted expiry date.
// These accumulate as ground truth for tuning the date heuristics.
type CorrectionLog struct {
	UserKey         string    `bson:"user_key" json:"user_key"`
	ProductName     string    `bson:"product_name" json:"product_name"`
	OriginalExpiry  time.Time `bson:"original_expiry" json:"original_expiry"`
	CorrectedExpiry time.Time `bson:"corrected_expiry" json:"corrected_expiry"`
	RawOcrText      string    `bson:"raw_ocr_text" json:"raw_ocr_text"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}

// SaveCorrectionLog inserts a correction entry
func SaveCorrectionLog(entry CorrectionLog) error {
	if mongoDB == nil {
		return fmt.Errorf("mongodb not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	collection := mongoDB.Collection("correction_logs")
	_, err := collection.InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to save correction log: %w", err)
	}

	fmt.Printf("✓ Correction logged for: %s\n", entry.ProductName)
	return nil
}

// GetRecentCorrections returns the newest correction entries for a user,
// most recent first.
func GetRecentCorrections(userKey string, limit int64) ([]CorrectionLog, error) {
	if mongoDB == nil {
		return nil, fmt.Errorf("mongodb not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection("correction_logs")
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := collection.Find(ctx, bson.M{"user_key": userKey}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query correction logs: %w", err)
	}
	defer cursor.Close(ctx)

	var results []CorrectionLog
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	return results, nil
}

// ScanAudit is one completed scan: what came out, what text fed it, and how
// long each stage took.
type ScanAudit struct {
	RequestID  string                   `bson:"request_id" json:"request_id"`
	Source     string                   `bson:"source" json:"source"`
	Result     map[string]interface{}   `bson:"result" json:"result"`
	RawText    string                   `bson:"raw_text" json:"raw_text"`
	Steps      []map[string]interface{} `bson:"steps" json:"steps"`
	DurationMs int64                    `bson:"duration_ms" json:"duration_ms"`
	CreatedAt  time.Time                `bson:"created_at" json:"created_at"`
}

// SaveScanAudit inserts a scan audit record
func SaveScanAudit(audit ScanAudit) error {
	if mongoDB == nil {
		return fmt.Errorf("mongodb not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	collection := mongoDB.Collection("scan_audits")
	_, err := collection.InsertOne(ctx, audit)
	if err != nil {
		return fmt.Errorf("failed to save scan audit: %w", err)
	}

	return nil
}
