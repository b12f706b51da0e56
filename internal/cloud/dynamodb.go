package cloud

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
)

// Reading type discriminators stored alongside each item.
const (
	readingTypeTelemetry = "telemetry"
	readingTypeDisease   = "disease"
)

// dynamoClient is the slice of the DynamoDB API this store uses.
type dynamoClient interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoDBStore reads and writes greenhouse records in the single-table
// layout the device fleet already ships: deviceId partition key and a
// sortable "TS#<stamp>" range key, with a readingType discriminator
// separating telemetry from disease assessments.
type DynamoDBStore struct {
	svc   dynamoClient
	table string
}

// NewDynamoDBStore creates a DynamoDB-backed telemetry store.
func NewDynamoDBStore(ctx context.Context, region, table string) (*DynamoDBStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &DynamoDBStore{
		svc:   dynamodb.NewFromConfig(cfg),
		table: table,
	}, nil
}

// record is the DynamoDB item shape shared by both reading types.
type record struct {
	DeviceID    string             `dynamodbav:"deviceId"`
	Timestamp   string             `dynamodbav:"timestamp"`
	ReadingType string             `dynamodbav:"readingType"`
	Metrics     map[string]float64 `dynamodbav:"metrics"`
}

// timestampKey renders the sortable range key. The tilde variant sorts
// after every suffixed key with the same stamp, closing a range scan.
func timestampKey(t time.Time, upper bool) string {
	base := "TS#" + t.UTC().Format("20060102T150405Z")
	if upper {
		return base + "~"
	}
	return base + "-"
}

func parseTimestampKey(key string) (time.Time, error) {
	s := key
	if len(s) > 3 && s[:3] == "TS#" {
		s = s[3:]
	}
	for i := range s {
		if s[i] == '-' {
			s = s[:i]
			break
		}
	}
	return time.Parse("20060102T150405Z", s)
}

// PutReading stores one telemetry reading.
func (c *DynamoDBStore) PutReading(ctx context.Context, rd *domain.TelemetryReading) error {
	metrics := make(map[string]float64, 5)
	for _, m := range domain.Metrics {
		if v, ok := rd.Value(m); ok {
			metrics[string(m)] = v
		}
	}
	if rd.WaterTankEmpty != nil {
		v := 0.0
		if *rd.WaterTankEmpty {
			v = 1.0
		}
		metrics["waterTankEmpty"] = v
	}
	item, err := attributevalue.MarshalMap(record{
		DeviceID:    rd.DeviceID,
		Timestamp:   timestampKey(rd.Timestamp, false),
		ReadingType: readingTypeTelemetry,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}
	_, err = c.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item in DynamoDB: %w", err)
	}
	return nil
}

// GetRecent retrieves readings newer than since, ascending by time.
func (c *DynamoDBStore) GetRecent(ctx context.Context, deviceID string, since time.Time, limit int) ([]domain.TelemetryReading, error) {
	if limit <= 0 {
		limit = 200
	}
	out, err := c.svc.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("deviceId = :did AND #ts > :since"),
		ExpressionAttributeNames: map[string]string{
			"#ts": "timestamp",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":did":   &types.AttributeValueMemberS{Value: deviceID},
			":since": &types.AttributeValueMemberS{Value: timestampKey(since, true)},
		},
		Limit: aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
	}

	var items []record
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal readings: %w", err)
	}

	readings := make([]domain.TelemetryReading, 0, len(items))
	for _, it := range items {
		if it.ReadingType != readingTypeTelemetry {
			continue
		}
		ts, err := parseTimestampKey(it.Timestamp)
		if err != nil {
			continue
		}
		rd := domain.TelemetryReading{DeviceID: it.DeviceID, Timestamp: ts}
		if v, ok := it.Metrics[string(domain.MetricTemperature)]; ok {
			rd.TemperatureC = aws.Float64(v)
		}
		if v, ok := it.Metrics[string(domain.MetricHumidity)]; ok {
			rd.Humidity = aws.Float64(v)
		}
		if v, ok := it.Metrics[string(domain.MetricSoilMoisture)]; ok {
			rd.SoilMoisture = aws.Float64(v)
		}
		if v, ok := it.Metrics[string(domain.MetricLightLux)]; ok {
			rd.LightLux = aws.Float64(v)
		}
		if v, ok := it.Metrics["waterTankEmpty"]; ok {
			rd.WaterTankEmpty = aws.Bool(v == 1)
		}
		readings = append(readings, rd)
	}
	sort.Slice(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
	return readings, nil
}

// PutAssessment stores one disease assessment.
func (c *DynamoDBStore) PutAssessment(ctx context.Context, a *domain.DiseaseAssessment) error {
	disease := 0.0
	if a.Disease {
		disease = 1.0
	}
	item, err := attributevalue.MarshalMap(record{
		DeviceID:    a.DeviceID,
		Timestamp:   timestampKey(a.Timestamp, false),
		ReadingType: readingTypeDisease,
		Metrics: map[string]float64{
			"disease":    disease,
			"confidence": a.Confidence,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	_, err = c.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put assessment in DynamoDB: %w", err)
	}
	return nil
}

// GetLatestAssessment returns the newest disease record for the device,
// or nil when none exists. The filter expression is applied after the
// page read, so pages dense with telemetry can carry zero disease items;
// the query pages through the partition until one is found.
func (c *DynamoDBStore) GetLatestAssessment(ctx context.Context, deviceID string) (*domain.DiseaseAssessment, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("deviceId = :did"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":did": &types.AttributeValueMemberS{Value: deviceID},
			":rt":  &types.AttributeValueMemberS{Value: readingTypeDisease},
		},
		FilterExpression: aws.String("readingType = :rt"),
		ScanIndexForward: aws.Bool(false),
	}
	for {
		out, err := c.svc.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query assessments: %w", err)
		}
		var items []record
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assessments: %w", err)
		}
		for _, it := range items {
			if it.ReadingType != readingTypeDisease {
				continue
			}
			ts, err := parseTimestampKey(it.Timestamp)
			if err != nil {
				continue
			}
			return &domain.DiseaseAssessment{
				DeviceID:   it.DeviceID,
				Timestamp:  ts,
				Disease:    it.Metrics["disease"] == 1,
				Confidence: it.Metrics["confidence"],
			}, nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
