package cloud

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampKeyRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

	key := timestampKey(at, false)
	assert.Equal(t, "TS#20260301T123045Z-", key)

	parsed, err := parseTimestampKey(key)
	require.NoError(t, err)
	assert.Equal(t, at, parsed)
}

func TestTimestampKeyUpperBoundSortsAfter(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

	lower := timestampKey(at, false)
	upper := timestampKey(at, true)
	// The exclusive-start key for a range scan must sort after every
	// stored key carrying the same stamp.
	assert.Greater(t, upper, lower)

	next := timestampKey(at.Add(time.Second), false)
	assert.Greater(t, next, upper)
}

func TestTimestampKeyNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2026, 3, 1, 18, 0, 45, 0, loc)

	assert.Equal(t, "TS#20260301T123045Z-", timestampKey(at, false))
}

func TestParseTimestampKeyRejectsGarbage(t *testing.T) {
	_, err := parseTimestampKey("TS#not-a-stamp")
	assert.Error(t, err)

	_, err = parseTimestampKey("")
	assert.Error(t, err)
}

// pagingQueryClient serves a scripted sequence of query pages and
// records the inputs it was called with.
type pagingQueryClient struct {
	pages  []*dynamodb.QueryOutput
	inputs []*dynamodb.QueryInput
}

func (p *pagingQueryClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, nil
}

func (p *pagingQueryClient) Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	// Record a copy: the caller reuses and mutates one QueryInput across
	// pages, so storing the pointer would alias every recorded call.
	cp := *in
	p.inputs = append(p.inputs, &cp)
	out := p.pages[0]
	p.pages = p.pages[1:]
	return out, nil
}

func mustItem(t *testing.T, r record) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(r)
	require.NoError(t, err)
	return item
}

func TestGetLatestAssessmentPagesPastTelemetry(t *testing.T) {
	assessedAt := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)

	// First page holds nothing but telemetry, the shape a device that
	// reports every few seconds produces. The assessment only shows up
	// on the second page.
	firstPage := make([]map[string]types.AttributeValue, 0, 3)
	for i := 0; i < 3; i++ {
		firstPage = append(firstPage, mustItem(t, record{
			DeviceID:    "gh-007",
			Timestamp:   timestampKey(assessedAt.Add(time.Duration(i+1)*time.Minute), false),
			ReadingType: readingTypeTelemetry,
			Metrics:     map[string]float64{"temperatureC": 24.5},
		}))
	}
	startKey := map[string]types.AttributeValue{
		"deviceId":  &types.AttributeValueMemberS{Value: "gh-007"},
		"timestamp": &types.AttributeValueMemberS{Value: timestampKey(assessedAt.Add(time.Minute), false)},
	}
	client := &pagingQueryClient{pages: []*dynamodb.QueryOutput{
		{Items: firstPage, LastEvaluatedKey: startKey},
		{Items: []map[string]types.AttributeValue{mustItem(t, record{
			DeviceID:    "gh-007",
			Timestamp:   timestampKey(assessedAt, false),
			ReadingType: readingTypeDisease,
			Metrics:     map[string]float64{"disease": 1, "confidence": 0.91},
		})}},
	}}

	store := &DynamoDBStore{svc: client, table: "greenhouse"}
	got, err := store.GetLatestAssessment(context.Background(), "gh-007")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Disease)
	assert.Equal(t, 0.91, got.Confidence)
	assert.Equal(t, assessedAt, got.Timestamp)

	require.Len(t, client.inputs, 2)
	assert.Nil(t, client.inputs[0].ExclusiveStartKey)
	assert.Equal(t, startKey, client.inputs[1].ExclusiveStartKey)
}

func TestGetLatestAssessmentNoneStored(t *testing.T) {
	client := &pagingQueryClient{pages: []*dynamodb.QueryOutput{{
		Items: []map[string]types.AttributeValue{mustItem(t, record{
			DeviceID:    "gh-007",
			Timestamp:   timestampKey(time.Now(), false),
			ReadingType: readingTypeTelemetry,
			Metrics:     map[string]float64{"humidity": 61},
		})},
	}}}

	store := &DynamoDBStore{svc: client, table: "greenhouse"}
	got, err := store.GetLatestAssessment(context.Background(), "gh-007")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.Len(t, client.inputs, 1)
}
