package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
)

// InferenceClient triggers the disease-classification Lambda for a
// device on demand. The scheduled capture pipeline normally produces
// assessments; this path exists for operator-initiated checks.
type InferenceClient struct {
	svc      *lambda.Client
	function string
}

// NewInferenceClient creates a Lambda-backed inference trigger.
func NewInferenceClient(ctx context.Context, region, function string) (*InferenceClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return &InferenceClient{
		svc:      lambda.NewFromConfig(cfg),
		function: function,
	}, nil
}

type inferenceRequest struct {
	DeviceID string `json:"deviceId"`
}

type inferenceResponse struct {
	DeviceID   string  `json:"deviceId"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

// Classify invokes the inference function synchronously and maps its
// label output to a DiseaseAssessment.
func (c *InferenceClient) Classify(ctx context.Context, deviceID string) (*domain.DiseaseAssessment, error) {
	payload, err := json.Marshal(inferenceRequest{DeviceID: deviceID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	result, err := c.svc.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(c.function),
		Payload:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Lambda: %w", err)
	}
	if result.FunctionError != nil {
		return nil, fmt.Errorf("Lambda function error: %s", *result.FunctionError)
	}
	var resp inferenceResponse
	if err := json.Unmarshal(result.Payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	at := time.Unix(resp.Timestamp, 0).UTC()
	if resp.Timestamp == 0 {
		at = time.Now().UTC()
	}
	return &domain.DiseaseAssessment{
		DeviceID:   deviceID,
		Timestamp:  at,
		Disease:    resp.Label == "disease",
		Confidence: resp.Confidence,
	}, nil
}
