package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Sink stores a finished report.
type Sink interface {
	Write(ctx context.Context, report Report) error
}

// FileSink writes eval_report_<timestamp>.json and overwrites
// eval_report_latest.json in Dir.
type FileSink struct {
	Dir string
}

// Path returns the timestamped file name for report.
func (s FileSink) Path(report Report) string {
	return filepath.Join(s.Dir, "eval_report_"+report.GeneratedAt.UTC().Format("20060102_150405")+".json")
}

func (s FileSink) Write(_ context.Context, report Report) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("evaluation: create report dir: %w", err)
	}
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("evaluation: encode report: %w", err)
	}
	for _, p := range []string{s.Path(report), filepath.Join(s.Dir, "eval_report_latest.json")} {
		if err := os.WriteFile(p, raw, 0o644); err != nil {
			return fmt.Errorf("evaluation: write %s: %w", p, err)
		}
	}
	return nil
}

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoSink stores one item per run, keyed by runId.
type DynamoSink struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoSink(client dynamoAPI, tableName string) *DynamoSink {
	if client == nil {
		panic("evaluation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("evaluation: table name cannot be empty")
	}
	return &DynamoSink{client: client, tableName: tableName}
}

type reportItem struct {
	RunID       string                   `dynamodbav:"runId"`
	GeneratedAt string                   `dynamodbav:"generatedAt"`
	BaseURL     string                   `dynamodbav:"baseUrl"`
	TotalCases  int                      `dynamodbav:"totalCases"`
	Passed      int                      `dynamodbav:"passed"`
	Failed      int                      `dynamodbav:"failed"`
	ByCategory  map[string]CategoryStats `dynamodbav:"byCategory"`
	Report      string                   `dynamodbav:"report"`
}

func (s *DynamoSink) Write(ctx context.Context, report Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("evaluation: encode report: %w", err)
	}
	item, err := attributevalue.MarshalMap(reportItem{
		RunID:       report.RunID,
		GeneratedAt: report.GeneratedAt.UTC().Format(time.RFC3339),
		BaseURL:     report.BaseURL,
		TotalCases:  report.TotalCases,
		Passed:      report.Passed,
		Failed:      report.Failed,
		ByCategory:  report.ByCategory,
		Report:      string(raw),
	})
	if err != nil {
		return fmt.Errorf("evaluation: marshal report item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(runId)"),
	}); err != nil {
		return fmt.Errorf("evaluation: put report: %w", err)
	}
	return nil
}
