package results

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lattiam/ecswait/internal/awsutil"
	"github.com/lattiam/ecswait/internal/waiter"
	"github.com/lattiam/ecswait/pkg/logging"
)

// DynamoDBAPI is the part of the DynamoDB client the store needs
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoDBStore keeps one item per reference in a DynamoDB table keyed by PK
type DynamoDBStore struct {
	client DynamoDBAPI
	table  string
	ttl    time.Duration
	now    func() time.Time
	logger *logging.Logger
}

// NewDynamoDBStore creates a store on top of client. A positive ttl sets
// an ExpiresAt attribute for the table's time-to-live setting.
func NewDynamoDBStore(client DynamoDBAPI, table string, ttl time.Duration) *DynamoDBStore {
	return &DynamoDBStore{
		client: client,
		table:  table,
		ttl:    ttl,
		now:    time.Now,
		logger: logging.Results,
	}
}

// NewDynamoDBClient builds a DynamoDB client for opts
func NewDynamoDBClient(ctx context.Context, opts awsutil.Options) (*dynamodb.Client, error) {
	cfg, err := awsutil.LoadConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint := awsutil.EndpointOverride(opts.Endpoint); endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	}), nil
}

// EnsureTable creates the table when it does not exist and waits for it
// to become active
func (d *DynamoDBStore) EnsureTable(ctx context.Context) error {
	describeResp, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(d.table),
	})
	if err == nil {
		if describeResp.Table != nil && describeResp.Table.TableStatus == types.TableStatusActive {
			return nil
		}
		return d.waitForTable(ctx)
	}

	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table: %w", err)
	}

	d.logger.Info("Creating result table %s", d.table)
	_, err = d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return d.waitForTable(ctx)
}

func (d *DynamoDBStore) waitForTable(ctx context.Context) error {
	w := dynamodb.NewTableExistsWaiter(d.client)
	if err := w.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("failed to wait for table to be active: %w", err)
	}
	return nil
}

// Put implements Store
func (d *DynamoDBStore) Put(ctx context.Context, res waiter.Result) error {
	rec, err := NewRecord(res, d.now())
	if err != nil {
		return err
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      marshalRecord(rec, d.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to put result: %w", err)
	}
	return nil
}

// Get implements Store
func (d *DynamoDBStore) Get(ctx context.Context, ref waiter.DeploymentReference) (*Record, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: ref.Key()}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	return unmarshalRecord(out.Item), nil
}

// List implements Store
func (d *DynamoDBStore) List(ctx context.Context) ([]*Record, error) {
	var out []*Record
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(d.table),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan results: %w", err)
		}
		for _, item := range page.Items {
			out = append(out, unmarshalRecord(item))
		}
	}
	sortRecords(out)
	return out, nil
}

// Delete implements Store
func (d *DynamoDBStore) Delete(ctx context.Context, ref waiter.DeploymentReference) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: ref.Key()}},
	})
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}

// Close implements Store
func (d *DynamoDBStore) Close() error {
	return nil
}

// marshalRecord converts a record to a DynamoDB item. Empty optional
// strings are left out.
func marshalRecord(rec *Record, ttl time.Duration) map[string]types.AttributeValue {
	res := rec.Result
	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: rec.Key},
		"Cluster":    &types.AttributeValueMemberS{Value: res.Reference.Cluster},
		"Service":    &types.AttributeValueMemberS{Value: res.Reference.Service},
		"Status":     &types.AttributeValueMemberS{Value: string(res.Phase)},
		"Polls":      &types.AttributeValueMemberN{Value: strconv.Itoa(res.Polls)},
		"ElapsedMs":  &types.AttributeValueMemberN{Value: strconv.FormatInt(res.Elapsed.Milliseconds(), 10)},
		"StartedAt":  &types.AttributeValueMemberS{Value: res.StartedAt.UTC().Format(time.RFC3339Nano)},
		"FinishedAt": &types.AttributeValueMemberS{Value: res.FinishedAt.UTC().Format(time.RFC3339Nano)},
		"RecordedAt": &types.AttributeValueMemberS{Value: rec.RecordedAt.UTC().Format(time.RFC3339Nano)},
	}

	optional := map[string]string{
		"TrackedDeploymentID": res.Reference.DeploymentID,
		"DeploymentID":        res.DeploymentID,
		"FailureMessage":      res.Message,
		"WaitID":              res.WaitID,
	}
	for name, value := range optional {
		if value != "" {
			item[name] = &types.AttributeValueMemberS{Value: value}
		}
	}

	if ttl > 0 {
		expires := rec.RecordedAt.Add(ttl).Unix()
		item["ExpiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}
	return item
}

// unmarshalRecord converts a DynamoDB item back into a record. Missing or
// mistyped attributes are left at their zero value.
func unmarshalRecord(item map[string]types.AttributeValue) *Record {
	str := func(name string) string {
		if s, ok := item[name].(*types.AttributeValueMemberS); ok {
			return s.Value
		}
		return ""
	}
	num := func(name string) int64 {
		if n, ok := item[name].(*types.AttributeValueMemberN); ok {
			if v, err := strconv.ParseInt(n.Value, 10, 64); err == nil {
				return v
			}
		}
		return 0
	}
	ts := func(name string) time.Time {
		t, err := time.Parse(time.RFC3339Nano, str(name))
		if err != nil {
			return time.Time{}
		}
		return t
	}

	return &Record{
		Key: str("PK"),
		Result: waiter.Result{
			Phase:   waiter.Phase(str("Status")),
			Message: str("FailureMessage"),
			Reference: waiter.DeploymentReference{
				Cluster:      str("Cluster"),
				Service:      str("Service"),
				DeploymentID: str("TrackedDeploymentID"),
			},
			DeploymentID: str("DeploymentID"),
			WaitID:       str("WaitID"),
			Polls:        int(num("Polls")),
			StartedAt:    ts("StartedAt"),
			FinishedAt:   ts("FinishedAt"),
			Elapsed:      time.Duration(num("ElapsedMs")) * time.Millisecond,
		},
		RecordedAt: ts("RecordedAt"),
	}
}
