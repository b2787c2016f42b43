package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/coocgo/archive"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentModification is returned when a concurrent CURRENT commit
// is detected.
var ErrConcurrentModification = errors.New("archive: concurrent modification detected")

// Compile time check to ensure CommitStore satisfies the archive.Archive interface.
var _ archive.Archive = (*CommitStore)(nil)

// CommitStore is an Archive backed by S3 with DynamoDB for atomic CURRENT
// commits, enabling safe concurrent snapshot publishers.
//
// S3 has no compare-and-swap, so a plain SetCurrent on two concurrent
// publishers silently drops one of them. The commit store keeps snapshot
// objects in S3 and routes CURRENT updates through a DynamoDB commit log:
// each commit conditionally writes the next version, and a lost race
// surfaces as ErrConcurrentModification instead of a lost snapshot.
//
// Table schema:
//   - Partition key: base_uri (string), the archive's S3 location
//   - Sort key: version (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name coocgo-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	arc       *Archive
	ddbClient DDBClient
	tableName string
	baseURI   string
}

// NewCommitStore wraps an S3 archive with a DynamoDB commit log. baseURI
// is the partition key, conventionally "s3://bucket/prefix".
func NewCommitStore(arc *Archive, ddbClient DDBClient, tableName, baseURI string) *CommitStore {
	return &CommitStore{
		arc:       arc,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Open opens an object for reading. The CURRENT marker is resolved from
// the DynamoDB commit log rather than S3.
func (s *CommitStore) Open(ctx context.Context, name string) (archive.Object, error) {
	if name == archive.Current {
		version, snapshotName, err := s.latestCommit(ctx)
		if err != nil {
			return nil, err
		}
		if version == 0 {
			return nil, archive.ErrNotFound
		}
		content := []byte(snapshotName)
		return &commitObject{r: bytes.NewReader(content), size: int64(len(content))}, nil
	}
	return s.arc.Open(ctx, name)
}

// Put writes an object. Writing CURRENT becomes a conditional commit.
func (s *CommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name == archive.Current {
		return s.commit(ctx, string(data))
	}
	return s.arc.Put(ctx, name, data)
}

// Create opens a new object for streaming writes.
func (s *CommitStore) Create(ctx context.Context, name string) (archive.WritableObject, error) {
	return s.arc.Create(ctx, name)
}

// Delete removes an object.
func (s *CommitStore) Delete(ctx context.Context, name string) error {
	return s.arc.Delete(ctx, name)
}

// List returns the names of all objects with the given prefix, sorted.
func (s *CommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.arc.List(ctx, prefix)
}

// latestCommit queries the commit log for the newest committed version.
func (s *CommitStore) latestCommit(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false), // newest first
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to query commit log: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute in commit log")
	}
	nameAttr, ok := item["snapshot_name"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid snapshot_name attribute in commit log")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("failed to parse commit version: %w", err)
	}

	return version, nameAttr.Value, nil
}

// commit atomically appends the next version to the commit log.
func (s *CommitStore) commit(ctx context.Context, snapshotName string) error {
	currentVersion, _, err := s.latestCommit(ctx)
	if err != nil {
		return err
	}

	newVersion := currentVersion + 1

	// Conditional put: only succeed if no one else took this version.
	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":      &types.AttributeValueMemberS{Value: s.baseURI},
			"version":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newVersion)},
			"snapshot_name": &types.AttributeValueMemberS{Value: snapshotName},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version: %w", err)
	}

	return nil
}

// commitObject serves the resolved CURRENT content.
type commitObject struct {
	r    *bytes.Reader
	size int64
}

func (o *commitObject) Read(p []byte) (int, error) {
	return o.r.Read(p)
}

func (o *commitObject) Close() error {
	return nil
}

func (o *commitObject) Size() int64 {
	return o.size
}
