package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Installation is one workspace's install record, written by the OAuth
// install flow and read back when posting with a workspace-specific token.
type Installation struct {
	TeamID      string    `json:"team_id"`
	TeamName    string    `json:"team_name"`
	BotToken    string    `json:"bot_token"`
	BotUserID   string    `json:"bot_user_id"`
	InstalledAt time.Time `json:"installed_at"`
}

type InstallStoreConfig struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
}

// InstallStore persists workspace installations as JSON objects in a bucket,
// keyed by team id. The bucket is the durable copy; instances hold nothing.
type InstallStore struct {
	client *s3.Client
	bucket string
}

func NewInstallStore(cfg *InstallStoreConfig) (*InstallStore, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) { // nolint:staticcheck
		if cfg.EndpointURL != "" {
			return aws.Endpoint{ // nolint:staticcheck
				PartitionID:       "aws",
				URL:               cfg.EndpointURL,
				HostnameImmutable: true, // Important for MinIO
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{} // nolint:staticcheck
	})

	var awsCfg aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = aws_config.LoadDefaultConfig(context.TODO(),
			aws_config.WithEndpointResolverWithOptions(resolver),
			aws_config.WithRegion(cfg.Region),
			aws_config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		)
	} else {
		awsCfg, err = aws_config.LoadDefaultConfig(context.TODO(),
			aws_config.WithEndpointResolverWithOptions(resolver),
			aws_config.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true // needed for MinIO
	})

	return &InstallStore{client: client, bucket: cfg.BucketName}, nil
}

func installationKey(teamID string) string {
	return fmt.Sprintf("installations/%s.json", teamID)
}

func (s *InstallStore) Save(ctx context.Context, inst Installation) error {
	if inst.TeamID == "" {
		return fmt.Errorf("installation missing team id")
	}

	body, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("could not marshal installation: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(installationKey(inst.TeamID)),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("could not store installation for team %s: %w", inst.TeamID, err)
	}
	return nil
}

func (s *InstallStore) Find(ctx context.Context, teamID string) (Installation, error) {
	var inst Installation

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(installationKey(teamID)),
	})
	if err != nil {
		return inst, fmt.Errorf("could not load installation for team %s: %w", teamID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return inst, fmt.Errorf("could not read installation for team %s: %w", teamID, err)
	}
	if err := json.Unmarshal(data, &inst); err != nil {
		return inst, fmt.Errorf("invalid installation record for team %s: %w", teamID, err)
	}
	return inst, nil
}

func (s *InstallStore) Delete(ctx context.Context, teamID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(installationKey(teamID)),
	})
	if err != nil {
		return fmt.Errorf("could not delete installation for team %s: %w", teamID, err)
	}
	return nil
}
