package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nerc-project/invoicing/pkg/invoices"
	"github.com/nerc-project/invoicing/pkg/oldpi"
	"github.com/nerc-project/invoicing/pkg/prepay"
	"github.com/nerc-project/invoicing/pkg/processors"
)

const (
	oldPIKey        = "PIs/PI.csv"
	oldPIArchiveDir = "PIs/Archive"
	aliasKey        = "PIs/alias.csv"
	prepayDebitsKey = "Prepay/prepay_debits.csv"
)

// S3Store keeps ledgers and exported invoices in the consortium invoice
// bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	var awsConfig aws.Config
	var err error

	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		awsConfig, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	return &S3Store{client: client, bucket: cfg.S3Bucket}, nil
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", s.bucket, key, err)
	}
	return body, nil
}

func (s *S3Store) put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *S3Store) FetchOldPIs(ctx context.Context) (*oldpi.Ledger, error) {
	body, err := s.get(ctx, oldPIKey)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return &oldpi.Ledger{}, nil
	}
	return oldpi.Read(bytes.NewReader(body))
}

// SaveOldPIs archives the previous ledger object, then replaces it.
func (s *S3Store) SaveOldPIs(ctx context.Context, ledger *oldpi.Ledger) error {
	if previous, err := s.get(ctx, oldPIKey); err == nil && previous != nil {
		archiveKey := path.Join(oldPIArchiveDir, fmt.Sprintf("PI %s.csv", Timestamp()))
		if err := s.put(ctx, archiveKey, previous); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if err := oldpi.Write(&buf, ledger); err != nil {
		return err
	}
	return s.put(ctx, oldPIKey, buf.Bytes())
}

func (s *S3Store) FetchPrepayDebits(ctx context.Context) ([]prepay.DebitEntry, error) {
	body, err := s.get(ctx, prepayDebitsKey)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	return prepay.ReadDebits(bytes.NewReader(body))
}

func (s *S3Store) SavePrepayDebits(ctx context.Context, debits []prepay.DebitEntry) error {
	var buf bytes.Buffer
	if err := prepay.WriteDebits(&buf, debits); err != nil {
		return err
	}
	return s.put(ctx, prepayDebitsKey, buf.Bytes())
}

func (s *S3Store) FetchAliases(ctx context.Context) (map[string][]string, error) {
	body, err := s.get(ctx, aliasKey)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}
	return processors.ReadAliases(bytes.NewReader(body))
}

// PutInvoice stores the artifact under Invoices/<month>/ and a timestamped
// copy under Invoices/<month>/Archive/.
func (s *S3Store) PutInvoice(ctx context.Context, month invoices.Month, filename string, body []byte) error {
	key := path.Join("Invoices", month.String(), filename)
	if err := s.put(ctx, key, body); err != nil {
		return err
	}
	ext := path.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	archiveKey := path.Join("Invoices", month.String(), "Archive",
		fmt.Sprintf("%s %s%s", stem, Timestamp(), ext))
	return s.put(ctx, archiveKey, body)
}
