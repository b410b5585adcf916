// Package s3parquet serves OHLCV volume records from parquet exports in S3.
package s3parquet

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/reader"

	"pairbot/config"
	"pairbot/logger"
	"pairbot/models"
)

// volumeRow is the parquet schema of an OHLCV export. Other columns in the
// file are ignored.
type volumeRow struct {
	PairSymbol string  `parquet:"name=pair_symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	PairBase   string  `parquet:"name=pair_base, type=BYTE_ARRAY, convertedtype=UTF8"`
	Volume     float64 `parquet:"name=volume, type=DOUBLE"`
}

type objectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// VolumeSource loads every parquet object under a prefix and yields the
// rows by descending volume. Equal volumes keep object key order, then row
// order within the object.
type VolumeSource struct {
	client objectAPI
	bucket string
	prefix string
	log    *logger.Log
}

// New builds an S3 client from cfg. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg config.S3Config) (*VolumeSource, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket not configured")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	src := NewWithClient(client, bucket, cfg.Prefix)
	src.log.WithComponent("s3parquet").WithFields(logger.Fields{
		"bucket":     bucket,
		"prefix":     cfg.Prefix,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 volume source initialized")
	return src, nil
}

func NewWithClient(client objectAPI, bucket, prefix string) *VolumeSource {
	return &VolumeSource{
		client: client,
		bucket: bucket,
		prefix: prefix,
		log:    logger.GetLogger(),
	}
}

func (s *VolumeSource) EachByVolume(ctx context.Context, fn func(models.VolumeRecord) bool) error {
	keys, err := s.listKeys(ctx)
	if err != nil {
		return err
	}

	var records []models.VolumeRecord
	for _, key := range keys {
		rows, err := s.readObject(ctx, key)
		if err != nil {
			return err
		}
		for _, row := range rows {
			records = append(records, models.VolumeRecord{
				PairSymbol: row.PairSymbol,
				PairBase:   row.PairBase,
				Volume:     row.Volume,
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Volume > records[j].Volume
	})

	s.log.WithComponent("s3parquet").WithFields(logger.Fields{
		"objects": len(keys),
		"rows":    len(records),
	}).Debug("volume export loaded")

	for _, rec := range records {
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

// Count sums the row counts recorded in each object's footer.
func (s *VolumeSource) Count(ctx context.Context) (int64, error) {
	keys, err := s.listKeys(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, key := range keys {
		data, err := s.fetch(ctx, key)
		if err != nil {
			return 0, err
		}
		pr, err := reader.NewParquetReader(newReadFile(data), new(volumeRow), 1)
		if err != nil {
			return 0, fmt.Errorf("open parquet %s: %w", key, err)
		}
		total += pr.GetNumRows()
		pr.ReadStop()
	}
	return total, nil
}

func (s *VolumeSource) listKeys(ctx context.Context) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".parquet") {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *VolumeSource) fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

func (s *VolumeSource) readObject(ctx context.Context, key string) ([]volumeRow, error) {
	data, err := s.fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	pr, err := reader.NewParquetReader(newReadFile(data), new(volumeRow), 1)
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", key, err)
	}
	defer pr.ReadStop()

	rows := make([]volumeRow, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return nil, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("decode parquet %s: %w", key, err)
	}
	return rows, nil
}
