package s3parquet

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"pairbot/models"
)

type fakeS3 struct {
	objects  map[string][]byte
	pageSize int
	listErr  error
	getErr   error
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := len(keys)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func writeParquet(t *testing.T, rows ...volumeRow) []byte {
	t.Helper()
	mf := newWriteFile()
	pw, err := writer.NewParquetWriter(mf, new(volumeRow), 1)
	require.NoError(t, err)
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range rows {
		require.NoError(t, pw.Write(r))
	}
	require.NoError(t, pw.WriteStop())
	return append([]byte(nil), mf.Bytes()...)
}

func collect(t *testing.T, src *VolumeSource) []models.VolumeRecord {
	t.Helper()
	var out []models.VolumeRecord
	require.NoError(t, src.EachByVolume(context.Background(), func(rec models.VolumeRecord) bool {
		out = append(out, rec)
		return true
	}))
	return out
}

func TestEachByVolumeSortsAcrossObjects(t *testing.T) {
	client := &fakeS3{pageSize: 1, objects: map[string][]byte{
		"ohlcv/2024-03-01.parquet": writeParquet(t,
			volumeRow{"ETH", "USD", 50},
			volumeRow{"BTC", "USD", 100},
		),
		"ohlcv/2024-03-02.parquet": writeParquet(t,
			volumeRow{"btc", "usd", 100},
			volumeRow{"SOL", "USD", 75},
		),
		"ohlcv/_manifest.json": []byte("{}"),
	}}

	got := collect(t, NewWithClient(client, "exports", "ohlcv/"))
	assert.Equal(t, []models.VolumeRecord{
		{PairSymbol: "BTC", PairBase: "USD", Volume: 100},
		{PairSymbol: "btc", PairBase: "usd", Volume: 100},
		{PairSymbol: "SOL", PairBase: "USD", Volume: 75},
		{PairSymbol: "ETH", PairBase: "USD", Volume: 50},
	}, got)
}

func TestEachByVolumeEarlyStop(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{
		"a.parquet": writeParquet(t, volumeRow{"A", "X", 3}, volumeRow{"B", "X", 2}, volumeRow{"C", "X", 1}),
	}}

	calls := 0
	err := NewWithClient(client, "exports", "").EachByVolume(context.Background(), func(models.VolumeRecord) bool {
		calls++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEachByVolumeEmptyPrefix(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	assert.Empty(t, collect(t, NewWithClient(client, "exports", "ohlcv/")))
}

func TestEachByVolumeErrors(t *testing.T) {
	listErr := NewWithClient(&fakeS3{listErr: errors.New("AccessDenied")}, "exports", "")
	err := listErr.EachByVolume(context.Background(), func(models.VolumeRecord) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list s3://exports/")

	getErr := NewWithClient(&fakeS3{
		objects: map[string][]byte{"a.parquet": nil},
		getErr:  errors.New("SlowDown"),
	}, "exports", "")
	err = getErr.EachByVolume(context.Background(), func(models.VolumeRecord) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get s3://exports/a.parquet")

	corrupt := NewWithClient(&fakeS3{objects: map[string][]byte{"a.parquet": []byte("not parquet")}}, "exports", "")
	err = corrupt.EachByVolume(context.Background(), func(models.VolumeRecord) bool { return true })
	require.Error(t, err)
}

func TestCountReadsFooters(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{
		"a.parquet": writeParquet(t, volumeRow{"A", "X", 1}, volumeRow{"B", "X", 2}),
		"b.parquet": writeParquet(t, volumeRow{"C", "X", 3}),
	}}

	n, err := NewWithClient(client, "exports", "").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
