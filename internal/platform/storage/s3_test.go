package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorePutPrefixesKey(t *testing.T) {
	fake := &fakeS3{}
	store := newS3Store(fake, "ledger-exports", "/holdco/")

	key, err := store.Put(context.Background(), "1/2025-01/invoices.csv", "text/csv", []byte("a,b\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "holdco/1/2025-01/invoices.csv", key)
	assert.Equal(t, "ledger-exports", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "text/csv", aws.ToString(fake.input.ContentType))
	assert.Equal(t, int64(5), aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, "a,b\r\n", string(fake.body))
}

func TestS3StorePutWrapsErrors(t *testing.T) {
	store := newS3Store(&fakeS3{err: errors.New("denied")}, "b", "")
	_, err := store.Put(context.Background(), "x.json", "application/json", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage: put x.json: denied")
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), Config{})
	assert.Error(t, err)
}
