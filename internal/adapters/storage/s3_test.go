package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Yulya9904/cars-insurance/pkg/errors"
)

type fakeS3 struct {
	objects map[string]string
	puts    []*s3.PutObjectInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]string)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = string(body)
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
		}
	}
	return out, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Provider_StoreListRemove(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	provider := NewS3Provider(client, "fleet-docs")
	folder := provider.Folder(7)

	name, err := provider.Store(ctx, folder, "policy.pdf", strings.NewReader("scan"))
	require.NoError(t, err)

	require.Len(t, client.puts, 1)
	put := client.puts[0]
	assert.Equal(t, "fleet-docs", aws.ToString(put.Bucket))
	assert.Equal(t, "insurance/7/"+name, aws.ToString(put.Key))
	assert.Equal(t, "*", aws.ToString(put.IfNoneMatch))

	client.objects["insurance/70/other.pdf"] = "unrelated"
	client.objects["insurance/7/nested/deep.pdf"] = "ignored"

	names, err := provider.List(ctx, folder)
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)

	require.NoError(t, provider.Remove(ctx, folder, name))
	assert.NotContains(t, client.objects, "insurance/7/"+name)

	err = provider.Remove(ctx, folder, name)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}
