package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"prepmate/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeS3 records inputs and serves canned outputs.
type fakeS3 struct {
	getOut  *s3.GetObjectOutput
	getErr  error
	putIn   *s3.PutObjectInput
	putErr  error
	listOut *s3.ListObjectsV2Output
	listErr error
}

func (f *fakeS3) GetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return f.getOut, f.getErr
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putIn = params
	return &s3.PutObjectOutput{}, f.putErr
}

func (f *fakeS3) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return f.listOut, f.listErr
}

type fakePresigner struct {
	url string
	err error
	key string
}

func (f *fakePresigner) PresignGetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4PresignedRequest, error) {
	f.key = aws.ToString(params.Key)
	if f.err != nil {
		return nil, f.err
	}
	return &v4PresignedRequest{URL: f.url}, nil
}

func TestGet(t *testing.T) {
	client := &fakeS3{getOut: &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader([]byte("resume text"))),
	}}
	store := newS3StoreWithClients("bucket", client, &fakePresigner{}, testLogger())

	data, err := store.Get(context.Background(), "u/resume.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "resume text" {
		t.Errorf("data = %q", data)
	}
}

func TestGetMissingKey(t *testing.T) {
	client := &fakeS3{getErr: &types.NoSuchKey{}}
	store := newS3StoreWithClients("bucket", client, &fakePresigner{}, testLogger())

	_, err := store.Get(context.Background(), "u/resume.txt")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetOtherError(t *testing.T) {
	client := &fakeS3{getErr: errors.New("access denied")}
	store := newS3StoreWithClients("bucket", client, &fakePresigner{}, testLogger())

	_, err := store.Get(context.Background(), "u/resume.txt")
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want a non-NotFound failure", err)
	}
}

func TestPut(t *testing.T) {
	client := &fakeS3{}
	store := newS3StoreWithClients("bucket", client, &fakePresigner{}, testLogger())

	err := store.Put(context.Background(), "u/preps/acme.pdf", []byte("pdf bytes"), "application/pdf")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if aws.ToString(client.putIn.Bucket) != "bucket" || aws.ToString(client.putIn.Key) != "u/preps/acme.pdf" {
		t.Errorf("put input = %+v", client.putIn)
	}
	if aws.ToString(client.putIn.ContentType) != "application/pdf" {
		t.Errorf("content type = %q", aws.ToString(client.putIn.ContentType))
	}
}

func TestPutEmptyContentType(t *testing.T) {
	client := &fakeS3{}
	store := newS3StoreWithClients("bucket", client, &fakePresigner{}, testLogger())

	if err := store.Put(context.Background(), "k", []byte("x"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if client.putIn.ContentType != nil {
		t.Error("empty content type must be omitted")
	}
}

func TestList(t *testing.T) {
	modified := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeS3{listOut: &s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("u/preps/a.pdf"), LastModified: aws.Time(modified)},
			{Key: aws.String("u/preps/b.pdf"), LastModified: aws.Time(modified)},
		},
	}}
	store := newS3StoreWithClients("bucket", client, &fakePresigner{}, testLogger())

	infos, err := store.List(context.Background(), "u/preps/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "u/preps/a.pdf" || !infos[0].LastModified.Equal(modified) {
		t.Errorf("infos = %+v", infos)
	}
}

func TestPresignGet(t *testing.T) {
	presigner := &fakePresigner{url: "https://bucket.s3.us-east-1.amazonaws.com/u/preps/a.pdf?sig=x"}
	store := newS3StoreWithClients("bucket", &fakeS3{}, presigner, testLogger())

	url, err := store.PresignGet(context.Background(), "u/preps/a.pdf", time.Hour)
	if err != nil {
		t.Fatalf("PresignGet: %v", err)
	}
	if url != presigner.url {
		t.Errorf("url = %q", url)
	}
	if presigner.key != "u/preps/a.pdf" {
		t.Errorf("presigned key = %q", presigner.key)
	}
}

func TestPresignGetFailure(t *testing.T) {
	presigner := &fakePresigner{err: errors.New("no credentials")}
	store := newS3StoreWithClients("bucket", &fakeS3{}, presigner, testLogger())

	_, err := store.PresignGet(context.Background(), "k", time.Hour)
	if err == nil {
		t.Fatal("expected error")
	}
}
