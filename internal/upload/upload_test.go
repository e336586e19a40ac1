package upload_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"discback/internal/config"
	"discback/internal/services"
	"discback/internal/upload"
)

type fakePutter struct {
	calls  []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestUploadImagePutsObject(t *testing.T) {
	fake := &fakePutter{}
	up := upload.New(fake, "backups", "/nightly/", nil)
	imagePath := writeTemp(t, "discback-20240101-010203.iso", "iso-bytes")

	res, err := up.UploadImage(context.Background(), imagePath)
	if err != nil {
		t.Fatalf("UploadImage failed: %v", err)
	}
	if res.Key != "nightly/images/discback-20240101-010203.iso" || res.Bytes != 9 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected one put, got %d", len(fake.calls))
	}
	call := fake.calls[0]
	if aws.ToString(call.Bucket) != "backups" || aws.ToString(call.Key) != res.Key {
		t.Fatalf("unexpected put target %s/%s", aws.ToString(call.Bucket), aws.ToString(call.Key))
	}
	if aws.ToInt64(call.ContentLength) != 9 || string(fake.bodies[0]) != "iso-bytes" {
		t.Fatalf("unexpected body %q length %d", fake.bodies[0], aws.ToInt64(call.ContentLength))
	}
}

func TestUploadDigestUsesDigestPrefix(t *testing.T) {
	fake := &fakePutter{}
	up := upload.New(fake, "backups", "", nil)
	digestPath := writeTemp(t, "home-user.digest.json", "{}")

	res, err := up.UploadDigest(context.Background(), digestPath)
	if err != nil {
		t.Fatalf("UploadDigest failed: %v", err)
	}
	if res.Key != "digests/home-user.digest.json" {
		t.Fatalf("unexpected key %q", res.Key)
	}
	if aws.ToString(fake.calls[0].ContentType) != "application/json" {
		t.Fatalf("unexpected content type %q", aws.ToString(fake.calls[0].ContentType))
	}
}

func TestUploadErrors(t *testing.T) {
	ctx := context.Background()

	up := upload.New(&fakePutter{}, "backups", "", nil)
	if _, err := up.UploadImage(ctx, filepath.Join(t.TempDir(), "missing.iso")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	failing := upload.New(&fakePutter{err: errors.New("access denied")}, "backups", "", nil)
	_, err := failing.UploadImage(ctx, writeTemp(t, "a.iso", "x"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}

	noBucket := upload.New(&fakePutter{}, "", "", nil)
	if _, err := noBucket.UploadImage(ctx, writeTemp(t, "b.iso", "x")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewClientWithStaticCredentials(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))
	client, err := upload.NewClient(context.Background(), config.Upload{
		Region:          "eu-west-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	opts := client.Options()
	if opts.Region != "eu-west-1" || !opts.UsePathStyle || aws.ToString(opts.BaseEndpoint) != "http://127.0.0.1:9000" {
		t.Fatalf("unexpected client options: region=%q pathStyle=%v endpoint=%q", opts.Region, opts.UsePathStyle, aws.ToString(opts.BaseEndpoint))
	}
	creds, err := opts.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "key" {
		t.Fatalf("unexpected access key %q", creds.AccessKeyID)
	}
}
