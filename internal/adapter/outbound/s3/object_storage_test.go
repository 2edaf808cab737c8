package s3

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigEnabled(t *testing.T) {
	cfg := &Config{Endpoint: "https://r2.test", AccessKeyID: "ak", SecretAccessKey: "sk"}
	assert.False(t, cfg.Enabled())

	cfg.Bucket = "staging"
	assert.True(t, cfg.Enabled())
}

func TestNew_Incomplete(t *testing.T) {
	_, err := New(context.Background(), &Config{Endpoint: "https://r2.test"})
	assert.Error(t, err)
}

func TestGetPresignedURL(t *testing.T) {
	client := s3.New(s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String("https://r2.test"),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("ak", "sk", ""),
	})
	a := NewObjectStorageAdapter(client, "staging")

	url, err := a.GetPresignedURL(context.Background(), "uploads/abc.png", 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://r2.test/staging/uploads/abc.png?"), url)
	assert.Contains(t, url, "X-Amz-Expires=900")
	assert.Contains(t, url, "X-Amz-Signature=")
}
