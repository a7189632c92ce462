package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"dagaudit/pkg/storage"
	"dagaudit/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	client   *s3.Client
	bucket   string
	readOnly bool
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string

	// ReadOnly: 验证场景下必须为 true，写入新对象会被拒绝
	ReadOnly bool
}

// NewAdapter 初始化 S3 客户端 (适配 AWS SDK v2 最新规范)
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	// 1. 加载基础配置 (仅包含 Region 和 Credentials)
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时，注入特定于 S3 的配置
	// 新版 SDK 推荐用 BaseEndpoint 而不是全局 Resolver
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}

		// MinIO 必须强制使用 Path Style
		// 即: http://host:9000/bucket/key
		o.UsePathStyle = true
	})

	// 3. 只读模式下不做任何 Bucket 创建尝试，Bucket 必须已存在
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket})
	if err != nil {
		if cfg.ReadOnly {
			return nil, fmt.Errorf("bucket %s not accessible in read-only mode: %w", cfg.Bucket, err)
		}
		_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &cfg.Bucket})
		if err != nil {
			// 可能因为并发创建或权限问题报错，生产环境建议手动管理 Bucket
			fmt.Printf("Warning: failed to ensure bucket exists: %v\n", err)
		}
	}

	return &Adapter{
		client:   client,
		bucket:   cfg.Bucket,
		readOnly: cfg.ReadOnly,
	}, nil
}

func (s *Adapter) ReadOnly() bool { return s.readOnly }

// transformKey 将 BlobKey 转换为 S3 Key (Sharding)
// Logic: "contentmf.aabbcc..." -> "contentmf/aa/bbcc..."
func (s *Adapter) transformKey(key types.BlobKey) string {
	k := string(key)
	if i := strings.IndexByte(k, '.'); i > 0 && len(k) > i+3 {
		prefix, hash := k[:i], k[i+1:]
		return prefix + "/" + hash[:2] + "/" + hash[2:]
	}
	if len(k) < 2 {
		return k
	}
	return k[:2] + "/" + k[2:]
}

// Put 上传对象
func (s *Adapter) Put(ctx context.Context, key types.BlobKey, data []byte) error {
	// 1. 幂等性检查 (去重)
	// 对于 S3，Head 请求比 Put 请求便宜且快。如果已存在，直接跳过。
	exists, err := s.Has(ctx, key)
	if err != nil {
		return fmt.Errorf("s3 put existence check failed: %w", err)
	}
	if exists {
		return nil
	}

	if s.readOnly {
		return fmt.Errorf("put %s: %w", key, storage.ErrReadOnly)
	}

	// 2. 执行上传
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.transformKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/cbor"),
	})

	if err != nil {
		return fmt.Errorf("s3 put failed: %w", err)
	}
	return nil
}

// Get 下载对象
func (s *Adapter) Get(ctx context.Context, key types.BlobKey) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.transformKey(key)),
	})

	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrNotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}

	return resp.Body, nil
}

// Has 检查对象是否存在
func (s *Adapter) Has(ctx context.Context, key types.BlobKey) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.transformKey(key)),
	})

	if err == nil {
		return true, nil
	}

	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return false, nil
	}
	// 兼容性：某些 S3 实现可能返回 generic 404 error string
	if strings.Contains(err.Error(), "404") {
		return false, nil
	}

	return false, err
}
