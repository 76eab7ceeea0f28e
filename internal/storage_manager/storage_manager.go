package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BackendType names a mirror target.
type BackendType string

const (
	// BackendDir copies archives into another directory, e.g. a mounted share.
	BackendDir BackendType = "dir"
	// BackendS3 uploads archives as objects.
	BackendS3 BackendType = "s3"
	// BackendGit commits each shipped archive into a git repository.
	BackendGit BackendType = "git"
)

// TargetConfig selects and configures one mirror target.
type TargetConfig struct {
	Backend BackendType

	Dir string
	S3  *S3Config
	Git *GitProviderOptions
}

// S3Config holds the bucket layout for the S3 target.
type S3Config struct {
	Bucket string
	// Prefix is prepended to every key, e.g. "chatwatch/host-a".
	Prefix string
	// StorageClass is passed through on upload; empty keeps the bucket default.
	StorageClass string
	Client       *s3.Client
}

// OpenTarget builds the FileProvider archives are shipped to.
func OpenTarget(cfg TargetConfig) (FileProvider, error) {
	switch cfg.Backend {
	case BackendDir:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("directory is required for dir target")
		}
		return NewLocalFileProvider(cfg.Dir), nil

	case BackendS3:
		switch {
		case cfg.S3 == nil:
			return nil, fmt.Errorf("s3 settings are required for s3 target")
		case cfg.S3.Bucket == "":
			return nil, fmt.Errorf("bucket is required for s3 target")
		case cfg.S3.Client == nil:
			return nil, fmt.Errorf("s3 client is required for s3 target")
		}
		client := NewAWSS3Client(cfg.S3.Client, cfg.S3.StorageClass)
		return NewS3FileProvider(cfg.S3.Bucket, cfg.S3.Prefix, client), nil

	case BackendGit:
		if cfg.Git == nil {
			return nil, fmt.Errorf("git settings are required for git target")
		}
		provider, err := NewGitFileProvider(*cfg.Git)
		if err != nil {
			return nil, err
		}
		return provider, nil
	}
	return nil, fmt.Errorf("unsupported mirror target: %q", cfg.Backend)
}
