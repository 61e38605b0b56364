// Package s3 provides an S3 implementation of the objectstore.ObjectStore interface.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "tiers/")
//
// # Features
//
//   - Multipart uploads with CRC32C integrity validation
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
//   - SDK errors mapped onto the objectstore error taxonomy
package s3
