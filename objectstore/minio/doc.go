// Package minio provides a MinIO implementation of the objectstore.ObjectStore
// interface for self-hosted S3-compatible storage.
//
// # Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
//	})
//	store := miniostore.NewStore(client, "tiers", "prod/")
package minio
