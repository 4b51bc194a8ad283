// Package media stores article images in object storage.
//
// Uploader checks the content type and size, derives an object key of the
// form articles/<uuid>-<sanitized filename> and hands the body to an
// ObjectStore. Two backends exist: S3Store on aws-sdk-go-v2, for AWS or any
// S3-compatible endpoint, and MinioStore on minio-go. With no backend
// configured every upload fails with an upstream error.
package media
