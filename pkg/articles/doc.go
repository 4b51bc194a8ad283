// Package articles implements article CRUD, publishing and image upload.
//
// Mutations check ownership in a fixed order: a missing identity is
// Unauthorized, a missing article is NotFound, and an article owned by
// someone else is Forbidden. The public listing and single article views
// are cached in a cache.Tiered and dropped on every mutation.
package articles
