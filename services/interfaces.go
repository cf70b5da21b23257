package services

import (
	"appcommerce/authapi"
	"appcommerce/blobstore"
	"appcommerce/imagecache"
	"appcommerce/models"
	"context"
	"time"
)

// Document collections and sub-collections
const (
	CollectionCategories = "product_categories"
	CollectionProducts   = "products"
	CollectionUsers      = "users"

	SubColors    = "colors"
	SubSizes     = "sizes"
	SubImages    = "images"
	SubAddresses = "addresses"
)

// BlobStore resolves and uploads binary objects
// Interface for testability - production uses blobstore.GCS
type BlobStore = blobstore.Store

// ImageLoader loads a remote image into a display target
type ImageLoader interface {
	Load(ctx context.Context, url string, target imagecache.Target, req imagecache.Request) error
}

// AuthClient is the identity REST endpoint
type AuthClient interface {
	SignUp(ctx context.Context, email, password string) (authapi.AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (authapi.AuthResponse, error)
	SendOobCode(ctx context.Context, email string) (authapi.OobResponse, error)
}

// PreferenceStore is the local key-value store that survives restarts
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SessionStore defines the interface for session management
type SessionStore interface {
	Create(user models.User, ttl time.Duration) (*models.Session, error)
	Get(token string) (*models.Session, error)
	Delete(token string) error
}
