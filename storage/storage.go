// Package storage talks to the blob store holding document bytes. Documents
// live in a single Supabase storage bucket, addressed by key.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
)

// A Client reads and writes blobs in one bucket.
type Client struct {
	Bucket string

	api *storage_go.Client
}

// NewClient creates a storage client for the given Supabase project URL and
// service key.
func NewClient(projectURL, serviceKey, bucket string) *Client {
	return &Client{
		Bucket: bucket,
		api:    storage_go.NewClient(projectURL+"/storage/v1", serviceKey, nil),
	}
}

// NewClientFromEnv builds a Client from SUPABASE_URL, SUPABASE_SERVICE_KEY
// and STORAGE_BUCKET (default "documents").
func NewClientFromEnv() (*Client, error) {
	url := os.Getenv("SUPABASE_URL")
	if url == "" {
		return nil, errors.New("storage: No value provided for SUPABASE_URL, cannot connect")
	}
	key := os.Getenv("SUPABASE_SERVICE_KEY")
	if key == "" {
		return nil, errors.New("storage: No value provided for SUPABASE_SERVICE_KEY, cannot connect")
	}
	bucket := os.Getenv("STORAGE_BUCKET")
	if bucket == "" {
		bucket = "documents"
	}
	return NewClient(url, key, bucket), nil
}

// Download fetches the blob stored under key.
func (c *Client) Download(key string) ([]byte, error) {
	bits, err := c.api.DownloadFile(c.Bucket, key)
	if err != nil {
		return nil, fmt.Errorf("storage: download %s: %w", key, err)
	}
	return bits, nil
}

// Upload stores data under key with the given content type.
func (c *Client) Upload(key string, data []byte, contentType string) error {
	_, err := c.api.UploadFile(c.Bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("storage: upload %s: %w", key, err)
	}
	return nil
}

// GenerateKey returns a fresh storage key for a user's file. The original
// filename only contributes its extension; the key is otherwise random so
// uploads never collide.
func (c *Client) GenerateKey(userID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s%s", userID, uuid.NewString(), filepath.Ext(filename))
}
