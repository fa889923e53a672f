package database

import (
	"context"
	"errors"
	"sync"
)

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}

var (
	registryMu        sync.RWMutex
	registeredStore   Store
	assetHNSW         HNSWRebuilder // Singleton for asset embedding HNSW rebuilding
	storeInitialized  bool
	errNotInitialized = errors.New("storage backend not initialized: DATABASE_URL or --memory is required")
)

// RegisterStore registers the active storage backend.
// Backends call this instead of being imported here to avoid import cycles.
func RegisterStore(s Store) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registeredStore = s
	storeInitialized = s != nil
}

// GetStore returns the registered storage backend.
func GetStore(ctx context.Context) (Store, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if !storeInitialized {
		return nil, errNotInitialized
	}
	return registeredStore, nil
}

// IsInitialized returns whether a storage backend has been registered.
func IsInitialized() bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return storeInitialized
}

// RegisterAssetHNSWRebuilder registers the HNSW rebuilder for the asset embedding index.
// This allows rebuilding the in-memory HNSW index without knowing the concrete type.
func RegisterAssetHNSWRebuilder(rebuilder HNSWRebuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	assetHNSW = rebuilder
}

// GetAssetHNSWRebuilder returns the registered asset HNSW rebuilder, or nil if not registered.
func GetAssetHNSWRebuilder() HNSWRebuilder {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return assetHNSW
}
