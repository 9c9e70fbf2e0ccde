package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Object is a stored blob in a MemoryStore.
type Object struct {
	ContentType string
	Data        []byte
}

// MemoryStore keeps objects in a map. It is used by tests and OBJECT_STORE_DRIVER=memory.
type MemoryStore struct {
	mu        sync.Mutex
	baseURL   string
	objects   map[string]Object
	uploadErr map[string]error // keyed by object path
	failAll   error
}

// NewMemoryStore returns an empty store whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL:   baseURL,
		objects:   make(map[string]Object),
		uploadErr: make(map[string]error),
	}
}

// FailUploads makes every later upload fail with err; nil restores normal behaviour.
func (s *MemoryStore) FailUploads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

// FailUploadAt makes uploads to objectPath fail with err.
func (s *MemoryStore) FailUploadAt(objectPath string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadErr[objectPath] = err
}

func (s *MemoryStore) Upload(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, s.failAll)
	}
	if err, ok := s.uploadErr[objectPath]; ok {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	s.objects[objectPath] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return s.baseURL + "/" + objectPath, nil
}

func (s *MemoryStore) Delete(ctx context.Context, objectPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectPath)
	return nil
}

// Get returns a stored object.
func (s *MemoryStore) Get(objectPath string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectPath]
	return obj, ok
}

// Paths lists every stored object path in sorted order.
func (s *MemoryStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.objects))
	for p := range s.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
