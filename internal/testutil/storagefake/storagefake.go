// Package storagefake is an in-memory object store for tests.
package storagefake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"autograde/internal/common/storage"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Memory implements storage.ObjectStorage.
type Memory struct {
	mu      sync.Mutex
	objects map[string]object
	puts    int
}

// New returns an empty store.
func New() *Memory {
	return &Memory{objects: make(map[string]object)}
}

func key(bucket, objectKey string) string {
	return bucket + "/" + objectKey
}

// Set stores data directly.
func (m *Memory) Set(bucket, objectKey string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key(bucket, objectKey)] = object{data: append([]byte(nil), data...), modified: time.Now()}
}

// Data returns the stored bytes of an object.
func (m *Memory) Data(bucket, objectKey string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key(bucket, objectKey)]
	return obj.data, ok
}

// Puts returns how many PutObject calls succeeded.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func (m *Memory) GetObject(ctx context.Context, bucket, objectKey string) (storage.ObjectReader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key(bucket, objectKey)]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", objectKey, storage.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *Memory) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key(bucket, objectKey)] = object{data: data, contentType: contentType, modified: time.Now()}
	m.puts++
	return nil
}

func (m *Memory) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key(bucket, objectKey)]
	if !ok {
		return storage.ObjectStat{}, fmt.Errorf("stat %s: %w", objectKey, storage.ErrObjectNotFound)
	}
	return storage.ObjectStat{SizeBytes: int64(len(obj.data)), ContentType: obj.contentType, LastModified: obj.modified}, nil
}

func (m *Memory) ListObjects(ctx context.Context, bucket, prefix string) <-chan storage.ObjectInfo {
	m.mu.Lock()
	var infos []storage.ObjectInfo
	for k, obj := range m.objects {
		objectKey, ok := strings.CutPrefix(k, bucket+"/")
		if !ok || !strings.HasPrefix(objectKey, prefix) {
			continue
		}
		infos = append(infos, storage.ObjectInfo{Key: objectKey, SizeBytes: int64(len(obj.data)), LastModified: obj.modified})
	}
	m.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	out := make(chan storage.ObjectInfo, len(infos))
	for _, info := range infos {
		out <- info
	}
	close(out)
	return out
}
