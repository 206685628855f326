package storage

import (
	"errors"
	"testing"
)

func TestCollectObjects(t *testing.T) {
	ch := make(chan ObjectInfo, 3)
	ch <- ObjectInfo{Key: "a"}
	ch <- ObjectInfo{Err: errors.New("boom")}
	ch <- ObjectInfo{Key: "b"}
	close(ch)

	objs, err := CollectObjects(ch)
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected first error, got %v", err)
	}
	if len(objs) != 2 || objs[0].Key != "a" || objs[1].Key != "b" {
		t.Fatalf("unexpected objects %+v", objs)
	}
}

func TestNewMinIOStorageValidation(t *testing.T) {
	cases := []MinIOConfig{
		{AccessKey: "a", SecretKey: "s"},
		{Endpoint: "localhost:9000", SecretKey: "s"},
		{Endpoint: "localhost:9000", AccessKey: "a"},
	}
	for i, cfg := range cases {
		if _, err := NewMinIOStorage(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if _, err := NewMinIOStorage(MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}
