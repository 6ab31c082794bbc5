package storage_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/storage"
)

type stubStorage struct{ name string }

func (s *stubStorage) Upload(context.Context, string, io.Reader, int64) (*storage.UploadResult, error) {
	return nil, nil
}
func (s *stubStorage) Download(context.Context, string) (io.ReadCloser, error) { return nil, nil }
func (s *stubStorage) Delete(context.Context, string) error                   { return nil }
func (s *stubStorage) GetURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
func (s *stubStorage) Exists(context.Context, string) (bool, error)           { return false, nil }
func (s *stubStorage) List(context.Context, string) ([]storage.Object, error) { return nil, nil }

func TestRegister_NewStorageDispatchesByName(t *testing.T) {
	storage.Register("stub-a", func(*config.Config) (storage.Storage, error) {
		return &stubStorage{name: "a"}, nil
	})
	storage.Register("stub-b", func(*config.Config) (storage.Storage, error) {
		return &stubStorage{name: "b"}, nil
	})

	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "stub-b"

	s, err := storage.NewStorage(cfg)
	if err != nil {
		t.Fatalf("NewStorage() error: %v", err)
	}
	if got := s.(*stubStorage).name; got != "b" {
		t.Errorf("backend = %q, want b", got)
	}
}

func TestRegister_Replaces(t *testing.T) {
	storage.Register("stub-replace", func(*config.Config) (storage.Storage, error) {
		return nil, errors.New("old")
	})
	storage.Register("stub-replace", func(*config.Config) (storage.Storage, error) {
		return &stubStorage{name: "new"}, nil
	})

	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "stub-replace"
	if _, err := storage.NewStorage(cfg); err != nil {
		t.Errorf("NewStorage() error = %v, want the replacement factory", err)
	}
}

func TestNewStorage_FactoryError(t *testing.T) {
	storage.Register("stub-broken", func(*config.Config) (storage.Storage, error) {
		return nil, errors.New("no credentials")
	})
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "stub-broken"

	if _, err := storage.NewStorage(cfg); err == nil {
		t.Error("NewStorage() = nil error, want factory error")
	}
}

func TestNewStorage_UnknownBackend(t *testing.T) {
	for _, name := range []string{"", "completely-unknown-backend"} {
		cfg := &config.Config{}
		cfg.Storage.DefaultBackend = name
		if _, err := storage.NewStorage(cfg); err == nil {
			t.Errorf("NewStorage(%q) = nil error, want error", name)
		}
	}
}

func TestBackends_Sorted(t *testing.T) {
	storage.Register("stub-z", func(*config.Config) (storage.Storage, error) { return nil, nil })
	storage.Register("stub-0", func(*config.Config) (storage.Storage, error) { return nil, nil })

	names := storage.Backends()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("Backends() not sorted: %v", names)
		}
	}
}
