package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"askdata/internal/schema"
)

type fakeStore struct{ closed bool }

func (f *fakeStore) Dialect() Dialect { return nil }
func (f *fakeStore) ReplaceTable(context.Context, *schema.TableSchema) error {
	return nil
}
func (f *fakeStore) InsertRows(context.Context, string, []string, [][]any) (InsertResult, error) {
	return InsertResult{}, nil
}
func (f *fakeStore) ListTables(context.Context) ([]TableInfo, error) { return nil, nil }
func (f *fakeStore) Query(context.Context, string) (*Result, error) { return &Result{}, nil }
func (f *fakeStore) Close() error                                  { f.closed = true; return nil }

func TestRegisterAndOpen(t *testing.T) {
	want := &fakeStore{}
	Register("fake-test", func(ctx context.Context, cfg Config) (Store, error) {
		if cfg.DSN != "dsn" {
			t.Fatalf("factory got DSN %q", cfg.DSN)
		}
		return want, nil
	})

	got, err := Open(context.Background(), Config{Kind: "fake-test", DSN: "dsn"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != want {
		t.Fatalf("Open returned a different store")
	}

	found := false
	for _, k := range Kinds() {
		if k == "fake-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds() missing fake-test")
	}
}

func TestOpen_UnknownKind(t *testing.T) {
	if _, err := Open(context.Background(), Config{Kind: "nope"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Open(nope) err = %v, want ErrUnknownKind", err)
	}
	if _, err := Open(context.Background(), Config{}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Open(empty) err = %v, want ErrUnknownKind", err)
	}
}

func TestRegister_Panics(t *testing.T) {
	f := func(context.Context, Config) (Store, error) { return nil, nil }
	Register("dup-test", f)

	tests := []struct {
		name string
		kind string
		f    Factory
	}{
		{"empty kind", "", f},
		{"nil factory", "x-test", nil},
		{"duplicate", "dup-test", f},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("Register(%q) did not panic", tt.kind)
				}
			}()
			Register(tt.kind, tt.f)
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{[]byte("abc"), "abc"},
		{int32(7), int64(7)},
		{float32(1.5), float64(1.5)},
		{"x", "x"},
		{ts, ts},
		{true, true},
	}
	for _, tt := range tests {
		if got := NormalizeValue(tt.in); got != tt.want {
			t.Fatalf("NormalizeValue(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestKeyString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{" Germany ", "Germany"},
		{int64(8429529), "8429529"},
		{[]byte(" b "), "b"},
		{time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "2024-01-02"},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02 03:04:05"},
		{1.5, "1.5"},
	}
	for _, tt := range tests {
		if got := KeyString(tt.in); got != tt.want {
			t.Fatalf("KeyString(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
