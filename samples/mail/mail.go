// Package mail contains sample tasks operating on a mail server's repositories and queues.
package mail

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var ErrMailNotFound = errors.New("mail not found")

type Mail struct {
	Key        string   `json:"key"`
	Sender     string   `json:"sender"`
	Recipients []string `json:"recipients"`
	Body       []byte   `json:"body"`
}

// Repository stores mails which could not be processed, for example after repeated delivery errors
type Repository interface {
	List(ctx context.Context) ([]string, error)
	Retrieve(ctx context.Context, key string) (*Mail, error)
	Remove(ctx context.Context, key string) error
}

// Queue accepts mails for (re)processing
type Queue interface {
	Enqueue(ctx context.Context, m *Mail) error
}

// MemoryRepository is a Repository and Queue keeping mails in memory
type MemoryRepository struct {
	mu    sync.Mutex
	mails map[string]*Mail
	keys  []string
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Queue      = (*MemoryRepository)(nil)
)

func NewMemoryRepository(mails ...*Mail) *MemoryRepository {
	r := &MemoryRepository{mails: make(map[string]*Mail)}

	for _, m := range mails {
		_ = r.Enqueue(context.Background(), m)
	}

	return r
}

func (r *MemoryRepository) List(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.keys), nil
}

func (r *MemoryRepository) Retrieve(ctx context.Context, key string) (*Mail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mails[key]
	if !ok {
		return nil, ErrMailNotFound
	}

	return m, nil
}

func (r *MemoryRepository) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mails[key]; !ok {
		return ErrMailNotFound
	}

	delete(r.mails, key)
	r.keys = slices.DeleteFunc(r.keys, func(k string) bool { return k == key })

	return nil
}

func (r *MemoryRepository) Enqueue(ctx context.Context, m *Mail) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mails[m.Key]; !ok {
		r.keys = append(r.keys, m.Key)
	}

	r.mails[m.Key] = m

	return nil
}

func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.keys)
}
