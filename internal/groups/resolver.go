// Package groups maps category labels to durable group ids, creating groups
// on first use.
package groups

import (
	"context"
	"fmt"
	"sync"

	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/metrics"
	"github.com/dbsmedya/gocontacts/internal/store"
)

// Store is the part of the record store the resolver needs.
type Store interface {
	store.GroupStore
	Apply(ctx context.Context, ops []store.Operation) (store.ApplyResult, error)
	Account(ctx context.Context, id int64) (store.Account, error)
	DeleteLogicalRecord(ctx context.Context, id int64) error
}

// Resolver resolves group titles. Calls are serialized within the process.
// Two processes resolving the same new title at once can still create two
// groups with that title.
type Resolver struct {
	store  Store
	logger *logger.Logger

	mu      sync.Mutex
	account *store.Account
}

// NewResolver creates a Resolver over s.
func NewResolver(s Store, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Resolver{store: s, logger: log.WithComponent("groups")}
}

// Resolve returns the id of the visible, non-deleted group titled label.
// Titles compare case-sensitively. A missing group is created under the
// default account.
func (r *Resolver) Resolve(ctx context.Context, label string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok, err := r.find(ctx, label)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}

	acc, err := r.defaultAccount(ctx)
	if err != nil {
		return 0, err
	}

	created, err := r.store.CreateGroup(ctx, label, acc)
	if err != nil {
		return 0, fmt.Errorf("failed to create group %q: %w", label, err)
	}
	metrics.IncGroupsCreated()
	r.logger.Infof("Created group %q (id %d) under account %s/%s", label, created, acc.Type, acc.Name)

	id, ok, err = r.find(ctx, label)
	if err != nil {
		return 0, err
	}
	if !ok {
		return created, nil
	}
	return id, nil
}

func (r *Resolver) find(ctx context.Context, label string) (int64, bool, error) {
	groups, err := r.store.Groups(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to list groups: %w", err)
	}
	for _, g := range groups {
		if g.Deleted || !g.Visible {
			continue
		}
		if g.Title == label {
			return g.ID, true, nil
		}
	}
	return 0, false, nil
}

// Title returns the title of group id.
func (r *Resolver) Title(ctx context.Context, id int64) (string, error) {
	g, err := r.store.Group(ctx, id)
	if err != nil {
		return "", err
	}
	return g.Title, nil
}

// DefaultAccount returns the account the store assigns to anonymous records.
func (r *Resolver) DefaultAccount(ctx context.Context) (store.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultAccount(ctx)
}

// defaultAccount probes the store once by creating an anonymous logical
// record, reading its account and deleting it again. Callers hold r.mu.
func (r *Resolver) defaultAccount(ctx context.Context) (store.Account, error) {
	if r.account != nil {
		return *r.account, nil
	}

	res, err := r.store.Apply(ctx, []store.Operation{store.CreateLogicalRecord()})
	if err != nil {
		return store.Account{}, fmt.Errorf("failed to probe default account: %w", err)
	}
	probe, ok := res.CreatedID(0)
	if !ok {
		return store.Account{}, fmt.Errorf("failed to probe default account: no record created")
	}

	acc, err := r.store.Account(ctx, probe)
	if delErr := r.store.DeleteLogicalRecord(ctx, probe); delErr != nil {
		r.logger.Warnf("Failed to delete probe record %d: %v", probe, delErr)
	}
	if err != nil {
		return store.Account{}, fmt.Errorf("failed to read probe account: %w", err)
	}

	r.logger.Debugf("Default account is %s/%s", acc.Type, acc.Name)
	r.account = &acc
	return acc, nil
}
