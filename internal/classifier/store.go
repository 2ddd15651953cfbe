// SPDX-License-Identifier: Apache-2.0

package classifier

import (
	"context"
	"encoding/json"

	"github.com/adiadia/syrphid-receiver/internal/domain"
	"github.com/adiadia/syrphid-receiver/internal/repository"
)

// UnitOfWork is the transaction for one message.
type UnitOfWork interface {
	InsertEvent(ctx context.Context, ev domain.EventRecord) (int64, error)
	UpdateEventAdditionalData(ctx context.Context, eventID int64, data json.RawMessage) error
	InsertNetworkRequest(ctx context.Context, rec domain.NetworkRequestRecord) (int64, error)
	InsertNetworkResponse(ctx context.Context, rec domain.NetworkResponseRecord) (int64, error)
	InsertUserInteraction(ctx context.Context, rec domain.UserInteractionRecord) (int64, error)
	InsertMouseEventDetails(ctx context.Context, rec domain.MouseEventRecord) (int64, error)
	InsertKeyEventDetails(ctx context.Context, rec domain.KeyEventRecord) (int64, error)
	InsertTouchPoints(ctx context.Context, points []domain.TouchPointRecord) ([]int64, error)
	Commit() error
	Rollback() error
}

// Session belongs to one connection and opens one unit of work per message.
type Session interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	Close() error
}

// Store hands out sessions. It is shared by every connection.
type Store interface {
	Open(ctx context.Context) (Session, error)
}

// NewRepositoryStore adapts a repository.Store.
func NewRepositoryStore(store *repository.Store) Store {
	return repositoryStore{store: store}
}

type repositoryStore struct {
	store *repository.Store
}

func (r repositoryStore) Open(ctx context.Context) (Session, error) {
	s, err := r.store.Session(ctx)
	if err != nil {
		return nil, err
	}
	return repositorySession{session: s}, nil
}

type repositorySession struct {
	session *repository.Session
}

func (r repositorySession) Begin(ctx context.Context) (UnitOfWork, error) {
	uow, err := r.session.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return uow, nil
}

func (r repositorySession) Close() error {
	return r.session.Close()
}
