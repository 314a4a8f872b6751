package user

import (
	"context"
	"errors"
	"sync"
)

// RepoStub is an in-memory Repo for tests. WithTransaction snapshots the
// state and restores it on failure, so rollback behaviour can be asserted
// without a real database.
type RepoStub struct {
	mu             sync.RWMutex
	users          map[int]User
	relations      map[[2]int]struct{}
	eventOwners    map[int]int // event id -> owner user id
	backfilled     []User
	nextId         int
	inTransaction  bool
	transactionErr error
}

func NewRepoStub() *RepoStub {
	return &RepoStub{
		users:       make(map[int]User),
		relations:   make(map[[2]int]struct{}),
		eventOwners: make(map[int]int),
		nextId:      1,
	}
}

func (r *RepoStub) WithTransaction(ctx context.Context, fn func(repo Repo) error) error {
	r.mu.Lock()

	// Create a copy of the current state for rollback
	originalUsers := make(map[int]User, len(r.users))
	for k, v := range r.users {
		originalUsers[k] = v
	}
	originalRelations := make(map[[2]int]struct{}, len(r.relations))
	for k, v := range r.relations {
		originalRelations[k] = v
	}
	originalOwners := make(map[int]int, len(r.eventOwners))
	for k, v := range r.eventOwners {
		originalOwners[k] = v
	}
	originalNextId := r.nextId

	r.inTransaction = true
	r.mu.Unlock()

	err := fn(r)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inTransaction = false

	// Rollback on error
	if err != nil || r.transactionErr != nil {
		r.users = originalUsers
		r.relations = originalRelations
		r.eventOwners = originalOwners
		r.nextId = originalNextId
		txErr := r.transactionErr
		r.transactionErr = nil
		if err != nil {
			return err
		}
		return txErr
	}

	return nil
}

// SetTransactionError forces the next transaction to roll back after its
// body ran, imitating a commit failure.
func (r *RepoStub) SetTransactionError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactionErr = err
}

func (r *RepoStub) CreateUser(ctx context.Context, user User) (int, error) {
	if user.Ref().IsZero() {
		return 0, ErrNoIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(user, 0); err != nil {
		return 0, err
	}

	r.nextId++
	user.ID = r.nextId
	r.users[user.ID] = user
	return user.ID, nil
}

func (r *RepoStub) GetUser(ctx context.Context, id int) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *RepoStub) FindByPlatformID(ctx context.Context, platform Platform, externalID int64) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		switch platform {
		case Telegram:
			if u.TelegramID == externalID {
				return u, nil
			}
		case Max:
			if u.MaxID == externalID {
				return u, nil
			}
		}
	}
	return User{}, ErrNotFound
}

func (r *RepoStub) UpdateUser(ctx context.Context, id int, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	if err := r.checkUnique(user, id); err != nil {
		return err
	}
	user.ID = id
	r.users[id] = user
	return nil
}

func (r *RepoStub) DeleteUser(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *RepoStub) ClearPlatformIDs(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	u.TelegramID = 0
	u.MaxID = 0
	r.users[id] = u
	return nil
}

func (r *RepoStub) AddRelation(ctx context.Context, userID, relatedID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.relations[[2]int{userID, relatedID}] = struct{}{}
	return nil
}

func (r *RepoStub) RepointRelations(ctx context.Context, fromID, toID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.relations {
		moved := key
		if moved[0] == fromID {
			moved[0] = toID
		}
		if moved[1] == fromID {
			moved[1] = toID
		}
		if moved != key {
			delete(r.relations, key)
			r.relations[moved] = struct{}{}
		}
	}
	return nil
}

func (r *RepoStub) RepointOwnership(ctx context.Context, fromID, toID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for eventID, ownerID := range r.eventOwners {
		if ownerID == fromID {
			r.eventOwners[eventID] = toID
		}
	}
	return nil
}

func (r *RepoStub) BackfillEventPlatformIDs(ctx context.Context, u User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backfilled = append(r.backfilled, u)
	return nil
}

// AddEventOwner seeds an event ownership row for repoint assertions.
func (r *RepoStub) AddEventOwner(eventID, userID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventOwners[eventID] = userID
}

func (r *RepoStub) EventOwner(eventID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eventOwners[eventID]
}

func (r *RepoStub) HasRelation(userID, relatedID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.relations[[2]int{userID, relatedID}]
	return ok
}

func (r *RepoStub) Backfilled() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]User(nil), r.backfilled...)
}

func (r *RepoStub) AllUsers() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]User, 0, len(r.users))
	for _, u := range r.users {
		result = append(result, u)
	}
	return result
}

func (r *RepoStub) checkUnique(user User, selfID int) error {
	for id, u := range r.users {
		if id == selfID {
			continue
		}
		if user.TelegramID != 0 && u.TelegramID == user.TelegramID {
			return errors.New("UNIQUE constraint failed: users.tg_id")
		}
		if user.MaxID != 0 && u.MaxID == user.MaxID {
			return errors.New("UNIQUE constraint failed: users.max_id")
		}
	}
	return nil
}
