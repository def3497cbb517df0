package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/queue"
	"github.com/auralforge/auralforge/internal/repository"
	"github.com/auralforge/auralforge/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for *repository.Repository.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*model.User
	memberships map[string][]model.Membership
	subs        map[string]*model.Subscription
	projects    []*model.Project
	keys        []*model.APIKey
	jobs        []*model.Job
	voices      []*model.VoiceClone
	queueIDs    map[string]string
	failed      map[string]string
	lastUsed    []string
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]*model.User{},
		memberships: map[string][]model.Membership{},
		subs:        map[string]*model.Subscription{},
		queueIDs:    map[string]string{},
		failed:      map[string]string{},
	}
}

func (m *memStore) CreateSignup(_ context.Context, s *repository.Signup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, s.User.Email) {
			return repository.ErrEmailExists
		}
	}
	m.users[s.User.ID] = s.User
	m.memberships[s.User.ID] = append(m.memberships[s.User.ID], model.Membership{
		TeamID: s.Team.ID, TeamName: s.Team.Name, Role: model.RoleOwner, JoinedAt: s.Team.CreatedAt,
	})
	m.subs[s.Team.ID] = s.Subscription
	m.projects = append(m.projects, s.Project)
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) ListMemberships(_ context.Context, userID string) ([]model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.memberships[userID]), nil
}

func (m *memStore) GetMembership(_ context.Context, userID, teamID string) (*model.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range m.memberships[userID] {
		if ms.TeamID == teamID {
			return &ms, nil
		}
	}
	return nil, repository.ErrNotMember
}

func (m *memStore) GetSubscription(_ context.Context, teamID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.subs[teamID]; ok {
		return s, nil
	}
	return nil, repository.ErrSubscriptionNotFound
}

func (m *memStore) CreateProject(_ context.Context, p *model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = append(m.projects, p)
	return nil
}

func (m *memStore) GetProject(_ context.Context, teamID, id string) (*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.ID == id && p.TeamID == teamID {
			return p, nil
		}
	}
	return nil, repository.ErrProjectNotFound
}

// ListProjects returns newest first, like the SQL query.
func (m *memStore) ListProjects(_ context.Context, teamID string) ([]*model.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Project{}
	for i := len(m.projects) - 1; i >= 0; i-- {
		if m.projects[i].TeamID == teamID {
			out = append(out, m.projects[i])
		}
	}
	return out, nil
}

func (m *memStore) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return nil
}

func (m *memStore) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.APIKey
	for _, k := range m.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memStore) ListAPIKeysByTeam(_ context.Context, teamID string) ([]*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.APIKey{}
	for _, k := range m.keys {
		if k.TeamID == teamID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memStore) RevokeAPIKey(_ context.Context, teamID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id && k.TeamID == teamID && k.RevokedAt == nil {
			now := k.CreatedAt
			k.RevokedAt = &now
			return nil
		}
	}
	return repository.ErrAPIKeyNotFound
}

func (m *memStore) UpdateAPIKeyLastUsed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUsed = append(m.lastUsed, id)
	return nil
}

func (m *memStore) CreateJob(_ context.Context, job *model.Job) (*model.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.IdempotencyKey != nil {
		for _, j := range m.jobs {
			if j.TeamID == job.TeamID && j.IdempotencyKey != nil && *j.IdempotencyKey == *job.IdempotencyKey {
				return j, false, nil
			}
		}
	}
	job.UpdatedAt = job.CreatedAt
	m.jobs = append(m.jobs, job)
	return job, true, nil
}

func (m *memStore) GetJobForTeam(_ context.Context, teamID, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id && j.TeamID == teamID {
			return j, nil
		}
	}
	return nil, repository.ErrJobNotFound
}

// ListJobs mirrors the keyset query: newest first, strictly after the cursor.
func (m *memStore) ListJobs(_ context.Context, f repository.JobFilter) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := slices.Clone(m.jobs)
	slices.SortFunc(sorted, func(a, b *model.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	out := []*model.Job{}
	for _, j := range sorted {
		if j.TeamID != f.TeamID {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.After != nil {
			older := j.CreatedAt.Before(f.After.CreatedAt) ||
				(j.CreatedAt.Equal(f.After.CreatedAt) && j.ID < f.After.ID)
			if !older {
				continue
			}
		}
		out = append(out, j)
		if len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) SetQueueJobID(_ context.Context, id, queueJobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueIDs[id] = queueJobID
	return nil
}

func (m *memStore) FailJob(_ context.Context, id, reason string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = reason
	for _, j := range m.jobs {
		if j.ID == id {
			j.Status = model.JobStatusFailed
			j.Error = &reason
			return j, nil
		}
	}
	return nil, repository.ErrJobNotFound
}

func (m *memStore) ListVoiceClones(_ context.Context, teamID string) ([]*model.VoiceClone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.VoiceClone{}
	for _, v := range m.voices {
		if v.TeamID == teamID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memStore) lastUsedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lastUsed)
}

// fakeQueue records enqueued messages or fails every call with err.
type fakeQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, msg queue.Message) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.msgs = append(q.msgs, msg)
	return "1700000000000-" + string(rune('0'+len(q.msgs))), nil
}

// fakeAssets serves objects from a map.
type fakeAssets map[string]string

func (f fakeAssets) Get(_ context.Context, key string) (*storage.Object, error) {
	body, ok := f[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.Object{
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentType:   "application/octet-stream",
		ContentLength: int64(len(body)),
	}, nil
}

// fakeAuthCache is an in-memory AuthCache.
type fakeAuthCache struct {
	mu          sync.Mutex
	entries     map[string]*model.AuthContext
	invalidated []string
}

func newFakeAuthCache() *fakeAuthCache {
	return &fakeAuthCache{entries: map[string]*model.AuthContext{}}
}

func (c *fakeAuthCache) GetAuthContext(_ context.Context, key string) (*model.AuthContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

func (c *fakeAuthCache) SetAuthContext(_ context.Context, key string, ac *model.AuthContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ac
	return nil
}

func (c *fakeAuthCache) InvalidateKey(_ context.Context, keyID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, keyID)
	for k, v := range c.entries {
		if v.KeyID == keyID {
			delete(c.entries, k)
		}
	}
	return nil
}
