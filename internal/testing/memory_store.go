package testing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eucylin/Codex-Line-Bot/internal/namecache"
	"github.com/eucylin/Codex-Line-Bot/internal/tally"
)

// ErrInjected is returned by MemoryStore operations listed in Fail
var ErrInjected = errors.New("injected store failure")

// MemoryStore is an in-memory store for handler and orchestrator tests.
// Calls counts every method invocation.
type MemoryStore struct {
	mu        sync.Mutex
	allowed   map[string]bool
	counts    map[tally.Key]int64
	processed map[string]bool
	names     map[string]namecache.Entry

	Calls int
	// Fail makes the named methods return ErrInjected, e.g. "IncrementCount"
	Fail map[string]bool
}

func NewMemoryStore(allowedGroups ...string) *MemoryStore {
	s := &MemoryStore{
		allowed:   map[string]bool{},
		counts:    map[tally.Key]int64{},
		processed: map[string]bool{},
		names:     map[string]namecache.Entry{},
		Fail:      map[string]bool{},
	}
	for _, g := range allowedGroups {
		s.allowed[g] = true
	}
	return s
}

func (s *MemoryStore) enter(method string) error {
	s.Calls++
	if s.Fail[method] {
		return ErrInjected
	}
	return nil
}

func (s *MemoryStore) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Calls
}

func (s *MemoryStore) IsGroupAllowed(_ context.Context, groupID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("IsGroupAllowed"); err != nil {
		return false, err
	}
	return s.allowed[groupID], nil
}

func (s *MemoryStore) IncrementCount(_ context.Context, k tally.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("IncrementCount"); err != nil {
		return err
	}
	s.counts[k]++
	return nil
}

func (s *MemoryStore) IncrementCountOnce(_ context.Context, k tally.Key, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("IncrementCount"); err != nil {
		return false, err
	}
	if s.processed[messageID] {
		return false, nil
	}
	s.processed[messageID] = true
	s.counts[k]++
	return true, nil
}

func (s *MemoryStore) ListCounts(_ context.Context, groupID, yearMonth string) ([]tally.Count, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListCounts"); err != nil {
		return nil, err
	}
	var out []tally.Count
	for k, n := range s.counts {
		if k.GroupID == groupID && k.YearMonth == yearMonth {
			out = append(out, tally.Count{UserID: k.UserID, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) CachedName(_ context.Context, kind namecache.Kind, id string) (namecache.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CachedName"); err != nil {
		return namecache.Entry{}, false, err
	}
	e, ok := s.names[string(kind)+":"+id]
	return e, ok, nil
}

func (s *MemoryStore) UpsertCachedName(_ context.Context, kind namecache.Kind, id, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertCachedName"); err != nil {
		return err
	}
	s.names[string(kind)+":"+id] = namecache.Entry{Name: name, UpdatedAt: at}
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enter("Ping")
}

// FakeLINE stands in for the Messaging API client
type FakeLINE struct {
	mu      sync.Mutex
	Names   map[string]string
	Replies map[string][]string
	Fetches int
	Err     error
}

func NewFakeLINE() *FakeLINE {
	return &FakeLINE{Names: map[string]string{}, Replies: map[string][]string{}}
}

func (f *FakeLINE) GroupMemberName(_ context.Context, _, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++
	if f.Err != nil {
		return "", f.Err
	}
	return f.Names[userID], nil
}

func (f *FakeLINE) GroupName(_ context.Context, groupID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++
	if f.Err != nil {
		return "", f.Err
	}
	return f.Names[groupID], nil
}

func (f *FakeLINE) Reply(_ context.Context, replyToken string, texts ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Replies[replyToken] = append(f.Replies[replyToken], texts...)
	return nil
}

// ReplyTo returns the texts sent with replyToken
func (f *FakeLINE) ReplyTo(replyToken string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Replies[replyToken]
}
