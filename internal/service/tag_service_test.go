package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Siddarth2230/tag-registry/internal/models"
	"github.com/Siddarth2230/tag-registry/internal/repository"
	"github.com/Siddarth2230/tag-registry/pkg/cache"
	"github.com/Siddarth2230/tag-registry/pkg/idgen"
	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

type memoryRepository struct {
	mu       sync.Mutex
	tags     map[tagcodec.ID]models.Tag
	finds    int
	saveErrs []error // returned by successive Save calls before storing
	// staleCallSiteReads makes that many FindByCallSite calls miss, as a
	// read racing a concurrent insert would.
	staleCallSiteReads int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{tags: make(map[tagcodec.ID]models.Tag)}
}

func (r *memoryRepository) Save(_ context.Context, tag *models.Tag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saveErrs) > 0 {
		err := r.saveErrs[0]
		r.saveErrs = r.saveErrs[1:]
		return err
	}
	if _, ok := r.tags[tag.ID]; ok {
		return repository.ErrDuplicate
	}
	// tag_name and call_site are UNIQUE in schema.sql
	for _, other := range r.tags {
		if tag.Name != "" && other.Name == tag.Name {
			return repository.ErrDuplicate
		}
		if tag.CallSite != "" && other.CallSite == tag.CallSite {
			return repository.ErrDuplicate
		}
	}
	r.tags[tag.ID] = *tag
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id tagcodec.ID) (*models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	tag, ok := r.tags[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tag, nil
}

func (r *memoryRepository) FindByCallSite(_ context.Context, callSite string) (*models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staleCallSiteReads > 0 {
		r.staleCallSiteReads--
		return nil, repository.ErrNotFound
	}
	for _, tag := range r.tags {
		if tag.CallSite == callSite {
			return &tag, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryRepository) ExistsByID(_ context.Context, id tagcodec.ID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tags[id]
	return ok, nil
}

func (r *memoryRepository) ListByComponent(_ context.Context, component string) ([]models.Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tags []models.Tag
	for _, tag := range r.tags {
		if component == "" || tag.Component == component {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

func (r *memoryRepository) DeleteByID(_ context.Context, id tagcodec.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tags[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.tags, id)
	return nil
}

// sequenceGenerator returns ids in order, repeating the last one.
type sequenceGenerator struct {
	ids  []tagcodec.ID
	next int
	err  error
}

func (g *sequenceGenerator) Generate(context.Context) (tagcodec.ID, error) {
	if g.err != nil {
		return 0, g.err
	}
	id := g.ids[g.next]
	if g.next < len(g.ids)-1 {
		g.next++
	}
	return id, nil
}

type memoryCache struct {
	entries map[string][]byte
}

func (c *memoryCache) Get(_ context.Context, key string, v any) error {
	data, ok := c.entries[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(data, v)
}

func (c *memoryCache) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func newTestService(t *testing.T, repo Repository, gen idgen.Generator, l2 RemoteCache) *TagService {
	t.Helper()
	svc := NewTagService(repo, gen, l2, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc
}

func mustFiveLetter(t *testing.T, seq uint32) tagcodec.ID {
	t.Helper()
	id, err := idgen.FiveLetter(seq)
	if err != nil {
		t.Fatalf("FiveLetter(%d): %v", seq, err)
	}
	return id
}

func TestReserveWithCounter(t *testing.T) {
	repo := newMemoryRepository()
	first := mustFiveLetter(t, idgen.FirstSequence)
	second := mustFiveLetter(t, idgen.FirstSequence+1)
	svc := newTestService(t, repo, &sequenceGenerator{ids: []tagcodec.ID{first, second}}, nil)

	tag, created, err := svc.Reserve(context.Background(), models.ReserveRequest{Component: "storage"})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if !created || tag.ID != first || tag.Name != "aaqaa" {
		t.Errorf("Reserve = %+v, created=%v; want aaqaa", tag, created)
	}

	tag, _, err = svc.Reserve(context.Background(), models.ReserveRequest{Component: "storage"})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if tag.Name != "aaqab" {
		t.Errorf("second Reserve name = %q; want aaqab", tag.Name)
	}
}

func TestReserveSkipsCollisions(t *testing.T) {
	repo := newMemoryRepository()
	taken := mustFiveLetter(t, idgen.FirstSequence)
	free := mustFiveLetter(t, idgen.FirstSequence+7)
	repo.tags[taken] = models.Tag{ID: taken, Name: "aaqaa", Component: "other"}

	svc := newTestService(t, repo, &sequenceGenerator{ids: []tagcodec.ID{taken, free}}, nil)
	tag, _, err := svc.Reserve(context.Background(), models.ReserveRequest{Component: "storage"})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if tag.ID != free {
		t.Errorf("Reserve id = %s; want %s", tag.ID, free)
	}
}

func TestReserveRetriesSaveRace(t *testing.T) {
	repo := newMemoryRepository()
	repo.saveErrs = []error{repository.ErrDuplicate}
	ids := []tagcodec.ID{mustFiveLetter(t, idgen.FirstSequence), mustFiveLetter(t, idgen.FirstSequence+1)}

	svc := newTestService(t, repo, &sequenceGenerator{ids: ids}, nil)
	tag, _, err := svc.Reserve(context.Background(), models.ReserveRequest{Component: "storage"})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if tag.ID != ids[1] {
		t.Errorf("Reserve id = %s; want %s", tag.ID, ids[1])
	}
}

func TestReserveExhausted(t *testing.T) {
	repo := newMemoryRepository()
	taken := mustFiveLetter(t, idgen.FirstSequence)
	repo.tags[taken] = models.Tag{ID: taken}

	svc := newTestService(t, repo, &sequenceGenerator{ids: []tagcodec.ID{taken}}, nil)
	if _, _, err := svc.Reserve(context.Background(), models.ReserveRequest{Component: "storage"}); !errors.Is(err, ErrGenExhausted) {
		t.Errorf("Reserve error = %v; want ErrGenExhausted", err)
	}
}

func TestReserveRejectsUnreservableID(t *testing.T) {
	svc := newTestService(t, newMemoryRepository(), &sequenceGenerator{ids: []tagcodec.ID{0x00010000 | 40}}, nil)
	_, _, err := svc.Reserve(context.Background(), models.ReserveRequest{Component: "storage"})
	if !errors.Is(err, tagcodec.ErrInvalidBitPattern) {
		t.Errorf("Reserve error = %v; want ErrInvalidBitPattern", err)
	}
}

func TestReserveGeneratorError(t *testing.T) {
	redisDown := errors.New("redis down")
	svc := newTestService(t, newMemoryRepository(), &sequenceGenerator{err: redisDown}, nil)
	if _, _, err := svc.Reserve(context.Background(), models.ReserveRequest{Component: "storage"}); !errors.Is(err, redisDown) {
		t.Errorf("Reserve error = %v; want generator error", err)
	}
}

func TestReserveInvalidComponent(t *testing.T) {
	svc := newTestService(t, newMemoryRepository(), &sequenceGenerator{}, nil)
	for _, component := range []string{"", "Storage", "has space", "-leading"} {
		if _, _, err := svc.Reserve(context.Background(), models.ReserveRequest{Component: component}); !errors.Is(err, ErrInvalidComponent) {
			t.Errorf("Reserve(%q) error = %v; want ErrInvalidComponent", component, err)
		}
	}
}

func TestReserveCallSiteIsIdempotent(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(t, repo, &sequenceGenerator{err: errors.New("counter must not be used")}, nil)
	req := models.ReserveRequest{Component: "net", CallSite: "net/dial.go:88"}

	first, created, err := svc.Reserve(context.Background(), req)
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if !created {
		t.Error("first Reserve created = false")
	}
	expected, _ := idgen.NewHashGenerator("").GenerateFor(req.CallSite)
	if first.ID != expected {
		t.Errorf("Reserve id = %s; want hash of call site %s", first.ID, expected)
	}

	again, created, err := svc.Reserve(context.Background(), req)
	if err != nil {
		t.Fatalf("second Reserve error: %v", err)
	}
	if created || again.ID != first.ID {
		t.Errorf("second Reserve = %s created=%v; want %s, false", again.ID, created, first.ID)
	}
}

func TestReserveCallSiteCollisionUsesSalt(t *testing.T) {
	repo := newMemoryRepository()
	callSite := "net/dial.go:88"
	unsalted, _ := idgen.NewHashGenerator("").GenerateFor(callSite)
	repo.tags[unsalted] = models.Tag{ID: unsalted, CallSite: "somewhere/else.go:1"}

	svc := newTestService(t, repo, nil, nil)
	tag, _, err := svc.Reserve(context.Background(), models.ReserveRequest{Component: "net", CallSite: callSite})
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	salted, _ := idgen.NewHashGenerator("1:").GenerateFor(callSite)
	if tag.ID != salted {
		t.Errorf("Reserve id = %s; want salted hash %s", tag.ID, salted)
	}
}

func TestReserveCallSiteLostRace(t *testing.T) {
	callSite := "net/dial.go:88"
	hashed, _ := idgen.NewHashGenerator("").GenerateFor(callSite)
	other := mustFiveLetter(t, idgen.FirstSequence)

	tests := []struct {
		name     string
		winnerID tagcodec.ID
	}{
		// the winner holds the same hash id, so ExistsByID reports it taken
		{"same id", hashed},
		// the winner holds another id, so Save hits the call_site constraint
		{"other id", other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepository()
			winner := models.Tag{ID: tt.winnerID, Name: tagcodec.Format(tt.winnerID, true), Component: "net", CallSite: callSite}
			repo.tags[tt.winnerID] = winner
			repo.staleCallSiteReads = 1

			svc := newTestService(t, repo, nil, nil)
			tag, created, err := svc.Reserve(context.Background(), models.ReserveRequest{Component: "net", CallSite: callSite})
			if err != nil {
				t.Fatalf("Reserve error: %v", err)
			}
			if created || tag.ID != winner.ID {
				t.Errorf("Reserve = %s created=%v; want %s, false", tag.ID, created, winner.ID)
			}
			if len(repo.tags) != 1 {
				t.Errorf("repository holds %d tags; want 1", len(repo.tags))
			}
		})
	}
}

func TestReserveCallSiteConcurrent(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(t, repo, nil, nil)
	req := models.ReserveRequest{Component: "net", CallSite: "net/dial.go:88"}

	const workers = 8
	var wg sync.WaitGroup
	ids := make([]tagcodec.ID, workers)
	createdFlags := make([]bool, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag, created, err := svc.Reserve(context.Background(), req)
			errs[i], createdFlags[i] = err, created
			if tag != nil {
				ids[i] = tag.ID
			}
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("Reserve %d error: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("Reserve %d id = %s; want %s", i, ids[i], ids[0])
		}
		if createdFlags[i] {
			created++
		}
	}
	if created != 1 {
		t.Errorf("%d reservations created; want 1", created)
	}
	if len(repo.tags) != 1 {
		t.Errorf("repository holds %d tags; want 1", len(repo.tags))
	}
}

func TestLookup(t *testing.T) {
	repo := newMemoryRepository()
	id := tagcodec.ID(0x001c0797)
	repo.tags[id] = models.Tag{ID: id, Name: "aha4x", Component: "ui"}
	l2 := &memoryCache{entries: make(map[string][]byte)}
	svc := newTestService(t, repo, nil, l2)

	tag, err := svc.Lookup(context.Background(), "aha4x")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if tag.ID != id || tag.Component != "ui" {
		t.Errorf("Lookup = %+v", tag)
	}
	if _, ok := l2.entries[cacheKey(id)]; !ok {
		t.Error("Lookup did not populate the L2 cache")
	}

	// second lookup is served from L1
	if _, err := svc.Lookup(context.Background(), "aha4x"); err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if repo.finds != 1 {
		t.Errorf("repository finds = %d; want 1", repo.finds)
	}
}

func TestLookupFromL2(t *testing.T) {
	repo := newMemoryRepository()
	l2 := &memoryCache{entries: make(map[string][]byte)}
	id := tagcodec.ID(0x41424344)
	cached := models.Tag{ID: id, Name: "ABCD", Component: "legacy"}
	if err := l2.Set(context.Background(), cacheKey(id), cached.Record()); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t, repo, nil, l2)
	tag, err := svc.Lookup(context.Background(), "ABCD")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if tag.ID != id || tag.Component != "legacy" {
		t.Errorf("Lookup = %+v", tag)
	}
	if repo.finds != 0 {
		t.Errorf("repository finds = %d; want 0", repo.finds)
	}
}

func TestLookupErrors(t *testing.T) {
	svc := newTestService(t, newMemoryRepository(), nil, nil)

	if _, err := svc.Lookup(context.Background(), "ab"); !errors.Is(err, tagcodec.ErrMalformedTagName) {
		t.Errorf("Lookup(ab) error = %v; want ErrMalformedTagName", err)
	}
	if _, err := svc.Lookup(context.Background(), "zzzzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(zzzzz) error = %v; want ErrNotFound", err)
	}
}

func TestRelease(t *testing.T) {
	repo := newMemoryRepository()
	id := tagcodec.ID(0x001c0797)
	repo.tags[id] = models.Tag{ID: id, Name: "aha4x", Component: "ui"}
	l2 := &memoryCache{entries: make(map[string][]byte)}
	svc := newTestService(t, repo, nil, l2)

	if _, err := svc.Lookup(context.Background(), "aha4x"); err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if err := svc.Release(context.Background(), "aha4x"); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if _, ok := l2.entries[cacheKey(id)]; ok {
		t.Error("Release left the L2 entry behind")
	}
	if _, err := svc.Lookup(context.Background(), "aha4x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after Release error = %v; want ErrNotFound", err)
	}
	if err := svc.Release(context.Background(), "aha4x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Release error = %v; want ErrNotFound", err)
	}
}

func TestLookupL1Expires(t *testing.T) {
	repo := newMemoryRepository()
	id := tagcodec.ID(0x001c0797)
	repo.tags[id] = models.Tag{ID: id, Name: "aha4x", Component: "ui"}
	svc := newTestService(t, repo, nil, nil)
	start := svc.now()

	if _, err := svc.Lookup(context.Background(), "aha4x"); err != nil {
		t.Fatalf("Lookup error: %v", err)
	}

	// another replica releases the tag; this one still holds it in L1
	delete(repo.tags, id)
	if _, err := svc.Lookup(context.Background(), "aha4x"); err != nil {
		t.Errorf("Lookup within l1TTL error = %v; want L1 hit", err)
	}

	svc.now = func() time.Time { return start.Add(l1TTL) }
	if _, err := svc.Lookup(context.Background(), "aha4x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after l1TTL error = %v; want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo := newMemoryRepository()
	repo.tags[1] = models.Tag{ID: 1, Name: "1", Component: "ui"}
	repo.tags[2] = models.Tag{ID: 2, Name: "2", Component: "net"}
	svc := newTestService(t, repo, nil, nil)

	tags, err := svc.List(context.Background(), "ui")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(tags) != 1 || tags[0].Component != "ui" {
		t.Errorf("List(ui) = %+v", tags)
	}
	if _, err := svc.List(context.Background(), "Bad Name"); !errors.Is(err, ErrInvalidComponent) {
		t.Errorf("List error = %v; want ErrInvalidComponent", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	svc := newTestService(t, newMemoryRepository(), nil, nil)

	name, err := svc.Encode(0x41424344)
	if err != nil || name != "ABCD" {
		t.Errorf("Encode = %q, %v", name, err)
	}
	if _, err := svc.Encode(0x00010000 | 40); !errors.Is(err, tagcodec.ErrInvalidBitPattern) {
		t.Errorf("Encode error = %v; want ErrInvalidBitPattern", err)
	}
	id, err := svc.Decode("42")
	if err != nil || id != 42 {
		t.Errorf("Decode = %d, %v", id, err)
	}
	if _, err := svc.Decode("ab"); !errors.Is(err, tagcodec.ErrMalformedTagName) {
		t.Errorf("Decode error = %v; want ErrMalformedTagName", err)
	}
}
