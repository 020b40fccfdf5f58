package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/Siddarth2230/tag-registry/internal/models"
	"github.com/Siddarth2230/tag-registry/internal/repository"
	"github.com/Siddarth2230/tag-registry/pkg/cache"
	"github.com/Siddarth2230/tag-registry/pkg/idgen"
	"github.com/Siddarth2230/tag-registry/pkg/metrics"
	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

var (
	ErrInvalidComponent = errors.New("component must be 1-64 chars of a-z, 0-9, '.', '_', '-' or '/'")
	ErrNotFound         = repository.ErrNotFound
	ErrGenExhausted     = errors.New("failed to reserve an unused tag after retries")
)

// maxAttempts bounds the generate/save loop of Reserve.
const maxAttempts = 6

// l1TTL bounds how long a replica serves a tag from its own LRU. Release
// only clears the local L1, so other replicas see it within this window.
const l1TTL = 30 * time.Second

var componentRE = regexp.MustCompile(`^[a-z0-9][a-z0-9._/-]{0,63}$`)

// Repository is the registry storage used by TagService.
// *repository.TagRepository implements it.
type Repository interface {
	Save(ctx context.Context, tag *models.Tag) error
	FindByID(ctx context.Context, id tagcodec.ID) (*models.Tag, error)
	FindByCallSite(ctx context.Context, callSite string) (*models.Tag, error)
	ExistsByID(ctx context.Context, id tagcodec.ID) (bool, error)
	ListByComponent(ctx context.Context, component string) ([]models.Tag, error)
	DeleteByID(ctx context.Context, id tagcodec.ID) error
}

// RemoteCache is the shared L2 cache. *cache.RedisCache implements it.
type RemoteCache interface {
	Get(ctx context.Context, key string, v any) error
	Set(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

// TagService reserves tags and resolves tag names against the registry.
type TagService struct {
	repo      Repository
	generator idgen.Generator
	l1        *cache.LRUCache[tagcodec.ID, l1Entry]
	l2        RemoteCache // optional
	logger    *slog.Logger
	now       func() time.Time
}

type l1Entry struct {
	tag     *models.Tag
	expires time.Time
}

// NewTagService constructor. l2 may be nil.
func NewTagService(repo Repository, gen idgen.Generator, l2 RemoteCache, cacheSize int, logger *slog.Logger) *TagService {
	return &TagService{
		repo:      repo,
		generator: gen,
		l1:        cache.NewLRUCache[tagcodec.ID, l1Entry](cacheSize),
		l2:        l2,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Encode renders id as a tag name.
func (s *TagService) Encode(id tagcodec.ID) (string, error) {
	name, err := tagcodec.Encode(id)
	if err != nil {
		metrics.CodecErrors.WithLabelValues("encode").Inc()
		return "", err
	}
	return name, nil
}

// Decode parses a tag name.
func (s *TagService) Decode(name string) (tagcodec.ID, error) {
	id, err := tagcodec.Decode(name)
	if err != nil {
		metrics.CodecErrors.WithLabelValues("decode").Inc()
		return 0, err
	}
	return id, nil
}

// Reserve registers a new tag for req. With a call site the id is derived
// from it, and reserving the same call site again returns the existing
// tag with created set to false. Without one the next counter id is used.
// It retries generation/save on collisions.
func (s *TagService) Reserve(ctx context.Context, req models.ReserveRequest) (tag *models.Tag, created bool, err error) {
	if !componentRE.MatchString(req.Component) {
		return nil, false, ErrInvalidComponent
	}

	if req.CallSite != "" {
		if existing, err := s.findCallSite(ctx, req.CallSite); existing != nil || err != nil {
			return existing, false, err
		}
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		id, source, err := s.generate(ctx, req.CallSite, attempt)
		if err != nil {
			// generator failure is fatal
			return nil, false, err
		}

		name, err := tagcodec.Encode(id)
		if err != nil {
			return nil, false, fmt.Errorf("generator %s produced unreservable tag 0x%08x: %w", source, uint32(id), err)
		}

		exists, err := s.repo.ExistsByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if exists && req.CallSite != "" {
			// a concurrent request may have reserved this call site
			if existing, err := s.findCallSite(ctx, req.CallSite); existing != nil || err != nil {
				return existing, false, err
			}
		}
		if exists {
			metrics.ReservationCollisions.Inc()
			s.logger.Warn("tag collision", "tag", name, "generator", source, "attempt", attempt+1)
			continue
		}

		tag := &models.Tag{
			ID:          id,
			Name:        name,
			Component:   req.Component,
			CallSite:    req.CallSite,
			Description: req.Description,
			CreatedAt:   s.now(),
		}
		if err := s.repo.Save(ctx, tag); err != nil {
			// race: unique constraint, retry generation loop
			if errors.Is(err, repository.ErrDuplicate) {
				if req.CallSite != "" {
					if existing, err := s.findCallSite(ctx, req.CallSite); existing != nil || err != nil {
						return existing, false, err
					}
				}
				metrics.ReservationCollisions.Inc()
				s.logger.Warn("save race detected", "tag", name, "attempt", attempt+1, "max_attempts", maxAttempts)
				continue
			}
			return nil, false, err
		}

		metrics.Reservations.WithLabelValues(source).Inc()
		s.logger.Info("tag reserved", "tag", name, "component", tag.Component, "call_site", tag.CallSite)
		s.cacheLocal(tag)
		return tag, true, nil
	}

	return nil, false, ErrGenExhausted
}

// Lookup returns the registry record for a tag name.
func (s *TagService) Lookup(ctx context.Context, name string) (*models.Tag, error) {
	id, err := s.Decode(name)
	if err != nil {
		return nil, err
	}

	// ===== CACHE LAYER (L1) =====
	if entry, ok := s.l1.Get(id); ok && s.now().Before(entry.expires) {
		metrics.CacheHits.WithLabelValues("l1").Inc()
		return entry.tag, nil
	}
	metrics.CacheMisses.WithLabelValues("l1").Inc()

	// ===== CACHE LAYER (L2) =====
	key := cacheKey(id)
	if s.l2 != nil {
		var record models.TagRecord
		err := s.l2.Get(ctx, key, &record)
		switch {
		case err == nil:
			metrics.CacheHits.WithLabelValues("l2").Inc()
			tag := record.Tag()
			s.cacheLocal(tag)
			return tag, nil
		case errors.Is(err, cache.ErrCacheMiss):
			metrics.CacheMisses.WithLabelValues("l2").Inc()
		default:
			// a broken L2 only costs latency
			s.logger.Warn("l2 cache read failed", "tag", tagcodec.Format(id, true), "error", err)
		}
	}

	tag, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheLocal(tag)
	if s.l2 != nil {
		if err := s.l2.Set(ctx, key, tag.Record()); err != nil {
			s.logger.Warn("l2 cache write failed", "tag", tag.Name, "error", err)
		}
	}
	return tag, nil
}

// List returns the tags owned by component, or all tags if it is empty.
func (s *TagService) List(ctx context.Context, component string) ([]models.Tag, error) {
	if component != "" && !componentRE.MatchString(component) {
		return nil, ErrInvalidComponent
	}
	return s.repo.ListByComponent(ctx, component)
}

// Release deletes a reservation and invalidates both cache layers.
func (s *TagService) Release(ctx context.Context, name string) error {
	id, err := s.Decode(name)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return err
	}

	s.l1.Delete(id)
	if s.l2 != nil {
		if err := s.l2.Delete(ctx, cacheKey(id)); err != nil {
			s.logger.Warn("l2 cache invalidation failed", "tag", name, "error", err)
		}
	}
	s.logger.Info("tag released", "tag", name)
	return nil
}

// findCallSite returns the tag already reserved for callSite, or nil
// with no error when there is none.
func (s *TagService) findCallSite(ctx context.Context, callSite string) (*models.Tag, error) {
	tag, err := s.repo.FindByCallSite(ctx, callSite)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return tag, err
}

func (s *TagService) cacheLocal(tag *models.Tag) {
	s.l1.Put(tag.ID, l1Entry{tag: tag, expires: s.now().Add(l1TTL)})
}

// generate picks the id source for one Reserve attempt. Call sites hash
// to a stable id; later attempts salt the hash with the attempt number.
func (s *TagService) generate(ctx context.Context, callSite string, attempt int) (tagcodec.ID, string, error) {
	if callSite == "" {
		id, err := s.generator.Generate(ctx)
		return id, "counter", err
	}

	salt := ""
	if attempt > 0 {
		salt = strconv.Itoa(attempt) + ":"
	}
	id, err := idgen.NewHashGenerator(salt).GenerateFor(callSite)
	return id, "hash", err
}

// cacheKey keys the L2 cache by numeric id so every spelling of a name
// shares one entry.
func cacheKey(id tagcodec.ID) string {
	return strconv.FormatUint(uint64(id), 16)
}
