package svc

import (
	"context"
	"time"

	"clipd/cfg"
	"clipd/metrics"
	"clipd/pkg/domain"
	"clipd/svc/auth"
	"clipd/svc/cache"
	"clipd/svc/db"
	"clipd/svc/util"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Clips orchestrates validation, short code allocation and store access
// for the create and get use cases.
type Clips struct {
	db     *db.SQLite
	lru    *cache.LRU
	rdb    *db.Redis
	hasher *auth.Hasher
	views  *Views
	cfg    *cfg.Cfg
	fetch  singleflight.Group
}

func NewClips(sqlDB *db.SQLite, lru *cache.LRU, rdb *db.Redis, h *auth.Hasher, views *Views, c *cfg.Cfg) *Clips {
	if sqlDB == nil || lru == nil || h == nil || views == nil || c == nil {
		panic("clip service: nil dependency (sqlDB, lru, hasher, views, or cfg)")
	}
	return &Clips{
		db:     sqlDB,
		lru:    lru,
		rdb:    rdb,
		hasher: h,
		views:  views,
		cfg:    c,
	}
}

// Create validates the request, allocates a short code and persists the
// clip. A store-level code collision is recovered by regenerating the code,
// up to cfg.CodeAttempts times; past the cap the caller gets an internal
// error rather than an unbounded retry.
func (s *Clips) Create(ctx context.Context, params domain.NewClipParams) (*domain.Clip, error) {
	if int64(len(params.Content)) > s.cfg.MaxClipSize {
		return nil, domain.ErrClipTooLarge
	}
	content, err := domain.NewContent(params.Content)
	if err != nil {
		return nil, err
	}
	title := domain.NewTitle(params.Title)
	password := domain.NewPassword(params.Password)
	now := time.Now().UTC()
	expiresAt, err := domain.NewExpiresAt(params.ExpiresAt, now)
	if err != nil {
		return nil, err
	}

	var pwHash string
	if password != "" {
		pwHash, err = s.hasher.Hash(password)
		if err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
	}

	clip := &domain.Clip{
		Content:      content,
		Title:        title,
		PasswordHash: pwHash,
		PostedAt:     now,
		ExpiresAt:    expiresAt,
	}

	for attempt := 0; attempt < s.cfg.CodeAttempts; attempt++ {
		code, err := domain.NewShortCode()
		if err != nil {
			return nil, errors.Wrap(err, "generate short code")
		}
		clip.ShortCode = code
		err = s.db.Insert(ctx, clip)
		if err == nil {
			s.cacheClip(ctx, clip)
			metrics.ClipCreated.Inc()
			return clip, nil
		}
		if errors.Is(err, domain.ErrCodeConflict) {
			metrics.CodeConflicts.Inc()
			util.Debug().Str("code", code.String()).Int("attempt", attempt+1).Msg("short code collision, regenerating")
			continue
		}
		return nil, errors.Wrap(err, "insert clip")
	}
	util.Error().Int("attempts", s.cfg.CodeAttempts).Msg("short code space exhausted retries")
	return nil, domain.ErrCodeExhausted
}

// Get fetches a clip by short code. An expired clip is indistinguishable
// from a missing one even if the sweeper has not removed it yet. On
// success a view increment is enqueued; recording failures never fail
// the read.
func (s *Clips) Get(ctx context.Context, params domain.GetClipParams) (*domain.Clip, error) {
	now := time.Now()

	if clip := s.lru.Get(ctx, params.ShortCode); clip != nil {
		metrics.CacheHits.Inc()
		return s.finishGet(ctx, clip, params.Password, now)
	}
	metrics.CacheMisses.Inc()

	if s.rdb != nil {
		if clip, err := s.rdb.GetClip(ctx, params.ShortCode); err == nil && clip != nil {
			s.lru.Set(ctx, clip, s.cacheTTL(clip, now))
			return s.finishGet(ctx, clip, params.Password, now)
		}
	}

	v, err, _ := s.fetch.Do(params.ShortCode.String(), func() (interface{}, error) {
		return s.db.Get(ctx, params.ShortCode)
	})
	if err != nil {
		if errors.Is(err, domain.ErrClipNotFound) {
			return nil, domain.ErrClipNotFound
		}
		return nil, errors.Wrap(err, "get clip")
	}
	clip := v.(*domain.Clip)
	if !clip.Expired(now) {
		s.cacheClip(ctx, clip)
	}
	return s.finishGet(ctx, clip, params.Password, now)
}

func (s *Clips) finishGet(ctx context.Context, clip *domain.Clip, password string, now time.Time) (*domain.Clip, error) {
	if clip.Expired(now) {
		s.evict(ctx, clip.ShortCode)
		return nil, domain.ErrClipNotFound
	}
	if err := s.checkAccess(clip, password); err != nil {
		return nil, err
	}
	s.views.Record(clip.ShortCode, 1)
	metrics.ClipRetrieved.Inc()
	return clip, nil
}

func (s *Clips) checkAccess(clip *domain.Clip, password string) error {
	if !clip.PasswordProtected() {
		return nil
	}
	if password == "" {
		return domain.ErrPasswordRequired
	}
	match, err := s.hasher.Verify(password, clip.PasswordHash)
	if err != nil {
		return errors.Wrap(err, "verify password")
	}
	if !match {
		return domain.ErrInvalidPassword
	}
	return nil
}

func (s *Clips) cacheClip(ctx context.Context, clip *domain.Clip) {
	ttl := s.cacheTTL(clip, time.Now())
	if ttl <= 0 {
		return
	}
	s.lru.Set(ctx, clip, ttl)
	if s.rdb != nil {
		if err := s.rdb.CacheClip(ctx, clip, ttl); err != nil {
			util.Warn().Err(err).Str("code", clip.ShortCode.String()).Msg("failed to cache in Redis")
		}
	}
}

// cacheTTL bounds cache residency by the clip's own expiry; clips that
// never expire get the configured default so stale hit counts rotate out.
func (s *Clips) cacheTTL(clip *domain.Clip, now time.Time) time.Duration {
	if clip.ExpiresAt == nil {
		return s.cfg.CacheTTL
	}
	ttl := clip.ExpiresAt.Sub(now)
	if ttl > s.cfg.CacheTTL {
		return s.cfg.CacheTTL
	}
	return ttl
}

func (s *Clips) evict(ctx context.Context, code domain.ShortCode) {
	s.lru.Delete(code)
	if s.rdb != nil {
		if err := s.rdb.Delete(ctx, code); err != nil {
			util.Warn().Err(err).Str("code", code.String()).Msg("failed to evict from Redis")
		}
	}
}
