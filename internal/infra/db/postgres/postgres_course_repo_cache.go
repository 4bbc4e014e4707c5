package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bmosoluciones/now-lms-payments/internal/domain/model"
	"github.com/bmosoluciones/now-lms-payments/internal/domain/ports/repository"
	"github.com/bmosoluciones/now-lms-payments/internal/infra/metrics"
	red "github.com/bmosoluciones/now-lms-payments/internal/infra/redis"
)

var _ repository.CourseRepository = (*courseRepoCacheDecorator)(nil)

// courseRepoCacheDecorator caches course pricing lookups, which happen on
// every checkout and confirmation. Writes invalidate.
type courseRepoCacheDecorator struct {
	inner repository.CourseRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewCourseRepoCacheDecorator(inner repository.CourseRepository, cache red.RedisClient, ttl time.Duration) repository.CourseRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &courseRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func (d *courseRepoCacheDecorator) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Course, error) {
	key := fmt.Sprintf("course:%s", code)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("course", "hit")
		var course model.Course
		if json.Unmarshal([]byte(val), &course) == nil {
			return &course, nil
		}
	}

	metrics.IncCacheRequest("course", "miss")
	course, err := d.inner.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if course != nil {
		bytes, _ := json.Marshal(course)
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return course, nil
}

// For write operations, we must invalidate the cache.
func (d *courseRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, c *model.Course) error {
	_ = d.cache.Del(ctx, fmt.Sprintf("course:%s", c.Code), "courses:all")
	return d.inner.Save(ctx, tx, c)
}

func (d *courseRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, code string) error {
	_ = d.cache.Del(ctx, fmt.Sprintf("course:%s", code), "courses:all")
	return d.inner.Delete(ctx, tx, code)
}

// Also cache the full catalog list.
func (d *courseRepoCacheDecorator) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Course, error) {
	const key = "courses:all"
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("course_list", "hit")
		var courses []*model.Course
		if json.Unmarshal([]byte(val), &courses) == nil {
			return courses, nil
		}
	}

	metrics.IncCacheRequest("course_list", "miss")
	courses, err := d.inner.ListAll(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(courses) > 0 {
		bytes, _ := json.Marshal(courses)
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return courses, nil
}
