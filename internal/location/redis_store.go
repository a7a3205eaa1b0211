package location

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/courier-dispatch/internal/models"
	"github.com/example/courier-dispatch/internal/storage"
)

// RedisStore keeps rider positions in Redis: a hash per rider holding the
// latest sample, plus membership in a GEO set so ops tooling can query
// riders spatially. Both writes are latest-wins.
type RedisStore struct {
	client *redis.Client
	geoKey string
}

func NewRedisStore(addr, password, geoKey string) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisStore{client: c, geoKey: geoKey}
}

// NewRedisStoreWithClient wires an existing client, used by the consumer
// binary which manages its own connection.
func NewRedisStoreWithClient(c *redis.Client, geoKey string) *RedisStore {
	return &RedisStore{client: c, geoKey: geoKey}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) Upsert(ctx context.Context, loc models.RiderLocation) error {
	if _, err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
		Longitude: loc.Longitude,
		Latitude:  loc.Latitude,
		Name:      loc.RiderID,
	}).Result(); err != nil {
		return storageErr(err)
	}
	if err := r.client.HSet(ctx, locKey(loc.RiderID), map[string]interface{}{
		"latitude":   strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		"longitude":  strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
		"updated_at": loc.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}).Err(); err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *RedisStore) Latest(ctx context.Context, riderID string) (models.RiderLocation, bool, error) {
	m, err := r.client.HGetAll(ctx, locKey(riderID)).Result()
	if err != nil {
		return models.RiderLocation{}, false, storageErr(err)
	}
	if len(m) == 0 {
		return models.RiderLocation{}, false, nil
	}
	loc := models.RiderLocation{RiderID: riderID}
	if v, ok := m["latitude"]; ok {
		loc.Latitude, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["longitude"]; ok {
		loc.Longitude, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := m["updated_at"]; ok {
		loc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return loc, true, nil
}

func locKey(riderID string) string { return "rider:loc:" + riderID }

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
}
