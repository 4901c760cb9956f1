package namecache

import "time"

// Option alters the default Cache configuration
type Option interface {
	apply(*Cache)
}

type optionFunc func(c *Cache)

func (f optionFunc) apply(c *Cache) { f(c) }

// UserTTL sets the maximum age of a user entry
func UserTTL(d time.Duration) Option {
	return optionFunc(func(c *Cache) {
		if d > 0 {
			c.userTTL = d
		}
	})
}

// GroupTTL sets the maximum age of a group entry
func GroupTTL(d time.Duration) Option {
	return optionFunc(func(c *Cache) {
		if d > 0 {
			c.groupTTL = d
		}
	})
}

// StoreTimeout bounds each store read and write
func StoreTimeout(d time.Duration) Option {
	return optionFunc(func(c *Cache) {
		if d > 0 {
			c.storeTimeout = d
		}
	})
}

// FetchTimeout bounds each call to the Fetcher
func FetchTimeout(d time.Duration) Option {
	return optionFunc(func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	})
}

// WithClock replaces time.Now, used by tests
func WithClock(now func() time.Time) Option {
	return optionFunc(func(c *Cache) {
		c.now = now
	})
}
