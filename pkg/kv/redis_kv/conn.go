package redis_kv

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pmkol/sharedlru/pkg/kv"
)

// ConnOpts are the connection parameters of a redis server.
type ConnOpts struct {
	Host     string
	Port     int
	DB       int
	Password string
	PoolSize int
}

func (c *ConnOpts) addr() string {
	host, port := c.Host, c.Port
	if len(host) == 0 {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 6379
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Dial connects to redis and returns a Backend owning the client.
// opts.Client and opts.ClientCloser are overwritten.
func Dial(ctx context.Context, conn ConnOpts, opts RedisOpts) (*Backend, error) {
	timeout := opts.ClientTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         conn.addr(),
		DB:           conn.DB,
		Password:     conn.Password,
		PoolSize:     conn.PoolSize,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, kv.Unavailable("dial "+conn.addr(), err)
	}

	opts.Client = client
	opts.ClientCloser = client
	b, err := NewRedisBackend(opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}
