package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/b-open-io/backplane/internal/utils"
	"github.com/b-open-io/backplane/publish"
	"github.com/b-open-io/backplane/pubsub"
	"github.com/b-open-io/backplane/store"
	"github.com/redis/go-redis/v9"
)

// Redis connection defaults
const (
	DefaultRedisPort     = 6379
	DefaultRedisDB       = 0
	DefaultRedisPoolSize = 5
)

// Redis describes how to reach a Redis server. Exactly one target is used,
// in this order of precedence: URL, Socket, Sentinels, Host.
type Redis struct {
	URL        string   // redis://, rediss:// or unix:// connection string
	Socket     string   // unix socket path
	Sentinels  []string // sentinel host:port addresses
	MasterName string   // master monitored by the sentinels
	Host       string
	Port       int

	Password string
	DB       int
	PoolSize int

	TLS         bool   // force TLS for non-URL targets
	TLSInsecure bool   // skip certificate verification
	TLSCAFile   string // PEM bundle of trusted roots

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoadRedis reads the Redis configuration from the environment.
func LoadRedis() (Redis, error) {
	c := Redis{
		URL:        os.Getenv("REDIS_URL"),
		Socket:     os.Getenv("REDIS_SOCKET"),
		MasterName: os.Getenv("REDIS_MASTER_NAME"),
		Host:       os.Getenv("REDIS_HOST"),
		Password:   os.Getenv("REDIS_PASSWORD"),
		TLSCAFile:  os.Getenv("REDIS_TLS_CA_FILE"),
	}
	if s := os.Getenv("REDIS_SENTINELS"); s != "" {
		for _, addr := range strings.Split(s, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				c.Sentinels = append(c.Sentinels, addr)
			}
		}
	}

	var err error
	if c.Port, err = envInt("REDIS_PORT", DefaultRedisPort); err != nil {
		return c, err
	}
	if c.DB, err = envInt("REDIS_DB", DefaultRedisDB); err != nil {
		return c, err
	}
	if c.PoolSize, err = envInt("REDIS_POOL_SIZE", DefaultRedisPoolSize); err != nil {
		return c, err
	}
	if c.TLS, err = envBool("REDIS_TLS"); err != nil {
		return c, err
	}
	if c.TLSInsecure, err = envBool("REDIS_TLS_INSECURE"); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks that a target is configured.
func (c Redis) Validate() error {
	switch {
	case c.URL != "", c.Socket != "":
		return nil
	case len(c.Sentinels) > 0:
		if c.MasterName == "" {
			return ErrNoMasterName
		}
		return nil
	case c.Host != "":
		if c.Port < 0 || c.Port > 65535 {
			return ErrInvalidPort
		}
		return nil
	default:
		return ErrNoTarget
	}
}

// Target describes the configured target with credentials removed.
func (c Redis) Target() string {
	switch {
	case c.URL != "":
		return utils.SanitizeConnectionString(c.URL)
	case c.Socket != "":
		return "unix://" + c.Socket
	case len(c.Sentinels) > 0:
		return fmt.Sprintf("sentinel://%s/%s", utils.SanitizeAddrs(c.Sentinels), c.MasterName)
	default:
		return "redis://" + c.addr()
	}
}

func (c Redis) addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultRedisPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c Redis) poolSize() int {
	if c.PoolSize > 0 {
		return c.PoolSize
	}
	return DefaultRedisPoolSize
}

// TLSConfig builds the client TLS configuration, or nil when TLS is off.
func (c Redis) TLSConfig() (*tls.Config, error) {
	if !c.TLS && c.TLSCAFile == "" {
		return nil, nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.TLSInsecure,
	}
	if c.TLSCAFile != "" {
		pem, err := os.ReadFile(c.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.TLSCAFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// ClientFunc resolves the configuration once and returns a constructor for
// clients bound to it. Each call of the constructor returns a new pool.
func (c Redis) ClientFunc() (func() *redis.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	tlsConfig, err := c.TLSConfig()
	if err != nil {
		return nil, err
	}

	if len(c.Sentinels) > 0 && c.URL == "" && c.Socket == "" {
		opts := &redis.FailoverOptions{
			MasterName:    c.MasterName,
			SentinelAddrs: c.Sentinels,
			Password:      c.Password,
			DB:            c.DB,
			PoolSize:      c.poolSize(),
			TLSConfig:     tlsConfig,
			DialTimeout:   c.DialTimeout,
			ReadTimeout:   c.ReadTimeout,
			WriteTimeout:  c.WriteTimeout,
		}
		return func() *redis.Client {
			o := *opts
			return redis.NewFailoverClient(&o)
		}, nil
	}

	opts, err := c.options(tlsConfig)
	if err != nil {
		return nil, err
	}
	return func() *redis.Client {
		o := *opts
		return redis.NewClient(&o)
	}, nil
}

func (c Redis) options(tlsConfig *tls.Config) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case c.URL != "":
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opts = parsed
		// explicit settings fill what the URL leaves out
		if opts.Password == "" {
			opts.Password = c.Password
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = tlsConfig
		}
	case c.Socket != "":
		opts = &redis.Options{
			Network:   "unix",
			Addr:      c.Socket,
			Password:  c.Password,
			DB:        c.DB,
			TLSConfig: tlsConfig,
		}
	default:
		opts = &redis.Options{
			Addr:      c.addr(),
			Password:  c.Password,
			DB:        c.DB,
			TLSConfig: tlsConfig,
		}
	}

	if opts.PoolSize == 0 {
		opts.PoolSize = c.poolSize()
	}
	if c.DialTimeout > 0 {
		opts.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		opts.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		opts.WriteTimeout = c.WriteTimeout
	}
	return opts, nil
}

// Dialer returns a pub/sub dialer for the configured target.
func (c Redis) Dialer() (*pubsub.RedisDialer, error) {
	newClient, err := c.ClientFunc()
	if err != nil {
		return nil, err
	}
	return pubsub.NewRedisDialer(newClient), nil
}

// Store returns a command store on its own client.
func (c Redis) Store() (*store.RedisStore, error) {
	newClient, err := c.ClientFunc()
	if err != nil {
		return nil, err
	}
	return store.NewRedisStoreFromClient(newClient()), nil
}

// Publisher returns a publisher on its own client.
func (c Redis) Publisher() (*publish.RedisPublish, error) {
	newClient, err := c.ClientFunc()
	if err != nil {
		return nil, err
	}
	return publish.NewRedisPublishFromClient(newClient()), nil
}

func envInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", name, err)
	}
	return v, nil
}

func envBool(name string) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", name, err)
	}
	return v, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return def, fmt.Errorf("config: %s: %w", name, err)
	}
	return v, nil
}
