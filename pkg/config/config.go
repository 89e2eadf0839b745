package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	Catalog  CatalogConfig
	Cart     CartConfig
	Redis    RedisConfig
	DB       DBConfig
	Events   EventsConfig
	Payment  PaymentConfig
	YooKassa YooKassaConfig
	Square   SquareConfig
	Cron     CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if strings.TrimSpace(cfg.Catalog.SourceURL) == "" {
		return nil, fmt.Errorf("%s is required", EnvCatalogURL)
	}
	if strings.TrimSpace(cfg.Payment.ReturnURL) == "" {
		return nil, fmt.Errorf("%s is required", EnvPaymentReturnURL)
	}
	if err := cfg.Cart.validate(); err != nil {
		return nil, err
	}
	switch cfg.Cart.Driver {
	case CartDriverPostgres:
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	case CartDriverSQLite:
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = defaultSQLiteDSN
		}
	}
	if cfg.NeedsRedis() && cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("%s or %s is required when redis is in use", EnvRedisURL, EnvRedisAddr)
	}
	if err := cfg.Payment.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NeedsRedis reports whether any component is configured to talk to Redis.
func (c Config) NeedsRedis() bool {
	return c.Cart.Driver == CartDriverRedis || c.Events.RedisBridge
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	// CORSOrigins is a comma separated allow-list for browser clients.
	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// CatalogConfig points at the spreadsheet-backed product feed.
type CatalogConfig struct {
	SourceURL       string        `envconfig:"STOREFRONT_CATALOG_URL" required:"true"`
	HeaderName      string        `envconfig:"STOREFRONT_CATALOG_HEADER_NAME" default:"Название"`
	FetchTimeout    time.Duration `envconfig:"STOREFRONT_CATALOG_FETCH_TIMEOUT" default:"10s"`
	RefreshInterval time.Duration `envconfig:"STOREFRONT_CATALOG_REFRESH_INTERVAL" default:"5m"`
}

type CartConfig struct {
	Driver     string `envconfig:"STOREFRONT_CART_DRIVER" default:"memory"`
	SlotPrefix string `envconfig:"STOREFRONT_CART_SLOT_PREFIX" default:"cart"`
	// UnlimitedStock is what sizeless products report as available.
	UnlimitedStock int           `envconfig:"STOREFRONT_CART_UNLIMITED_STOCK" default:"999"`
	MaxRetries     int           `envconfig:"STOREFRONT_CART_MAX_RETRIES" default:"8"`
	SlotTTL        time.Duration `envconfig:"STOREFRONT_CART_SLOT_TTL" default:"720h"`
	UndoWindow     time.Duration `envconfig:"STOREFRONT_CART_UNDO_WINDOW" default:"3s"`
}

// UsesSQL reports whether cart slots live in a relational database.
func (c CartConfig) UsesSQL() bool {
	return c.Driver == CartDriverPostgres || c.Driver == CartDriverSQLite
}

func (c CartConfig) validate() error {
	switch c.Driver {
	case CartDriverMemory, CartDriverRedis, CartDriverPostgres, CartDriverSQLite:
	default:
		return fmt.Errorf("%s must be one of memory, redis, postgres, sqlite (got %q)", EnvCartDriver, c.Driver)
	}
	if c.UnlimitedStock <= 0 {
		return fmt.Errorf("%s must be positive", EnvCartUnlimitedStock)
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type DBConfig struct {
	DSN string `envconfig:"STOREFRONT_DB_DSN"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type EventsConfig struct {
	Channel     string `envconfig:"STOREFRONT_EVENTS_CHANNEL" default:"cart_updated"`
	RedisBridge bool   `envconfig:"STOREFRONT_EVENTS_REDIS_BRIDGE" default:"false"`
}

type PaymentConfig struct {
	Provider  string `envconfig:"STOREFRONT_PAYMENT_PROVIDER" default:"yookassa"`
	Currency  string `envconfig:"STOREFRONT_PAYMENT_CURRENCY" default:"RUB"`
	ReturnURL string `envconfig:"STOREFRONT_PAYMENT_RETURN_URL" required:"true"`
}

func (p PaymentConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.Provider)) {
	case PaymentProviderYooKassa, PaymentProviderSquare:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvPaymentProvider, PaymentProviderYooKassa, PaymentProviderSquare)
	}
}

// ProviderName returns the normalized provider identifier.
func (p PaymentConfig) ProviderName() string {
	return strings.ToLower(strings.TrimSpace(p.Provider))
}

// CronConfig drives the maintenance worker. Cart slots older than
// Cart.SlotTTL are purged every Interval.
type CronConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"55m"`
}

type YooKassaConfig struct {
	ShopID    string        `envconfig:"STOREFRONT_YOOKASSA_SHOP_ID"`
	SecretKey string        `envconfig:"STOREFRONT_YOOKASSA_SECRET_KEY"`
	BaseURL   string        `envconfig:"STOREFRONT_YOOKASSA_BASE_URL" default:"https://api.yookassa.ru/v3"`
	Timeout   time.Duration `envconfig:"STOREFRONT_YOOKASSA_TIMEOUT" default:"15s"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
