package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	CartDriverMemory   = "memory"
	CartDriverRedis    = "redis"
	CartDriverPostgres = "postgres"
	CartDriverSQLite   = "sqlite"

	PaymentProviderYooKassa = "yookassa"
	PaymentProviderSquare   = "square"

	defaultSQLiteDSN = "file:storefront.db?_busy_timeout=5000"
)

const (
	EnvAppEnv  = "STOREFRONT_APP_ENV"
	EnvAppPort = "STOREFRONT_APP_PORT"

	EnvCatalogURL = "STOREFRONT_CATALOG_URL"

	EnvCartDriver         = "STOREFRONT_CART_DRIVER"
	EnvCartUnlimitedStock = "STOREFRONT_CART_UNLIMITED_STOCK"

	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvRedisAddr = "STOREFRONT_REDIS_ADDR"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvEventsRedisBridge = "STOREFRONT_EVENTS_REDIS_BRIDGE"

	EnvPaymentProvider  = "STOREFRONT_PAYMENT_PROVIDER"
	EnvPaymentReturnURL = "STOREFRONT_PAYMENT_RETURN_URL"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
