package config

import (
	"errors"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Consul    ConsulConfig    `mapstructure:"consul"`
	Mysql     MysqlConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Jwt       JwtConfig       `mapstructure:"jwt"`
	Midtrans  MidtransConfig  `mapstructure:"midtrans"`
	ApiCo     ApiCoConfig     `mapstructure:"apico"`
	ML        MLConfig        `mapstructure:"ml"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Elastic   ElasticConfig   `mapstructure:"elastic"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
	Cors      CorsConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServiceConfig struct {
	Name    string `mapstructure:"name"`
	Port    int    `mapstructure:"port"`
	Version string `mapstructure:"version"`
	Env     string `mapstructure:"env"`
}

type ConsulConfig struct {
	Address string `mapstructure:"address"`
}

type MysqlConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DbName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	Debug        bool   `mapstructure:"debug"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type JwtConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// MidtransConfig 支付网关 (Snap) 配置
type MidtransConfig struct {
	ServerKey  string `mapstructure:"server_key"`
	ClientKey  string `mapstructure:"client_key"`
	Production bool   `mapstructure:"production"`
	FinishURL  string `mapstructure:"finish_url"`
}

// ApiCoConfig 行政区划 / 运费查询接口 (api.co.id)
type ApiCoConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	ApiKey            string `mapstructure:"api_key"`
	OriginVillageCode string `mapstructure:"origin_village_code"`
}

type MLConfig struct {
	RecommenderURL string `mapstructure:"recommender_url"`
}

// RabbitMQConfig Url 为空时不发送订单事件
type RabbitMQConfig struct {
	Url      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// ElasticConfig Url 为空时商品搜索退回数据库 LIKE 查询
type ElasticConfig struct {
	Url   string `mapstructure:"url"`
	Index string `mapstructure:"index"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	CheckoutQPS float64 `mapstructure:"checkout_qps"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "oldmarket-gateway")
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.env", "development")
	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.dbname", "oldmarket")
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.max_open_conns", 100)
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("apico.base_url", "https://use.api.co.id")
	v.SetDefault("apico.origin_village_code", "3173011001")
	v.SetDefault("rabbitmq.exchange", "oldmarket.orders")
	v.SetDefault("elastic.index", "products")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/gateway.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("ratelimit.checkout_qps", 20)
	v.SetDefault("tracing.sample_ratio", 1.0)

	// 没有默认值的键显式绑定环境变量，否则 Unmarshal 时读不到
	for _, key := range []string{
		"mysql.password", "mysql.debug", "redis.address", "redis.password", "redis.db",
		"consul.address", "jwt.secret", "midtrans.server_key", "midtrans.client_key",
		"midtrans.production", "midtrans.finish_url", "apico.api_key", "ml.recommender_url",
		"rabbitmq.url", "elastic.url", "tracing.endpoint", "log.compress",
	} {
		_ = v.BindEnv(key)
	}
}

// LoadConfig 读取配置文件，环境变量优先 (MYSQL_HOST, JWT_SECRET, MIDTRANS_SERVER_KEY ...)
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 容器里只用环境变量也可以启动
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Printf("config.yaml not found in %s, using defaults and environment", path)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Config loaded successfully from %s", path)
	return &config, nil
}

// Validate 检查必须的密钥
func (c *Config) Validate() error {
	if c.Jwt.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Midtrans.ServerKey == "" {
		return errors.New("midtrans.server_key is required")
	}
	return nil
}
