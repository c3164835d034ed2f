package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HttpServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`

	// Empty rooms are removed when their last member leaves. The deployed
	// variants disagreed on this, so it is an explicit switch.
	DeleteEmptyRooms bool `env:"DELETE_EMPTY_ROOMS" envDefault:"true"`

	MirrorBackend   string `env:"MIRROR_BACKEND"    envDefault:"none" validate:"oneof=none redis postgres"`
	MirrorQueueSize int    `env:"MIRROR_QUEUE_SIZE" envDefault:"256"  validate:"min=1"`

	RedisRoomsHost string `env:"REDIS_ROOMS_HOST" envDefault:"localhost"`
	RedisRoomsPort uint16 `env:"REDIS_ROOMS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"trivia_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"trivia_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"trivia_db"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	// Parse config from environment variables
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	// Validate the config
	validate := validator.New()
	err = validate.Struct(cfg)
	if err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
