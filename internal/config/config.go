package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	App struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"app"`
	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`
	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`
	MQTT struct {
		Broker   string `mapstructure:"broker"`
		ClientID string `mapstructure:"client_id"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"mqtt"`
	Influx struct {
		URL    string `mapstructure:"url"`
		Token  string `mapstructure:"token"`
		Org    string `mapstructure:"org"`
		Bucket string `mapstructure:"bucket"`
	} `mapstructure:"influx"`
	MDNS struct {
		LocalName string `mapstructure:"local_name"`
	} `mapstructure:"mdns"`
}

// LoadConfig reads configuration from config.yaml, .env, or env vars
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("CONFIG: No .env file loaded:", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("app.port", 8080)
	viper.SetDefault("database.url", "postgres://localhost:5432/ecofarm")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.client_id", "ecofarm_backend")
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.org", "ecofarm")
	viper.SetDefault("influx.bucket", "sensor_data")
	viper.SetDefault("mdns.local_name", "ecofarm.local")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("CONFIG: No config.yaml found, using env and defaults")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
