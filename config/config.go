package config

import (
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Auth     AuthConfig     `json:"auth"`
	Redis    RedisConfig    `json:"redis"`
	Kafka    KafkaConfig    `json:"kafka"`
}

type ServerConfig struct {
	Addr           string `json:"addr"`
	FrontendOrigin string `json:"frontend_origin"`
	SecureCookies  bool   `json:"secure_cookies"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

type OAuthProvider struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURL  string   `json:"redirect_url"`
	Scopes       []string `json:"scopes"`
}

type AuthConfig struct {
	JWTSecret   string `json:"jwt_secret"`
	TokenExpiry int    `json:"token_expiry"` // in hours
	OAuth       struct {
		Google OAuthProvider `json:"google"`
		GitHub OAuthProvider `json:"github"`
	} `json:"oauth"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type KafkaConfig struct {
	Enabled    bool     `json:"enabled"`
	Brokers    []string `json:"brokers"`
	SalesTopic string   `json:"sales_topic"`
	GroupID    string   `json:"group_id"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	Mechanism  string   `json:"mechanism"` // "", "SCRAM-SHA-256", "SCRAM-SHA-512"
	UseTLS     bool     `json:"use_tls"`
	CertFile   string   `json:"cert_file"`
	KeyFile    string   `json:"key_file"`
	CAFile     string   `json:"ca_file"`
}

func LoadConfig() (config Config, err error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.json"
	}
	file, err := os.Open(path)
	if err != nil {
		return config, err
	}
	defer func(file *os.File) {
		closeErr := file.Close()
		if closeErr != nil {
			log.Printf("Error closing config file: %v", closeErr)
		}
	}(file)
	decoder := json.NewDecoder(file)
	err = decoder.Decode(&config)
	if err != nil {
		return config, err
	}
	if config.Server.Addr == "" {
		config.Server.Addr = ":3000"
	}
	if config.Server.FrontendOrigin == "" {
		config.Server.FrontendOrigin = "http://localhost:5173"
	}
	if config.Auth.TokenExpiry <= 0 {
		config.Auth.TokenExpiry = 24
	}
	return config, nil
}
