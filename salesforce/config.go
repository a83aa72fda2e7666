package salesforce

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultApiVersion = 59

// Config is the externally supplied credential and endpoint surface. The json
// tags match the secret blob layout used by LoadConfigFromSecretsManager.
type Config struct {
	ClientID         string `json:"clientId" validate:"required"`
	ClientSecret     string `json:"clientSecret" validate:"required"`
	Username         string `json:"username" validate:"required"`
	Password         string `json:"password" validate:"required"`
	TokenEndpointURL string `json:"tokenEndpointUrl" validate:"required,url"`
	// ObjectName is the sObject type integration tests run against.
	ObjectName string `json:"objectName"`
	ApiVersion int    `json:"apiVersion"`
}

// LoadConfig reads configuration from the environment, loading a .env file
// first if one is present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ClientID:         os.Getenv("SF_CLIENT_ID"),
		ClientSecret:     os.Getenv("SF_CLIENT_SECRET"),
		Username:         os.Getenv("SF_USERNAME"),
		Password:         os.Getenv("SF_PASSWORD"),
		TokenEndpointURL: os.Getenv("SF_TOKEN_ENDPOINT_URL"),
		ObjectName:       os.Getenv("SF_OBJECT_NAME"),
	}
	if v := os.Getenv("SF_API_VERSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			cfg.ApiVersion = n
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ApiVersion == 0 {
		c.ApiVersion = defaultApiVersion
	}
	return validator.New().Struct(c)
}
