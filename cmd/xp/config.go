package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Comcast/experiences/sio"
	"github.com/Comcast/experiences/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jsccast/yaml"
)

// Config is what -c loads.  Flags override some of it.
type Config struct {
	Store store.Conf `yaml:"store"`

	Session SessionConfig `yaml:"session"`

	// MQTT, if given, gets renders.
	MQTT *sio.MQTTConf `yaml:"mqtt"`

	// HTTP is the address for the preview server.
	HTTP string `yaml:"http" validate:"omitempty,hostname_port"`

	// Archive is a BoltDB filename.
	Archive string `yaml:"archive"`
}

type SessionConfig struct {
	URLParameters map[string]string      `yaml:"urlParameters"`
	UserInfo      map[string]interface{} `yaml:"userInfo"`
	DeviceContext map[string]interface{} `yaml:"deviceContext"`
	LenientURLs   bool                   `yaml:"lenientURLs"`
	FetchTimeout  time.Duration          `yaml:"fetchTimeout" validate:"gte=0"`
}

// SessionConf makes a sio.SessionConf.
func (c *SessionConfig) SessionConf() *sio.SessionConf {
	conf := sio.DefaultSessionConf
	conf.URLParameters = c.URLParameters
	conf.UserInfo = c.UserInfo
	conf.DeviceContext = c.DeviceContext
	conf.LenientURLs = c.LenientURLs
	if 0 < c.FetchTimeout {
		conf.FetchTimeout = c.FetchTimeout
	}
	return &conf
}

// DefaultMQTTConf is used when -mqtt is given without an mqtt
// section in the config.
func DefaultMQTTConf() *sio.MQTTConf {
	return &sio.MQTTConf{
		ClientId:  "xp-" + uuid.New().String()[:8],
		Reconnect: true,
		Retain:    true,
	}
}

// DefaultConfig is the configuration without -c.
func DefaultConfig() *Config {
	return &Config{
		Store: store.DefaultConf,
	}
}

// LoadConfig reads YAML over the defaults and validates the result.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig()
	if filename == "" {
		return c, nil
	}
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(bs, c); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if err = ValidateConfig(c); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return c, nil
}

var validate = validator.New()

// ValidateConfig checks the configuration's validation tags.
func ValidateConfig(c *Config) error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	ves, is := err.(validator.ValidationErrors)
	if !is {
		return err
	}
	msgs := make([]string, 0, len(ves))
	for _, e := range ves {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "hostname_port":
			msgs = append(msgs, field+" must be host:port")
		default:
			msgs = append(msgs, fmt.Sprintf("%s fails %s %s", field, e.Tag(), e.Param()))
		}
	}
	return fmt.Errorf("bad config: %s", strings.Join(msgs, "; "))
}
