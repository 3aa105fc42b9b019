package bridge

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Credentials hold what is needed to reach the broker.
type Credentials struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Development-only defaults. Anything beyond a local broker must override
// them via config file or environment.
const (
	defaultHost     = "localhost"
	defaultPort     = 5672
	defaultUsername = "admin"
	defaultPassword = "admin"
)

// DefaultCredentials returns the local development defaults.
func DefaultCredentials() Credentials {
	return Credentials{
		Host:     defaultHost,
		Port:     defaultPort,
		Username: defaultUsername,
		Password: defaultPassword,
	}
}

// LoadCredentials reads credentials from an optional bridge.yaml (working
// directory or ./config) and the BRIDGE_* environment (BRIDGE_HOST,
// BRIDGE_PORT, BRIDGE_USERNAME, BRIDGE_PASSWORD). Missing sources fall back
// to the development defaults.
func LoadCredentials() (Credentials, error) {
	v := viper.New()
	v.SetConfigName("bridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("bridge")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("username", defaultUsername)
	v.SetDefault("password", defaultPassword)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Credentials{}, err
		}
		// No config file; defaults and environment apply.
	}

	var c Credentials
	if err := v.Unmarshal(&c); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// Addr returns "host:port".
func (c Credentials) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL renders the amqp connection URI for these credentials.
func (c Credentials) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Addr(),
	}
	return u.String()
}
