package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
		// LoginPath es el entry point de login al que redirige el gate.
		LoginPath string `yaml:"login_path"`
	} `yaml:"server"`

	// Backend dueño del endpoint de validación de tokens.
	Backend struct {
		BaseURL      string        `yaml:"base_url"`
		ValidatePath string        `yaml:"validate_path"`
		TokenPath    string        `yaml:"token_path"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"backend"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Session struct {
		// InteractiveTimeout acota cuánto espera un intento interactivo
		// antes de resolverse como cancelado.
		InteractiveTimeout time.Duration `yaml:"interactive_timeout"`
		// AccountTTL es el TTL del registro de cuenta persistido.
		AccountTTL time.Duration `yaml:"account_ttl"`
	} `yaml:"session"`

	Audit struct {
		Driver string `yaml:"driver"` // log | postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"audit"`

	Security struct {
		// SecretBoxMasterKey: base64(32 bytes) para sellar cuentas persistidas.
		SecretBoxMasterKey string `yaml:"secretbox_master_key"`
		// Fixed window para los endpoints de login.
		LoginRateMax    int           `yaml:"login_rate_max"`
		LoginRateWindow time.Duration `yaml:"login_rate_window"`
	} `yaml:"security"`

	// ───────── Identity Providers ─────────
	Providers struct {
		Microsoft struct {
			Enabled     bool     `yaml:"enabled"`
			ClientID    string   `yaml:"client_id"`
			TenantID    string   `yaml:"tenant_id"`
			Authority   string   `yaml:"authority"` // si vacío => https://login.microsoftonline.com/<tenant_id>/v2.0
			Scopes      []string `yaml:"scopes"`
			RedirectURI string   `yaml:"redirect_uri"`
		} `yaml:"microsoft"`
		Google struct {
			Enabled     bool     `yaml:"enabled"`
			ClientID    string   `yaml:"client_id"`
			Scopes      []string `yaml:"scopes"`
			RedirectURI string   `yaml:"redirect_uri"`
		} `yaml:"google"`
		Traditional struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"traditional"`
	} `yaml:"providers"`

	// Legacy: endpoints de autenticación delegada provistos por el host.
	// DEPRECATED: el modelo canónico es el de tokens del coordinador.
	Legacy struct {
		Enabled bool   `yaml:"enabled"`
		BaseURL string `yaml:"base_url"` // raíz que expone /.auth/*
	} `yaml:"legacy"`
}

func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.LoginPath == "" {
		c.Server.LoginPath = "/login"
	}
	if c.Backend.ValidatePath == "" {
		c.Backend.ValidatePath = "/api/auth/oauth/validate"
	}
	if c.Backend.TokenPath == "" {
		c.Backend.TokenPath = "/api/auth/token"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 10 * time.Second
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Session.InteractiveTimeout == 0 {
		c.Session.InteractiveTimeout = 5 * time.Minute
	}
	if c.Session.AccountTTL == 0 {
		c.Session.AccountTTL = 720 * time.Hour // 30d, como la sesión cacheada del SDK
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = "log"
	}
	if c.Security.LoginRateMax == 0 {
		c.Security.LoginRateMax = 10
	}
	if c.Security.LoginRateWindow == 0 {
		c.Security.LoginRateWindow = time.Minute
	}
	if len(c.Providers.Microsoft.Scopes) == 0 {
		c.Providers.Microsoft.Scopes = []string{"openid", "profile", "email"}
	}
	if len(c.Providers.Google.Scopes) == 0 {
		c.Providers.Google.Scopes = []string{"openid", "email", "profile"}
	}

	// validate string durations
	if c.Cache.Memory.DefaultTTL != "" {
		if _, err := time.ParseDuration(c.Cache.Memory.DefaultTTL); err != nil {
			return nil, err
		}
	}

	// Overrides por env + salvaguarda prod
	c.applyEnvOverrides()

	// Authority por defecto derivada del tenant (si hay tenant configurado)
	if strings.TrimSpace(c.Providers.Microsoft.Authority) == "" && strings.TrimSpace(c.Providers.Microsoft.TenantID) != "" {
		c.Providers.Microsoft.Authority = "https://login.microsoftonline.com/" + strings.TrimSpace(c.Providers.Microsoft.TenantID) + "/v2.0"
	}

	return &c, nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		if strings.TrimSpace(s) == "" {
			return []string{}, true
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	if v, ok := getEnvStr("SERVER_LOGIN_PATH"); ok {
		c.Server.LoginPath = v
	}

	// BACKEND
	if v, ok := getEnvStr("BACKEND_BASE_URL"); ok {
		c.Backend.BaseURL = v
	}
	if v, ok := getEnvStr("BACKEND_VALIDATE_PATH"); ok {
		c.Backend.ValidatePath = v
	}
	if v, ok := getEnvStr("BACKEND_TOKEN_PATH"); ok {
		c.Backend.TokenPath = v
	}
	if v, ok := getEnvDur("BACKEND_TIMEOUT"); ok {
		c.Backend.Timeout = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvStr("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// SESSION
	if v, ok := getEnvDur("SESSION_INTERACTIVE_TIMEOUT"); ok {
		c.Session.InteractiveTimeout = v
	}
	if v, ok := getEnvDur("SESSION_ACCOUNT_TTL"); ok {
		c.Session.AccountTTL = v
	}

	// AUDIT
	if v, ok := getEnvStr("AUDIT_DRIVER"); ok {
		c.Audit.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("AUDIT_DSN"); ok {
		c.Audit.DSN = v
	}

	// SECURITY
	if v, ok := getEnvStr("SECRETBOX_MASTER_KEY"); ok {
		c.Security.SecretBoxMasterKey = v
	}

	// ───── Providers ─────
	// MICROSOFT
	if v, ok := getEnvBool("MICROSOFT_ENABLED"); ok {
		c.Providers.Microsoft.Enabled = v
	} else if v, ok := getEnvBool("ENABLE_MICROSOFT_AUTH"); ok {
		// alias que usa el backend
		c.Providers.Microsoft.Enabled = v
	}
	if v, ok := getEnvStr("MICROSOFT_CLIENT_ID"); ok {
		c.Providers.Microsoft.ClientID = v
	}
	if v, ok := getEnvStr("MICROSOFT_TENANT_ID"); ok {
		c.Providers.Microsoft.TenantID = v
	}
	if v, ok := getEnvStr("MICROSOFT_AUTHORITY"); ok {
		c.Providers.Microsoft.Authority = v
	}
	if v, ok := getEnvCSV("MICROSOFT_SCOPES"); ok && len(v) > 0 {
		c.Providers.Microsoft.Scopes = v
	}
	if v, ok := getEnvStr("MICROSOFT_REDIRECT_URI"); ok {
		c.Providers.Microsoft.RedirectURI = v
	}

	// GOOGLE
	if v, ok := getEnvBool("GOOGLE_ENABLED"); ok {
		c.Providers.Google.Enabled = v
	} else if v, ok := getEnvBool("ENABLE_GOOGLE_AUTH"); ok {
		c.Providers.Google.Enabled = v
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_ID"); ok {
		c.Providers.Google.ClientID = v
	}
	if v, ok := getEnvCSV("GOOGLE_SCOPES"); ok && len(v) > 0 {
		c.Providers.Google.Scopes = v
	}
	if v, ok := getEnvStr("GOOGLE_REDIRECT_URI"); ok {
		c.Providers.Google.RedirectURI = v
	}

	// TRADITIONAL
	if v, ok := getEnvBool("TRADITIONAL_ENABLED"); ok {
		c.Providers.Traditional.Enabled = v
	}

	// LEGACY (delegado al host)
	if v, ok := getEnvBool("LEGACY_AUTH_ENABLED"); ok {
		c.Legacy.Enabled = v
	}
	if v, ok := getEnvStr("LEGACY_AUTH_BASE_URL"); ok {
		c.Legacy.BaseURL = v
	}
}
