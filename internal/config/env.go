package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/scrypt"
)

const encryptedPrefix = "ENC:"

// EnvManager manages environment variable configuration
type EnvManager struct {
	encryptionKey []byte
	prefix        string
}

// NewEnvManager creates a new environment variable manager
func NewEnvManager(encryptionKey string, prefix string) *EnvManager {
	if encryptionKey == "" {
		encryptionKey = os.Getenv("MARKETCACHE_ENCRYPTION_KEY")
	}
	if prefix == "" {
		prefix = "MARKETCACHE_"
	}

	// Derive encryption key from password
	key, _ := scrypt.Key([]byte(encryptionKey), []byte("marketcache-salt"), 32768, 8, 1, 32)

	return &EnvManager{
		encryptionKey: key,
		prefix:        prefix,
	}
}

// GetString gets a string environment variable
func (em *EnvManager) GetString(key string, defaultValue string) string {
	value := os.Getenv(em.prefix + strings.ToUpper(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// GetInt gets an integer environment variable
func (em *EnvManager) GetInt(key string, defaultValue int) int {
	if intValue, err := strconv.Atoi(em.GetString(key, "")); err == nil {
		return intValue
	}
	return defaultValue
}

// GetBool gets a boolean environment variable
func (em *EnvManager) GetBool(key string, defaultValue bool) bool {
	if boolValue, err := strconv.ParseBool(em.GetString(key, "")); err == nil {
		return boolValue
	}
	return defaultValue
}

// GetDuration gets a duration environment variable
func (em *EnvManager) GetDuration(key string, defaultValue time.Duration) time.Duration {
	if duration, err := time.ParseDuration(em.GetString(key, "")); err == nil {
		return duration
	}
	return defaultValue
}

// GetList gets a comma separated environment variable
func (em *EnvManager) GetList(key string, defaultValue []string) []string {
	value := em.GetString(key, "")
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Apply overlays MARKETCACHE_* variables onto cfg and decrypts ENC: secrets.
func (em *EnvManager) Apply(cfg *Config) error {
	cfg.Server.Port = em.GetInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = em.GetString("SERVER_HOST", cfg.Server.Host)
	cfg.Logging.Level = logLevel(em.GetString("LOG_LEVEL", string(cfg.Logging.Level)))

	p := &cfg.Providers
	p.Bybit.BaseURL = em.GetString("BYBIT_BASE_URL", p.Bybit.BaseURL)
	p.Bybit.APIKey = em.GetString("BYBIT_API_KEY", p.Bybit.APIKey)
	p.Bybit.APISecret = em.GetString("BYBIT_API_SECRET", p.Bybit.APISecret)
	p.CoinGecko.BaseURL = em.GetString("COINGECKO_BASE_URL", p.CoinGecko.BaseURL)
	p.CoinGecko.APIKey = em.GetString("COINGECKO_API_KEY", p.CoinGecko.APIKey)
	p.CoinGecko.Enabled = em.GetBool("COINGECKO_ENABLED", p.CoinGecko.Enabled)
	p.FetchTimeout = em.GetDuration("FETCH_TIMEOUT", p.FetchTimeout)

	cfg.Sync.Enabled = em.GetBool("SYNC_ENABLED", cfg.Sync.Enabled)
	cfg.Sync.Interval = em.GetDuration("SYNC_INTERVAL", cfg.Sync.Interval)
	cfg.Sync.Symbols = em.GetList("SYNC_SYMBOLS", cfg.Sync.Symbols)

	s := &cfg.Storage
	s.Driver = em.GetString("STORAGE_DRIVER", s.Driver)
	s.Postgres.Host = em.GetString("POSTGRES_HOST", s.Postgres.Host)
	s.Postgres.Port = em.GetInt("POSTGRES_PORT", s.Postgres.Port)
	s.Postgres.User = em.GetString("POSTGRES_USER", s.Postgres.User)
	s.Postgres.Password = em.GetString("POSTGRES_PASSWORD", s.Postgres.Password)
	s.Postgres.DBName = em.GetString("POSTGRES_DB", s.Postgres.DBName)
	s.Redis.Addr = em.GetString("REDIS_ADDR", s.Redis.Addr)
	s.Redis.Password = em.GetString("REDIS_PASSWORD", s.Redis.Password)

	secrets := map[string]*string{
		"bybit.api_key":     &p.Bybit.APIKey,
		"bybit.api_secret":  &p.Bybit.APISecret,
		"coingecko.api_key": &p.CoinGecko.APIKey,
		"postgres.password": &s.Postgres.Password,
		"redis.password":    &s.Redis.Password,
	}
	for name, value := range secrets {
		plain, err := em.Reveal(*value)
		if err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", name, err)
		}
		*value = plain
	}
	return nil
}

// Reveal decrypts an ENC: prefixed value; other values are returned unchanged.
func (em *EnvManager) Reveal(value string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}
	return em.decrypt(strings.TrimPrefix(value, encryptedPrefix))
}

// Seal encrypts value and returns it with the ENC: prefix.
func (em *EnvManager) Seal(value string) (string, error) {
	encrypted, err := em.encrypt(value)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt value: %w", err)
	}
	return encryptedPrefix + encrypted, nil
}

// encrypt encrypts a string value
func (em *EnvManager) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(em.encryptionKey)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(plaintext))
	iv := ciphertext[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], []byte(plaintext))

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts an encrypted string value
func (em *EnvManager) decrypt(encryptedText string) (string, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encryptedText)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(em.encryptionKey)
	if err != nil {
		return "", err
	}

	if len(ciphertext) < aes.BlockSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	iv := ciphertext[:aes.BlockSize]
	ciphertext = ciphertext[aes.BlockSize:]

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(ciphertext, ciphertext)

	return string(ciphertext), nil
}
