package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ChainConfig describes one chain the node can transact on
type ChainConfig struct {
	ChainID      uint64 `yaml:"chain_id"`
	RPCURL       string `yaml:"rpc_url"`
	WalletRPCURL string `yaml:"wallet_rpc_url"`
	// PaymentManager receives allowances for transfers settled on this chain
	PaymentManager string `yaml:"payment_manager"`
}

// ContractsConfig holds the ledger contract addresses of the home chain
type ContractsConfig struct {
	Version        int    `yaml:"version"`
	ACP            string `yaml:"acp"`
	JobManager     string `yaml:"job_manager"`
	MemoManager    string `yaml:"memo_manager"`
	PaymentManager string `yaml:"payment_manager"`
}

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort string `yaml:"server_port"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Wallet
	PrivateKey    string `yaml:"private_key"`
	WalletAddress string `yaml:"wallet_address"`

	// Chains
	Home             ChainConfig     `yaml:"home"`
	Contracts        ContractsConfig `yaml:"contracts"`
	BaseFareAddress  string          `yaml:"base_fare_address"`
	BaseFareDecimals uint8           `yaml:"base_fare_decimals"`
	Chains           []ChainConfig   `yaml:"chains"`

	// Collaborators
	BackendURL   string  `yaml:"backend_url"`
	BackendRPS   float64 `yaml:"backend_rps"`
	BackendBurst int     `yaml:"backend_burst"`
	X402URL      string  `yaml:"x402_url"`

	// Dispatcher
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMultiplier  float64       `yaml:"poll_multiplier"`
	PollMaxInterval time.Duration `yaml:"poll_max_interval"`
	PollAttempts    int           `yaml:"poll_attempts"`
	Optimistic      bool          `yaml:"optimistic"`

	// Scheduler and policy
	Workers        int  `yaml:"workers"`
	AcceptRequests bool `yaml:"accept_requests"`
	AutoPay        bool `yaml:"auto_pay"`
	AutoEvaluate   bool `yaml:"auto_evaluate"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		ServerPort: "8080",
		LogLevel:   "info",
		LogFormat:  "json",
		Home: ChainConfig{
			ChainID: 8453,
			RPCURL:  "https://mainnet.base.org",
		},
		Contracts:        ContractsConfig{Version: 2},
		BaseFareAddress:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		BaseFareDecimals: 6,
		BackendURL:       "https://acpx.virtuals.io",
		BackendRPS:       5,
		BackendBurst:     5,
		MaxRetries:       3,
		RetryDelay:       time.Second,
		PollInterval:     time.Second,
		PollMultiplier:   1.5,
		PollMaxInterval:  15 * time.Second,
		PollAttempts:     20,
		Workers:          4,
	}
}

// Load reads configuration from defaults, then the YAML file named by ACP_CONFIG_FILE,
// then environment variables. A .env file at envFilePath is loaded first when present.
func Load(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := Defaults()
	if path := os.Getenv("ACP_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.PrivateKey = getEnv("ACP_PRIVATE_KEY", c.PrivateKey)
	c.WalletAddress = getEnv("ACP_WALLET_ADDRESS", c.WalletAddress)
	c.Home.RPCURL = getEnv("ACP_RPC_URL", c.Home.RPCURL)
	c.Home.WalletRPCURL = getEnv("ACP_WALLET_RPC_URL", c.Home.WalletRPCURL)
	c.Contracts.ACP = getEnv("ACP_CONTRACT_ADDRESS", c.Contracts.ACP)
	c.Contracts.JobManager = getEnv("ACP_JOB_MANAGER", c.Contracts.JobManager)
	c.Contracts.MemoManager = getEnv("ACP_MEMO_MANAGER", c.Contracts.MemoManager)
	c.Contracts.PaymentManager = getEnv("ACP_PAYMENT_MANAGER", c.Contracts.PaymentManager)
	c.BaseFareAddress = getEnv("ACP_BASE_FARE_ADDRESS", c.BaseFareAddress)
	c.BackendURL = getEnv("ACP_BACKEND_URL", c.BackendURL)
	c.X402URL = getEnv("ACP_X402_URL", c.X402URL)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(envUint("ACP_CHAIN_ID", &c.Home.ChainID))
	collect(envInt("ACP_PROTOCOL_VERSION", &c.Contracts.Version))
	collect(envUint8("ACP_BASE_FARE_DECIMALS", &c.BaseFareDecimals))
	collect(envFloat("ACP_BACKEND_RPS", &c.BackendRPS))
	collect(envInt("ACP_BACKEND_BURST", &c.BackendBurst))
	collect(envInt("ACP_MAX_RETRIES", &c.MaxRetries))
	collect(envDuration("ACP_RETRY_DELAY", &c.RetryDelay))
	collect(envDuration("ACP_POLL_INTERVAL", &c.PollInterval))
	collect(envFloat("ACP_POLL_MULTIPLIER", &c.PollMultiplier))
	collect(envDuration("ACP_POLL_MAX_INTERVAL", &c.PollMaxInterval))
	collect(envInt("ACP_POLL_ATTEMPTS", &c.PollAttempts))
	collect(envBool("ACP_OPTIMISTIC", &c.Optimistic))
	collect(envInt("ACP_WORKERS", &c.Workers))
	collect(envBool("ACP_ACCEPT_REQUESTS", &c.AcceptRequests))
	collect(envBool("ACP_AUTO_PAY", &c.AutoPay))
	collect(envBool("ACP_AUTO_EVALUATE", &c.AutoEvaluate))
	return errors.Join(errs...)
}

// Validate reports settings the daemon cannot start without
func (c *Config) Validate() error {
	var errs []error
	if c.PrivateKey == "" {
		errs = append(errs, errors.New("ACP_PRIVATE_KEY is required"))
	}
	if c.Contracts.ACP == "" {
		errs = append(errs, errors.New("ACP_CONTRACT_ADDRESS is required"))
	}
	if c.Contracts.Version != 1 && c.Contracts.Version != 2 {
		errs = append(errs, fmt.Errorf("unsupported protocol version %d", c.Contracts.Version))
	}
	if c.Home.ChainID == 0 {
		errs = append(errs, errors.New("ACP_CHAIN_ID is required"))
	}
	if c.Home.RPCURL == "" {
		errs = append(errs, errors.New("ACP_RPC_URL is required"))
	}
	for _, chain := range c.Chains {
		if chain.ChainID == 0 || chain.RPCURL == "" {
			errs = append(errs, fmt.Errorf("chain entry needs chain_id and rpc_url: %+v", chain))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, dst *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envUint(key string, dst *uint64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envUint8(key string, dst *uint8) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = uint8(n)
	return nil
}

func envFloat(key string, dst *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
