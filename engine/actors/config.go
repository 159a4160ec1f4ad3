package actors

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/exp/slices"
	"tipbot/engine/library"
	"tipbot/state/accounts"
)

// InitConfig sets up our Viper config object. A rootDir set before the call (for example from
// a flag) is kept.
func InitConfig(config *viper.Viper) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	config.SetDefault("rootDir", filepath.Join(homeDir, "tipbot")+"/")
	if dir := config.GetString("rootDir"); !strings.HasSuffix(dir, "/") {
		config.Set("rootDir", dir+"/")
	}
	config.SetConfigType("yaml")
	config.SetConfigFile(config.GetString("rootDir") + "config.yaml")
	err = config.ReadInConfig()
	if err != nil {
		library.LogCLI(err.Error(), 4)
	}
	config.SetDefault("flatFileDir", "data/")
	config.SetDefault("logLevel", 4)
	config.SetDefault("database", "tipbot.db")

	config.SetDefault("bot.handle", "@tipbot")
	config.SetDefault("bot.query", "@tipbot tip")
	config.SetDefault("relays", []string{"wss://nos.lol", "wss://relay.damus.io", "wss://nostr.mutinywallet.com"})
	config.SetDefault("social.fetchTimeout", 10*time.Second)
	config.SetDefault("poll.interval", 2*time.Minute)
	config.SetDefault("poll.maxMentions", 100)

	config.SetDefault("chain.rpcEndpoint", "https://api.devnet.solana.com")
	config.SetDefault("chain.nativeCurrency", "SOL")
	config.SetDefault("chain.currencies", []string{"SOL", "USDC"})
	config.SetDefault("chain.nativeDecimals", 9)
	// lamports kept aside for the network fee
	config.SetDefault("chain.feeMargin", 5000)
	config.SetDefault("chain.confirmInterval", 1500*time.Millisecond)
	config.SetDefault("chain.confirmTimeout", 60*time.Second)
	config.SetDefault("chain.explorerTxURL", "https://explorer.solana.com/tx/%s?cluster=devnet")
	config.SetDefault("reconcile.maxAge", 72*time.Hour)

	// Create our working directory and config file if not exist
	initRootDir(config)
	library.Touch(config.GetString("rootDir") + "config.yaml")
	err = config.WriteConfig()
	if err != nil {
		library.LogCLI(err.Error(), 0)
	}
	library.SetLogLevel(config.GetInt("logLevel"))
}

func initRootDir(conf *viper.Viper) {
	_, err := os.Stat(conf.GetString("rootDir"))
	if os.IsNotExist(err) {
		err = os.MkdirAll(conf.GetString("rootDir"), 0755)
		if err != nil {
			library.LogCLI(err, 0)
		}
	}
}

var conf *viper.Viper

func MakeOrGetConfig() *viper.Viper {
	return conf
}

func SetConfig(config *viper.Viper) {
	conf = config
}

// Settings is a validated snapshot of the configuration. Code below cmd receives values from
// here instead of reading viper.
type Settings struct {
	RootDir         string
	FlatFileDir     string
	DatabasePath    string
	BotHandle       string
	BotQuery        string
	Relays          []string
	FetchTimeout    time.Duration
	PollInterval    time.Duration
	MaxMentions     int
	RPCEndpoint     string
	NativeCurrency  string
	Currencies      []string
	NativeDecimals  int32
	FeeMargin       uint64
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
	ExplorerTxURL   string
	ReconcileMaxAge time.Duration
}

func LoadSettings(config *viper.Viper) (Settings, error) {
	s := Settings{
		RootDir:         config.GetString("rootDir"),
		FlatFileDir:     config.GetString("flatFileDir"),
		BotQuery:        config.GetString("bot.query"),
		Relays:          config.GetStringSlice("relays"),
		FetchTimeout:    config.GetDuration("social.fetchTimeout"),
		PollInterval:    config.GetDuration("poll.interval"),
		MaxMentions:     config.GetInt("poll.maxMentions"),
		RPCEndpoint:     config.GetString("chain.rpcEndpoint"),
		NativeCurrency:  strings.ToUpper(config.GetString("chain.nativeCurrency")),
		NativeDecimals:  config.GetInt32("chain.nativeDecimals"),
		FeeMargin:       config.GetUint64("chain.feeMargin"),
		ConfirmInterval: config.GetDuration("chain.confirmInterval"),
		ConfirmTimeout:  config.GetDuration("chain.confirmTimeout"),
		ExplorerTxURL:   config.GetString("chain.explorerTxURL"),
		ReconcileMaxAge: config.GetDuration("reconcile.maxAge"),
	}
	s.DatabasePath = config.GetString("database")
	if !filepath.IsAbs(s.DatabasePath) {
		s.DatabasePath = filepath.Join(s.RootDir, s.DatabasePath)
	}
	for _, c := range config.GetStringSlice("chain.currencies") {
		s.Currencies = append(s.Currencies, strings.ToUpper(c))
	}

	h, err := accounts.NormalizeHandle(config.GetString("bot.handle"))
	if err != nil {
		return s, fmt.Errorf("bot.handle: %w", err)
	}
	s.BotHandle = h
	switch {
	case s.NativeCurrency == "":
		return s, fmt.Errorf("chain.nativeCurrency is required")
	case !slices.Contains(s.Currencies, s.NativeCurrency):
		return s, fmt.Errorf("chain.currencies %v must include %s", s.Currencies, s.NativeCurrency)
	case s.NativeDecimals < 0:
		return s, fmt.Errorf("chain.nativeDecimals must not be negative")
	case s.PollInterval <= 0:
		return s, fmt.Errorf("poll.interval must be positive")
	case s.ConfirmInterval <= 0 || s.ConfirmTimeout < s.ConfirmInterval:
		return s, fmt.Errorf("chain.confirmInterval must be positive and no longer than chain.confirmTimeout")
	case s.FetchTimeout <= 0:
		return s, fmt.Errorf("social.fetchTimeout must be positive")
	case s.RPCEndpoint == "":
		return s, fmt.Errorf("chain.rpcEndpoint is required")
	}
	return s, nil
}
