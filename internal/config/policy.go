package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy carries the business constants that operators may tune without a
// redeploy. Rates are in euro cents.
type Policy struct {
	VATPercent            float64         `mapstructure:"vatPercent"`
	TakeRatePercent       float64         `mapstructure:"takeRatePercent"`
	LockTimeoutMinutes    int             `mapstructure:"lockTimeoutMinutes"`
	RefundMinAgeMonths    int             `mapstructure:"refundMinAgeMonths"`
	ProviderFeePercent    float64         `mapstructure:"providerFeePercent"`
	ProviderFeeFixedCents int64           `mapstructure:"providerFeeFixedCents"`
	Credits               CreditsDefaults `mapstructure:"credits"`
}

type CreditsDefaults struct {
	FirstLeadsCount int   `mapstructure:"firstLeadsCount"`
	FirstLeadsRate  int64 `mapstructure:"firstLeadsRate"`
	AfterFirstRate  int64 `mapstructure:"afterFirstRate"`
	StandardRate    int64 `mapstructure:"standardRate"`
}

func (p Policy) LockTimeout() time.Duration {
	return time.Duration(p.LockTimeoutMinutes) * time.Minute
}

func DefaultPolicy() Policy {
	return Policy{
		VATPercent:            19,
		TakeRatePercent:       15,
		LockTimeoutMinutes:    30,
		RefundMinAgeMonths:    2,
		ProviderFeePercent:    2.9,
		ProviderFeeFixedCents: 30,
		Credits: CreditsDefaults{
			FirstLeadsCount: 5,
			FirstLeadsRate:  5000,
			AfterFirstRate:  7500,
			StandardRate:    10000,
		},
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("policy.config")
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/leadgate")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("policy.vatPercent", defaults.VATPercent)
	v.SetDefault("policy.takeRatePercent", defaults.TakeRatePercent)
	v.SetDefault("policy.lockTimeoutMinutes", defaults.LockTimeoutMinutes)
	v.SetDefault("policy.refundMinAgeMonths", defaults.RefundMinAgeMonths)
	v.SetDefault("policy.providerFeePercent", defaults.ProviderFeePercent)
	v.SetDefault("policy.providerFeeFixedCents", defaults.ProviderFeeFixedCents)
	v.SetDefault("policy.credits.firstLeadsCount", defaults.Credits.FirstLeadsCount)
	v.SetDefault("policy.credits.firstLeadsRate", defaults.Credits.FirstLeadsRate)
	v.SetDefault("policy.credits.afterFirstRate", defaults.Credits.AfterFirstRate)
	v.SetDefault("policy.credits.standardRate", defaults.Credits.StandardRate)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg Policy
	if err := v.UnmarshalKey("policy", &cfg); err != nil {
		return nil, err
	}
	if err := validatePolicy(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(cfg)
	if !fileLoaded {
		log.Info("policy file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.UnmarshalKey("policy", &updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	p, ok := h.current.Load().(Policy)
	if !ok {
		return DefaultPolicy()
	}
	return p
}

func validatePolicy(p Policy) error {
	if p.VATPercent < 0 {
		return errors.New("policy.vatPercent cannot be negative")
	}
	if p.TakeRatePercent < 0 || p.TakeRatePercent > 100 {
		return errors.New("policy.takeRatePercent must be within 0..100")
	}
	if p.LockTimeoutMinutes <= 0 {
		return errors.New("policy.lockTimeoutMinutes must be positive")
	}
	if p.RefundMinAgeMonths < 0 {
		return errors.New("policy.refundMinAgeMonths cannot be negative")
	}
	if p.ProviderFeePercent < 0 || p.ProviderFeeFixedCents < 0 {
		return errors.New("policy provider fee cannot be negative")
	}
	if p.Credits.FirstLeadsCount < 0 || p.Credits.StandardRate < 0 {
		return errors.New("policy.credits defaults cannot be negative")
	}
	return nil
}
