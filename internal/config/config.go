// Package config loads, validates, and merges kingdom's project
// configuration. It decodes through viper like the teacher's
// internal/config/config.go, but builds a fresh viper instance on every
// Load instead of keeping a package-level one, and enforces a strictly
// enumerated key set: unknown keys fail validation instead of being
// silently ignored, per spec §4.11.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jbohnslav/kingdom/internal/kderrors"
)

// Member describes one configured council member.
type Member struct {
	Name    string            `json:"name" mapstructure:"name"`
	Backend string            `json:"backend" mapstructure:"backend"`
	Session string            `json:"session,omitempty" mapstructure:"session"`
	Prompts map[string]string `json:"prompts,omitempty" mapstructure:"prompts"`
}

// AgentConfig holds per-backend settings: the CLI binary name and any
// phase-specific prompt overrides (phases: ask/design/review/work).
type AgentConfig struct {
	CLI     string            `json:"cli" mapstructure:"cli"`
	Prompts map[string]string `json:"prompts,omitempty" mapstructure:"prompts"`
}

// Config is the fully decoded, validated project configuration.
type Config struct {
	Council struct {
		Members    []Member      `json:"members" mapstructure:"members"`
		Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
		AutoCommit bool          `json:"auto_commit" mapstructure:"auto_commit"`
		Chat       struct {
			AutoMessages int    `json:"auto_messages" mapstructure:"auto_messages"`
			Mode         string `json:"mode" mapstructure:"mode"` // "broadcast" | "sequential"
		} `json:"chat" mapstructure:"chat"`
	} `json:"council" mapstructure:"council"`

	Agents map[string]AgentConfig `json:"agents" mapstructure:"agents"`
}

// allowedTopKeys and allowedCouncilKeys/allowedChatKeys enumerate the
// complete configuration schema (spec §4.11). Any other top-level or
// nested key fails Validate.
var (
	allowedTopKeys     = map[string]bool{"council": true, "agents": true}
	allowedCouncilKeys = map[string]bool{"members": true, "timeout": true, "auto_commit": true, "chat": true}
	allowedChatKeys    = map[string]bool{"auto_messages": true, "mode": true}
	allowedMemberKeys  = map[string]bool{"name": true, "backend": true, "session": true, "prompts": true}
	allowedAgentKeys   = map[string]bool{"cli": true, "prompts": true}
)

// Load reads path's JSON content through viper (so env var overrides in
// the "KD_" namespace apply uniformly), validates the key set, fills in
// defaults, and decodes into a Config. A missing file yields defaults
// with zero council members.
func Load(path string) (*Config, error) {
	raw, err := readRawJSON(path)
	if err != nil {
		return nil, err
	}
	if err := validateKeys(raw); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("KD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("council.timeout", "300s")
	v.SetDefault("council.auto_commit", true)
	v.SetDefault("council.chat.mode", "broadcast")

	if len(raw) > 0 {
		encoded, mErr := json.Marshal(raw)
		if mErr != nil {
			return nil, kderrors.Wrap(kderrors.InvalidConfig, mErr, "re-encode %s", path)
		}
		if err := v.ReadConfig(strings.NewReader(string(encoded))); err != nil {
			return nil, kderrors.Wrap(kderrors.InvalidConfig, err, "parse %s", path)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, kderrors.Wrap(kderrors.InvalidConfig, err, "decode %s", path)
	}

	if cfg.Council.Chat.AutoMessages == 0 && len(cfg.Council.Members) > 0 {
		set := false
		if council, ok := raw["council"].(map[string]any); ok {
			if chat, ok := council["chat"].(map[string]any); ok {
				_, set = chat["auto_messages"]
			}
		}
		if !set {
			cfg.Council.Chat.AutoMessages = len(cfg.Council.Members)
		}
	}

	if err := cfg.validateSemantics(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readRawJSON(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path constructed by kingdom, not user input
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, kderrors.Wrap(kderrors.IO, err, "read %s", path)
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, kderrors.Wrap(kderrors.InvalidConfig, err, "parse %s", path)
	}
	return raw, nil
}

func validateKeys(raw map[string]any) error {
	for k := range raw {
		if !allowedTopKeys[k] {
			return kderrors.New(kderrors.InvalidConfig, "unknown top-level config key %q", k)
		}
	}
	if council, ok := raw["council"].(map[string]any); ok {
		for k, v := range council {
			if !allowedCouncilKeys[k] {
				return kderrors.New(kderrors.InvalidConfig, "unknown council config key %q", k)
			}
			if k == "chat" {
				chat, ok := v.(map[string]any)
				if !ok {
					return kderrors.New(kderrors.InvalidConfig, "council.chat must be an object")
				}
				for ck := range chat {
					if !allowedChatKeys[ck] {
						return kderrors.New(kderrors.InvalidConfig, "unknown council.chat config key %q", ck)
					}
				}
			}
			if k == "members" {
				members, ok := v.([]any)
				if !ok {
					return kderrors.New(kderrors.InvalidConfig, "council.members must be an array")
				}
				for _, m := range members {
					mm, ok := m.(map[string]any)
					if !ok {
						return kderrors.New(kderrors.InvalidConfig, "council.members entries must be objects")
					}
					for mk := range mm {
						if !allowedMemberKeys[mk] {
							return kderrors.New(kderrors.InvalidConfig, "unknown council.members key %q", mk)
						}
					}
				}
			}
		}
	}
	if agents, ok := raw["agents"].(map[string]any); ok {
		for _, v := range agents {
			av, ok := v.(map[string]any)
			if !ok {
				return kderrors.New(kderrors.InvalidConfig, "agents.* entries must be objects")
			}
			for ak := range av {
				if !allowedAgentKeys[ak] {
					return kderrors.New(kderrors.InvalidConfig, "unknown agents.* key %q", ak)
				}
			}
		}
	}
	return nil
}

func (c *Config) validateSemantics() error {
	seen := map[string]bool{}
	for _, m := range c.Council.Members {
		if m.Name == "" {
			return kderrors.New(kderrors.InvalidConfig, "council member missing name")
		}
		if seen[m.Name] {
			return kderrors.New(kderrors.InvalidConfig, "duplicate council member %q", m.Name)
		}
		seen[m.Name] = true
		if m.Backend == "" {
			return kderrors.New(kderrors.InvalidConfig, "council member %q missing backend", m.Name)
		}
	}
	switch c.Council.Chat.Mode {
	case "", "broadcast", "sequential":
	default:
		return kderrors.New(kderrors.InvalidConfig, "council.chat.mode must be broadcast or sequential, got %q", c.Council.Chat.Mode)
	}
	return nil
}

// MemberByName returns the configured member with the given name.
func (c *Config) MemberByName(name string) (Member, bool) {
	for _, m := range c.Council.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// MemberNames returns the configured council members in order.
func (c *Config) MemberNames() []string {
	names := make([]string, len(c.Council.Members))
	for i, m := range c.Council.Members {
		names[i] = m.Name
	}
	return names
}

