package core

import "strings"

// Settings exposes read-only agent configuration.
type Settings interface {
	GetSetting(key string) (string, bool)
}

// SettingsLister is implemented by Settings that can enumerate their keys.
type SettingsLister interface {
	SettingKeys() []string
}

var sensitivePatterns = []string{"key", "secret", "password", "token", "credential", "auth", "private"}

// IsSensitiveKey reports whether a setting key looks like it holds a secret.
// Sensitive settings must never be rendered into State.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)

	for _, p := range sensitivePatterns {
		if strings.Contains(k, p) {
			return true
		}
	}

	return false
}

// MapSettings is a Settings backed by a plain map.
type MapSettings map[string]string

// GetSetting implements Settings.
func (s MapSettings) GetSetting(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// SettingKeys implements SettingsLister.
func (s MapSettings) SettingKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}

	return keys
}
