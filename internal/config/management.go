package config

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// CheckAdminKey verifies a candidate key against the plain or bcrypt-hashed
// admin credential.
func CheckAdminKey(cfg *Config, candidate string) bool {
	if cfg == nil || candidate == "" {
		return false
	}
	if cfg.Server.AdminKey != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(cfg.Server.AdminKey)) == 1 {
		return true
	}
	if cfg.Server.AdminKeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(cfg.Server.AdminKeyHash), []byte(candidate)); err == nil {
			return true
		}
	}
	return false
}

// AdminKeyRequired reports whether the status surface is protected.
func AdminKeyRequired(cfg *Config) bool {
	return cfg != nil && (cfg.Server.AdminKey != "" || cfg.Server.AdminKeyHash != "")
}
