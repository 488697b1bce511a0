package config

import "strings"

// NotificationEnvironment turns a process environment ("KEY=VALUE" entries)
// into the raw notification input. Process settings and SSM pointers are
// dropped so they never reach the audit log.
func NotificationEnvironment(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		if strings.HasPrefix(key, EnvPrefix) || strings.HasSuffix(key, ssmParamSuffix) {
			continue
		}
		env[key] = value
	}
	return env
}
