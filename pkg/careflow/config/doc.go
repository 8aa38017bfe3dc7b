/*
Package config provides type-safe configuration extraction from nested
YAML or JSON documents.

# Basic Usage

	cfg, err := config.FromFile("careflow.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	cfg = cfg.WithEnv("CAREFLOW_")

	maxTurns := cfg.Int("session.max_turns", 10)
	ttl := cfg.Duration("checkpoint.ttl", time.Hour)
	routes := cfg.StringMap("router.routes", nil)

# Type Coercion

Duration accepts strings ("30s", "1h30m"), numbers (seconds), and
time.Duration. Int accepts floats without a fractional part. All accessors
return the default when the key is missing or the value has the wrong type.

# Thread Safety

Config is safe for concurrent reads. WithEnv returns a copy and never
modifies the receiver.
*/
package config
