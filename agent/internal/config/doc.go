// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: check_interval, history_capacity, default_cooldown,
//     max_concurrency, http_port, stream_interval, log, sink, alerts,
//     backends []
//   - Backend: name, kind (http|jsonrpc|cli|process|peernet), endpoint/port,
//     method, timeout, retries, rpc_method/rpc_params, binary/args,
//     match/exclude, auth, tls, remediation
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, password_env; secrets resolve from the
//     environment at use time, never from the file
//   - RemediationConfig: restart command, reconnect URL, restart flag,
//     cooldown override
//   - AlertsConfig: rules (condition, severity, cooldown) and webhooks
//
// Load(path) expands ${VAR} references, reads the YAML file, applies
// defaults (30s interval, 100 samples, 300s cooldown, port 9180) and then
// validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory and calls
// onChange with every successfully reparsed Config. The agent uses it to
// reconcile its backend registry without a restart.
package config
