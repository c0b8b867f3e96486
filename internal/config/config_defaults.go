package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// AI Configuration - Global defaults
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.timeout", 90*time.Second)
	v.SetDefault("ai.apiKey", "")
	v.SetDefault("ai.maxRetries", 0) // each action issues exactly one call unless configured otherwise
	v.SetDefault("ai.temperature", 0.4)
	v.SetDefault("ai.useSystemPrompts", true)
	v.SetDefault("ai.modelCheckTimeout", 10*time.Second)

	// Operation overrides stay unset so they inherit the global values.
	for _, op := range Operations {
		key := "ai." + op
		v.SetDefault(key+".provider", "")
		v.SetDefault(key+".model", "")
		v.SetDefault(key+".apiKey", "")
		v.SetDefault(key+".circuitBreaker.enabled", true)
		v.SetDefault(key+".circuitBreaker.maxRequests", 3)
		v.SetDefault(key+".circuitBreaker.interval", 60*time.Second)
		v.SetDefault(key+".circuitBreaker.timeout", 60*time.Second)
		v.SetDefault(key+".circuitBreaker.minRequests", 3)
		v.SetDefault(key+".circuitBreaker.failureThreshold", 0.6)
		v.SetDefault(key+".prompts.system", "")
		v.SetDefault(key+".prompts.systemFile", "")
		v.SetDefault(key+".prompts.user", "")
		v.SetDefault(key+".prompts.userFile", "")
	}
	v.SetDefault("ai.promptsDir", "")

	// Export
	v.SetDefault("export.outputDir", ".")
	v.SetDefault("export.defaultTextColor", "#000000")

	// Server Configuration
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 150*time.Second) // AI calls run inside the request
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.maxRequestSize", 1<<20)
	v.SetDefault("server.apiKeys", []string{})

	v.SetDefault("server.tls.mode", "disabled") // disabled, server, mutual
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.caFile", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.tls.clientAuthPolicy", "")
	v.SetDefault("server.tls.watchFiles", true)
	v.SetDefault("server.tls.debounceDelay", 500*time.Millisecond)

	v.SetDefault("server.rateLimit.enabled", true)
	v.SetDefault("server.rateLimit.requestsPerMin", 30)
	v.SetDefault("server.rateLimit.burstCapacity", 10)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	v.SetDefault("server.rateLimit.cleanupAfter", 10*time.Minute)

	v.SetDefault("server.sessions.ttl", 2*time.Hour)
	v.SetDefault("server.sessions.cleanupInterval", 5*time.Minute)
	v.SetDefault("server.sessions.maxSessions", 1000)

	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "text")
	v.SetDefault("app.maxFileSize", 10*1024*1024)

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "http://127.0.0.1:8200")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.geminiKey", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.watch.enabled", false)
	v.SetDefault("vault.watch.pollInterval", 5*time.Minute)

	// Observability
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.serviceName", "cvtailor")
	v.SetDefault("observability.serviceVersion", "")
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.traceExporter", "none")
	v.SetDefault("observability.metricExporter", "prometheus")
	v.SetDefault("observability.collectionInterval", 15*time.Second)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.endpoint", "localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
}
