package conf

import "github.com/spf13/viper"

// setDefaultConfig sets the default configuration values for viper.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("uploaddir", "uploads")

	// Classifier
	viper.SetDefault("leafnet.modelpath", "model/leafnet.tflite")
	viper.SetDefault("leafnet.labelpath", "")
	viper.SetDefault("leafnet.threads", 0)
	viper.SetDefault("leafnet.confidencegate", 50.0)
	viper.SetDefault("leafnet.inferencetimeout", 30)
	viper.SetDefault("leafnet.debug", false)

	// Image validation thresholds
	viper.SetDefault("validator.mindimension", 100)
	viper.SetDefault("validator.mingreenratio", 0.15)
	viper.SetDefault("validator.minsharpness", 50.0)
	viper.SetDefault("validator.maxuploadbytes", 10*1024*1024)

	// Datastore
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "leafguard.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "leafguard")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "leafguard")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	// HTTP API
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	// Telemetry is opt-in
	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
}
