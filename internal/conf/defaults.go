package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "TeaScan-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "teascan.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("station.userid", "default")
	viper.SetDefault("station.name", "")
	viper.SetDefault("station.latitude", 0.000)
	viper.SetDefault("station.longitude", 0.000)

	viper.SetDefault("realtime.camera.source", "mjpeg")
	viper.SetDefault("realtime.camera.mjpeg.url", "")
	viper.SetDefault("realtime.camera.file.path", "frames/")
	viper.SetDefault("realtime.camera.file.interval", 200)

	viper.SetDefault("realtime.scanner.interval", 1500)
	viper.SetDefault("realtime.scanner.historysize", 3)
	viper.SetDefault("realtime.scanner.debug", false)

	viper.SetDefault("realtime.mqtt.enabled", false)
	viper.SetDefault("realtime.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("realtime.mqtt.topic", "teascan/scans")
	viper.SetDefault("realtime.mqtt.username", "")
	viper.SetDefault("realtime.mqtt.password", "")

	viper.SetDefault("realtime.notify.enabled", false)
	viper.SetDefault("realtime.notify.urls", []string{})

	viper.SetDefault("realtime.telemetry.enabled", false)
	viper.SetDefault("realtime.telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("inference.url", "http://localhost:8000")
	viper.SetDefault("inference.timeout", 45)
	viper.SetDefault("inference.debug", false)

	viper.SetDefault("geocode.enabled", true)
	viper.SetDefault("geocode.url", "https://nominatim.openstreetmap.org")
	viper.SetDefault("geocode.cachettl", 60)

	viper.SetDefault("snapshot.maxsizekb", 800)
	viper.SetDefault("snapshot.maxdimension", 1200)
	viper.SetDefault("snapshot.quality", 95)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "teascan.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "teascan")
	viper.SetDefault("output.mysql.password", "teascan")
	viper.SetDefault("output.mysql.database", "teascan")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.log.enabled", true)
	viper.SetDefault("webserver.log.path", "webui.log")
	viper.SetDefault("webserver.log.rotation", RotationDaily)
	viper.SetDefault("webserver.log.maxsize", 1048576)
}
