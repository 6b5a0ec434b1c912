// Command sensor_sim publishes synthetic fruit-chamber readings to the local
// data topic for bench testing the bridge.
package main

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/juanpa-corral/codigoIoTFinalSolution/internal/mqttbus"
)

type sample struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Ethylene    float64 `json:"ethylene"`
	Alarm       int     `json:"alarm"`
}

func main() {
	var (
		broker    = pflag.String("broker", getenvDefault("LOCAL_MQTT_BROKER", "tcp://localhost:1883"), "local broker url")
		topic     = pflag.String("topic", getenvDefault("DATA_TOPIC", "sensors/data"), "data topic")
		interval  = pflag.Duration("interval", 5*time.Second, "delay between readings")
		count     = pflag.Int("count", 0, "number of readings to send (0 = until interrupted)")
		ramp      = pflag.Float64("ramp", 0.02, "ethylene increase per reading")
		threshold = pflag.Float64("alarm-at", 0.75, "ethylene level at which the alarm flag is set")
	)
	pflag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := mqttbus.Connect(ctx, mqttbus.Options{BrokerURL: *broker, QoS: mqttbus.DefaultQoS}, logger)
	if err != nil {
		logger.WithError(err).Fatal("connect")
	}
	defer client.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for i := 0; *count == 0 || i < *count; i++ {
		ethylene := math.Min(0.2+float64(i)**ramp+rng.Float64()*0.05, 5)
		reading := sample{
			Temperature: round(18 + rng.Float64()*6),
			Humidity:    round(50 + rng.Float64()*20),
			Ethylene:    round(ethylene),
		}
		if reading.Ethylene > *threshold {
			reading.Alarm = 1
		}
		payload, _ := json.Marshal(reading)
		if err := client.Publish(ctx, *topic, payload); err != nil {
			logger.WithError(err).Warn("publish failed")
		} else {
			logger.WithField("payload", string(payload)).Info("reading sent")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
