package main

import (
	"encoding/json"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sproutgrid/greenhouse-engine/internal/config"
)

type reading struct {
	DeviceID       string    `json:"deviceId"`
	Timestamp      time.Time `json:"timestamp"`
	TemperatureC   float64   `json:"temperatureC"`
	Humidity       float64   `json:"humidity"`
	SoilMoisture   float64   `json:"soilMoisture"`
	LightLux       float64   `json:"lightLux"`
	WaterTankEmpty bool      `json:"waterTankEmpty"`
}

// Simulates a basil bench drifting warm: temperature ramps out of the
// 22-28 band while soil moisture slowly dries, which exercises both the
// trend analyzer and the pump/fan recommendations downstream.
func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	opts := mqtt.NewClientOptions().AddBroker(config.MQTTBroker())
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	temp := 24.0
	soil := 0.78
	for i := 0; i < 120; i++ {
		temp += 0.08 + rand.Float64()*0.04
		soil -= 0.002 + rand.Float64()*0.001
		r := reading{
			DeviceID:       "bench-001",
			Timestamp:      time.Now().UTC(),
			TemperatureC:   temp + rand.Float64()*0.3,
			Humidity:       62 + rand.Float64()*6,
			SoilMoisture:   soil,
			LightLux:       140 + rand.Float64()*20,
			WaterTankEmpty: soil < 0.3,
		}
		payload, _ := json.Marshal(r)
		token := client.Publish(config.TelemetryTopic(), 0, false, payload)
		token.Wait()
		time.Sleep(500 * time.Millisecond)
	}
	log.Info().Msg("simulation done")
}
