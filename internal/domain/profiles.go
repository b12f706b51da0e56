package domain

// BuiltinProfiles holds the ideal ranges shipped with the engine. They
// seed the profile store and serve as a fallback when a plant type has
// no stored profile.
var BuiltinProfiles = map[string]DeviceProfile{
	"basil": {
		PlantType: "basil",
		Ranges: map[Metric]Range{
			MetricTemperature:  {Min: 22.0, Max: 28.0},
			MetricHumidity:     {Min: 55.0, Max: 75.0},
			MetricSoilMoisture: {Min: 0.65, Max: 0.85},
			MetricLightLux:     {Min: 100.0, Max: 200.0},
		},
	},
	"strawberry": {
		PlantType: "strawberry",
		Ranges: map[Metric]Range{
			MetricTemperature:  {Min: 18.0, Max: 24.0},
			MetricHumidity:     {Min: 55.0, Max: 70.0},
			MetricSoilMoisture: {Min: 0.55, Max: 0.7},
			MetricLightLux:     {Min: 100.0, Max: 200.0},
		},
	},
	"mint": {
		PlantType: "mint",
		Ranges: map[Metric]Range{
			MetricTemperature:  {Min: 18.0, Max: 24.0},
			MetricHumidity:     {Min: 60.0, Max: 80.0},
			MetricSoilMoisture: {Min: 0.6, Max: 0.8},
			MetricLightLux:     {Min: 100.0, Max: 200.0},
		},
	},
	"lettuce": {
		PlantType: "lettuce",
		Ranges: map[Metric]Range{
			MetricTemperature:  {Min: 16.0, Max: 22.0},
			MetricHumidity:     {Min: 60.0, Max: 75.0},
			MetricSoilMoisture: {Min: 0.65, Max: 0.9},
			MetricLightLux:     {Min: 100.0, Max: 200.0},
		},
	},
}

// DefaultPlantType is assumed when a device has no plant type assigned.
const DefaultPlantType = "basil"
