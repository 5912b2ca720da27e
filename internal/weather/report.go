package weather

import "fmt"

// CardinalDirection buckets a wind bearing in degrees into an eight-point
// compass direction.
func CardinalDirection(degrees float64) string {
	switch {
	case degrees < 22.5:
		return "N"
	case degrees < 67.5:
		return "NE"
	case degrees < 112.5:
		return "E"
	case degrees < 157.5:
		return "SE"
	case degrees < 202.5:
		return "S"
	case degrees < 247.5:
		return "SW"
	case degrees < 292.5:
		return "W"
	case degrees < 337.5:
		return "NW"
	default:
		return "N"
	}
}

// FormatReport renders a station observation as a fixed-layout mrkdwn report.
func FormatReport(station *StationObservation) string {
	obs := station.Obs[0]

	return fmt.Sprintf(
		"*%s Weather Report*\n"+
			"*Temperature/Feels Like:* %.1f°C/%.1f°C | *Humidity:* %.0f%% | "+
			"*Wind Gust/Direction:* %.1fkm/h - %s | *Pressure:* %.1f mb | "+
			"*Rain Rate/Accumulated:* %.1fmm/hr/%.1fmm | "+
			"*Last Lightning Strike Distance:* %.0fkm | "+
			"*Solar Radiation:* %.0fW/m^2 | *UV Index:* %.1f",
		station.PublicName,
		obs.AirTemperature, obs.FeelsLike,
		obs.RelativeHumidity,
		obs.WindGust, CardinalDirection(obs.WindDirection),
		obs.SeaLevelPressure,
		obs.PrecipAccumLastHour, obs.Precip,
		obs.LightningLastDistance,
		obs.SolarRadiation, obs.UV,
	)
}
