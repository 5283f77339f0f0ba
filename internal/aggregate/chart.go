package aggregate

import "runtimeviewer/internal/models"

// UnknownServer keys the colour used for servers missing from the palette.
const UnknownServer = "unknown"

const fallbackColor = "hsl(0, 0%, 30%)"

// Series builds one chart point per round that has runtime data, in round order.
func Series(rounds []models.Round, colors map[string]string) []models.ChartPoint {
	points := make([]models.ChartPoint, 0, len(rounds))
	for _, round := range rounds {
		if !round.HasRuntimes() {
			continue
		}
		var total int64
		for _, batch := range round.Runtimes {
			total += batch.Count
		}
		points = append(points, models.ChartPoint{
			RoundID: round.RoundID,
			Server:  round.Server,
			Total:   total,
			Color:   ServerColor(colors, round.Server),
		})
	}
	return points
}

// ServerColor looks up the chart colour of server.
func ServerColor(colors map[string]string, server string) string {
	if color, ok := colors[server]; ok && color != "" {
		return color
	}
	if color, ok := colors[UnknownServer]; ok && color != "" {
		return color
	}
	return fallbackColor
}
