package airquality

// Advice is public health guidance for a category.
type Advice struct {
	Level      string
	General    string
	Sensitive  string
	Activities string
}

var advisories = map[Category]Advice{
	CategoryGood: {
		General:    "Air quality is good. Ideal for outdoor activities.",
		Sensitive:  "No precautions needed.",
		Activities: "All outdoor activities are safe.",
	},
	CategoryModerate: {
		General:    "Air quality is acceptable for most people.",
		Sensitive:  "Consider reducing prolonged outdoor activities if you experience symptoms.",
		Activities: "Normal outdoor activities are fine for most people.",
	},
	CategoryUnhealthySensitive: {
		General:    "General public is not likely to be affected.",
		Sensitive:  "People with respiratory conditions should limit outdoor activities.",
		Activities: "Reduce prolonged or heavy outdoor exertion.",
	},
	CategoryUnhealthy: {
		General:    "Everyone may experience health effects.",
		Sensitive:  "People with respiratory conditions should avoid outdoor activities.",
		Activities: "Everyone should reduce outdoor activities.",
	},
	CategoryVeryUnhealthy: {
		General:    "Health alert: everyone may experience serious health effects.",
		Sensitive:  "Stay indoors and keep activity levels low.",
		Activities: "Avoid all outdoor activities.",
	},
	CategoryHazardous: {
		General:    "Emergency conditions: everyone is likely to be affected.",
		Sensitive:  "Stay indoors and avoid all physical activities.",
		Activities: "Remain indoors and keep windows closed.",
	},
}

// AdviceFor returns the guidance for a category. Unknown categories get the
// hazardous guidance.
func AdviceFor(c Category) Advice {
	if !c.Valid() {
		c = CategoryHazardous
	}
	a := advisories[c]
	a.Level = c.Label()
	return a
}

// ScaleEntry describes one band of the index scale.
type ScaleEntry struct {
	Category Category
	Label    string
	Low      int
	High     int
	Color    string
	Advice   Advice
}

// Scale returns the full index scale, cleanest band first.
func Scale() []ScaleEntry {
	entries := make([]ScaleEntry, 0, len(Categories))
	for _, c := range Categories {
		low, high := c.Range()
		entries = append(entries, ScaleEntry{
			Category: c,
			Label:    c.Label(),
			Low:      low,
			High:     high,
			Color:    c.Color(),
			Advice:   AdviceFor(c),
		})
	}
	return entries
}
