package models

// AQIResult is an index value with its band.
type AQIResult struct {
	AQI      float64 `json:"aqi"`
	Category string  `json:"category"`
	Label    string  `json:"label"`
	Color    string  `json:"color"`
}

// Advice is the public health guidance for a band.
type Advice struct {
	Level      string `json:"level"`
	General    string `json:"general"`
	Sensitive  string `json:"sensitiveGroups"`
	Activities string `json:"activities"`
}

// ScaleBand is one band of the AQI scale.
type ScaleBand struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Low      int    `json:"low"`
	High     int    `json:"high"`
	Color    string `json:"color"`
	Advice   Advice `json:"advice"`
}

// Scale is the GET /v1/aqi/scale body.
type Scale struct {
	Bands []ScaleBand `json:"bands"`
}

// AdviceResponse is the GET /v1/aqi/advice body.
type AdviceResponse struct {
	AQIResult
	Advice Advice `json:"advice"`
}

// ConvertRequest is the POST /v1/aqi:convert body.
type ConvertRequest struct {
	PM25        *float64 `json:"pm25"`
	PM1         *float64 `json:"pm1,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
}

// Factors are the multiplicative adjustments applied to the base index.
// A factor of 1 means the adjustment did not apply.
type Factors struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PM1         float64 `json:"pm1"`
}

// ConvertResponse is the POST /v1/aqi:convert result.
type ConvertResponse struct {
	AQIResult
	BaseAQI float64 `json:"baseAqi"`
	Factors Factors `json:"factors"`
}

// PredictRequest is the POST /v1/aqi:predict body. Omitted parameters take
// typical Phnom Penh values.
type PredictRequest struct {
	PM25               *float64   `json:"pm25"`
	PM1                *float64   `json:"pm1,omitempty"`
	Temperature        *float64   `json:"temperature,omitempty"`
	Humidity           *float64   `json:"humidity,omitempty"`
	UltrafineParticles *float64   `json:"ultrafineParticles,omitempty"`
	Timestamp          *Timestamp `json:"timestamp,omitempty"`
}

// Parameters are the sensor values a prediction was made from.
type Parameters struct {
	PM1                float64 `json:"pm1"`
	PM25               float64 `json:"pm25"`
	Temperature        float64 `json:"temperature"`
	Humidity           float64 `json:"humidity"`
	UltrafineParticles float64 `json:"ultrafineParticles,omitempty"`
}

// PredictResponse is the POST /v1/aqi:predict and GET /v1/aqi/current body.
type PredictResponse struct {
	AQIResult
	Timestamp         Timestamp  `json:"timestamp"`
	Method            string     `json:"method"`
	MethodDescription string     `json:"methodDescription"`
	ModelName         string     `json:"modelName,omitempty"`
	Parameters        Parameters `json:"parameters"`
	Advice            Advice     `json:"advice"`
}
