package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"go.uber.org/zap"
)

// Sample is one observed weather reading, delivered on the sampler channel
// and applied by the environment system at the next tick.
type Sample struct {
	TempC     float64
	AQI       int
	Condition string
}

type apiResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		AQI         int     `json:"us_aqi"`
	} `json:"current"`
}

// Sampler polls the weather API on its own goroutine and pushes samples to
// Samples(). The channel has capacity 1 and stale samples are replaced, so a
// stalled game loop never blocks the sampler.
type Sampler struct {
	cfg  config.WeatherConfig
	http *http.Client
	log  *zap.Logger
	out  chan Sample
}

func NewSampler(cfg config.WeatherConfig, log *zap.Logger) *Sampler {
	return &Sampler{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
		out:  make(chan Sample, 1),
	}
}

// Samples returns the channel the environment system drains.
func (s *Sampler) Samples() <-chan Sample { return s.out }

// Run samples immediately, then on every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	s.sampleOnce(ctx)
	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	sample, err := s.fetch(ctx)
	if err != nil {
		s.log.Warn("weather sample failed", zap.Error(err))
		return
	}
	// Replace a stale unread sample rather than queueing behind it.
	select {
	case <-s.out:
	default:
	}
	select {
	case s.out <- sample:
	default:
	}
}

func (s *Sampler) fetch(ctx context.Context) (Sample, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", s.cfg.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", s.cfg.Longitude))
	q.Set("current", "temperature_2m,weather_code,us_aqi")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Sample{}, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return Sample{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Sample{}, fmt.Errorf("weather api status %d", resp.StatusCode)
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Sample{}, fmt.Errorf("decode weather response: %w", err)
	}
	sample := Sample{
		TempC:     out.Current.Temperature,
		AQI:       out.Current.AQI,
		Condition: conditionFromCode(out.Current.WeatherCode),
	}
	if sample.AQI == 0 {
		sample.AQI = 50 // endpoint may omit air quality; assume moderate
	}
	return sample, nil
}

// conditionFromCode collapses WMO weather codes into the buckets the tuning
// scripts understand.
func conditionFromCode(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 3:
		return "cloudy"
	case code >= 95:
		return "storm"
	case code >= 51:
		return "rain"
	case code >= 40:
		return "fog"
	default:
		return "cloudy"
	}
}
