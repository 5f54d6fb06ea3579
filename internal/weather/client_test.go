package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rgriola/bridge-sim/internal/config"
	"go.uber.org/zap"
)

func TestSampleOnceDeliversAndReplaces(t *testing.T) {
	temp := 31.5
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"temperature_2m":31.5,"weather_code":61,"us_aqi":80}}`))
	}))
	defer srv.Close()

	s := NewSampler(config.WeatherConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, zap.NewNop())

	s.sampleOnce(context.Background())
	s.sampleOnce(context.Background()) // second sample replaces the first

	select {
	case got := <-s.Samples():
		if got.TempC != temp {
			t.Fatalf("temp = %v, want %v", got.TempC, temp)
		}
		if got.Condition != "rain" {
			t.Fatalf("condition = %q, want rain", got.Condition)
		}
		if got.AQI != 80 {
			t.Fatalf("aqi = %d, want 80", got.AQI)
		}
	default:
		t.Fatal("no sample delivered")
	}

	select {
	case <-s.Samples():
		t.Fatal("channel should hold at most one sample")
	default:
	}
}

func TestConditionFromCode(t *testing.T) {
	cases := map[int]string{
		0:  "clear",
		2:  "cloudy",
		45: "fog",
		63: "rain",
		96: "storm",
	}
	for code, want := range cases {
		if got := conditionFromCode(code); got != want {
			t.Errorf("code %d = %q, want %q", code, got, want)
		}
	}
}
