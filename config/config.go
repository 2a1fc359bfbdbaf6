package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DetectorConfig параметры предобработки и поиска маяка
type DetectorConfig struct {
	RatioLow      float64 // нижняя граница отношения площадей, включительно
	RatioHigh     float64 // верхняя граница, не включительно
	ApproxEpsilon float64 // допуск аппроксимации как доля периметра
	ResizeWidth   int     // ширина кадра перед анализом, 0 — без изменения
	BlurKernel    int
	CannyLow      float32
	CannyHigh     float32
	Dilate        int
	Erode         int
}

// TrackerConfig политика устаревания смещения
type TrackerConfig struct {
	StaleAfter int // промахов подряд до пометки Stale
}

// ControllerConfig параметры автомата управления полётом
type ControllerConfig struct {
	TargetAltitude   float64
	AltToleranceLow  float64
	AltToleranceHigh float64
	TakeoffReached   float64
	Tick             time.Duration
	MaxVelocity      float64
	AltitudeNudge    float64
	PollInterval     time.Duration
	PollMaxInterval  time.Duration
	ArmableTimeout   time.Duration
	ArmTimeout       time.Duration
	TakeoffTimeout   time.Duration
	LandTimeout      time.Duration
}

// LinkConfig адрес подключения к аппарату
type LinkConfig struct {
	Endpoint string
	Baud     int
}

type RedisConfig struct {
	Addr     string
	Password string
	Channel  string
}

type Config struct {
	Detector      DetectorConfig
	Tracker       TrackerConfig
	Controller    ControllerConfig
	Link          LinkConfig
	Redis         RedisConfig
	TelegramToken string
	HTTPAddr      string
	DBPath        string
	LogLevel      string
	LogFormat     string
}

// Default возвращает калибровку, с которой снимались эталонные видео.
func Default() *Config {
	return &Config{
		Detector: DetectorConfig{
			RatioLow:      13,
			RatioHigh:     21,
			ApproxEpsilon: 0.05,
			ResizeWidth:   400,
			BlurKernel:    9,
			CannyLow:      20,
			CannyHigh:     70,
			Dilate:        2,
			Erode:         1,
		},
		Tracker: TrackerConfig{StaleAfter: 10},
		Controller: ControllerConfig{
			TargetAltitude:   3,
			AltToleranceLow:  0.95,
			AltToleranceHigh: 1.10,
			TakeoffReached:   0.95,
			Tick:             100 * time.Millisecond,
			MaxVelocity:      1.0,
			AltitudeNudge:    0.3,
			PollInterval:     time.Second,
			PollMaxInterval:  5 * time.Second,
			ArmableTimeout:   30 * time.Second,
			ArmTimeout:       30 * time.Second,
			TakeoffTimeout:   60 * time.Second,
			LandTimeout:      10 * time.Second,
		},
		Link:      LinkConfig{Baud: 57600},
		Redis:     RedisConfig{Channel: "beacon:detections"},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func Load() (*Config, error) {
	// Загружаем .env файл (игнорируем ошибку если файла нет)
	_ = godotenv.Load()

	cfg := Default()
	p := &parser{}

	d := &cfg.Detector
	d.RatioLow = p.float("BEACON_RATIO_LOW", d.RatioLow)
	d.RatioHigh = p.float("BEACON_RATIO_HIGH", d.RatioHigh)
	d.ApproxEpsilon = p.float("BEACON_APPROX_EPSILON", d.ApproxEpsilon)
	d.ResizeWidth = p.int("FRAME_RESIZE_WIDTH", d.ResizeWidth)
	d.BlurKernel = p.int("FRAME_BLUR_KERNEL", d.BlurKernel)
	d.CannyLow = float32(p.float("FRAME_CANNY_LOW", float64(d.CannyLow)))
	d.CannyHigh = float32(p.float("FRAME_CANNY_HIGH", float64(d.CannyHigh)))
	d.Dilate = p.int("FRAME_DILATE", d.Dilate)
	d.Erode = p.int("FRAME_ERODE", d.Erode)

	cfg.Tracker.StaleAfter = p.int("TRACKER_STALE_AFTER", cfg.Tracker.StaleAfter)

	c := &cfg.Controller
	c.TargetAltitude = p.float("TARGET_ALTITUDE", c.TargetAltitude)
	c.AltToleranceLow = p.float("ALT_TOLERANCE_LOW", c.AltToleranceLow)
	c.AltToleranceHigh = p.float("ALT_TOLERANCE_HIGH", c.AltToleranceHigh)
	c.TakeoffReached = p.float("TAKEOFF_REACHED", c.TakeoffReached)
	c.Tick = p.duration("CONTROL_TICK", c.Tick)
	c.MaxVelocity = p.float("MAX_VELOCITY", c.MaxVelocity)
	c.AltitudeNudge = p.float("ALTITUDE_NUDGE", c.AltitudeNudge)
	c.PollInterval = p.duration("POLL_INTERVAL", c.PollInterval)
	c.PollMaxInterval = p.duration("POLL_MAX_INTERVAL", c.PollMaxInterval)
	c.ArmableTimeout = p.duration("ARMABLE_TIMEOUT", c.ArmableTimeout)
	c.ArmTimeout = p.duration("ARM_TIMEOUT", c.ArmTimeout)
	c.TakeoffTimeout = p.duration("TAKEOFF_TIMEOUT", c.TakeoffTimeout)
	c.LandTimeout = p.duration("LAND_TIMEOUT", c.LandTimeout)

	cfg.Link.Endpoint = os.Getenv("FLIGHT_CONNECT")
	cfg.Link.Baud = p.int("FLIGHT_BAUD", cfg.Link.Baud)

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.Channel = p.str("REDIS_CHANNEL", cfg.Redis.Channel)

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	cfg.DBPath = os.Getenv("DB_PATH")
	cfg.LogLevel = p.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = p.str("LOG_FORMAT", cfg.LogFormat)

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	var errs []error
	d := c.Detector
	if d.RatioLow <= 0 || d.RatioHigh <= d.RatioLow {
		errs = append(errs, fmt.Errorf("area ratio band [%g, %g) is empty", d.RatioLow, d.RatioHigh))
	}
	if d.ApproxEpsilon <= 0 || d.ApproxEpsilon >= 1 {
		errs = append(errs, fmt.Errorf("approx epsilon %g must be in (0, 1)", d.ApproxEpsilon))
	}
	if d.BlurKernel > 0 && d.BlurKernel%2 == 0 {
		errs = append(errs, fmt.Errorf("blur kernel %d must be odd", d.BlurKernel))
	}
	if c.Tracker.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("stale threshold %d must be positive", c.Tracker.StaleAfter))
	}
	ctl := c.Controller
	if ctl.TargetAltitude <= 0 {
		errs = append(errs, fmt.Errorf("target altitude %g must be positive", ctl.TargetAltitude))
	}
	if ctl.AltToleranceLow <= 0 || ctl.AltToleranceHigh < ctl.AltToleranceLow {
		errs = append(errs, fmt.Errorf("altitude tolerance [%g, %g] is invalid", ctl.AltToleranceLow, ctl.AltToleranceHigh))
	}
	if ctl.MaxVelocity <= 0 {
		errs = append(errs, fmt.Errorf("max velocity %g must be positive", ctl.MaxVelocity))
	}
	for name, v := range map[string]time.Duration{
		"control tick":    ctl.Tick,
		"poll interval":   ctl.PollInterval,
		"armable timeout": ctl.ArmableTimeout,
		"arm timeout":     ctl.ArmTimeout,
		"takeoff timeout": ctl.TakeoffTimeout,
		"land timeout":    ctl.LandTimeout,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}

// parser копит ошибки разбора, чтобы сообщить обо всех сразу.
type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
