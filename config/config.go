package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Pose describes the fixed frame grid every sample is resampled onto.
type Pose struct {
	NPoses            int     `mapstructure:"n_poses" yaml:"n_poses"`
	PoseDim           int     `mapstructure:"pose_dim" yaml:"pose_dim"`
	ResamplingFPS     float64 `mapstructure:"resampling_fps" yaml:"resampling_fps"`
	SubdivisionStride int     `mapstructure:"subdivision_stride" yaml:"subdivision_stride"`
	NPrePoses         int     `mapstructure:"n_pre_poses" yaml:"n_pre_poses"`
	RemoveWordTiming  bool    `mapstructure:"remove_word_timing" yaml:"remove_word_timing"`
}

type Audio struct {
	SampleRate int `mapstructure:"sample_rate" yaml:"sample_rate"`
	HopSize    int `mapstructure:"hop_size" yaml:"hop_size"`
	NumMFCC    int `mapstructure:"num_mfcc" yaml:"num_mfcc"`
}

// Emotion configures the IEMOCAP-style block ingestion.
type Emotion struct {
	BlockSize       int     `mapstructure:"block_size" yaml:"block_size"`
	FilterNum       int     `mapstructure:"filter_num" yaml:"filter_num"`
	DimensionalMin  float64 `mapstructure:"dimensional_min" yaml:"dimensional_min"`
	DimensionalMax  float64 `mapstructure:"dimensional_max" yaml:"dimensional_max"`
	TrainSessions   []int   `mapstructure:"train_sessions" yaml:"train_sessions"`
	HeldOutSessions []int   `mapstructure:"held_out_sessions" yaml:"held_out_sessions"`
}

type Synthesis struct {
	ClipDurationMin float64 `mapstructure:"clip_duration_min" yaml:"clip_duration_min"`
	ClipDurationMax float64 `mapstructure:"clip_duration_max" yaml:"clip_duration_max"`
	FadeOut         bool    `mapstructure:"fade_out" yaml:"fade_out"`
}

type Service struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type Services struct {
	Generator Service `mapstructure:"generator" yaml:"generator"`
	Baseline  Service `mapstructure:"baseline" yaml:"baseline"`
	Features  Service `mapstructure:"features" yaml:"features"`
}

type Paths struct {
	Data    string `mapstructure:"data" yaml:"data"`
	Cache   string `mapstructure:"cache" yaml:"cache"`
	Outputs string `mapstructure:"outputs" yaml:"outputs"`
}

type Training struct {
	BatchSize int   `mapstructure:"batch_size" yaml:"batch_size"`
	Seed      int64 `mapstructure:"seed" yaml:"seed"`
}

type Root struct {
	Pipeline struct {
		Name    string `mapstructure:"name" yaml:"name"`
		Version string `mapstructure:"version" yaml:"version"`
		LogLvl  string `mapstructure:"log_level" yaml:"log_level"`
	} `mapstructure:"pipeline" yaml:"pipeline"`
	Pose      Pose      `mapstructure:"pose" yaml:"pose"`
	Audio     Audio     `mapstructure:"audio" yaml:"audio"`
	Emotion   Emotion   `mapstructure:"emotion" yaml:"emotion"`
	Synthesis Synthesis `mapstructure:"synthesis" yaml:"synthesis"`
	Services  Services  `mapstructure:"services" yaml:"services"`
	Paths     Paths     `mapstructure:"paths" yaml:"paths"`
	Training  Training  `mapstructure:"training" yaml:"training"`
}

// AudioLength is the exact per-sample audio length in samples for the
// configured frame grid.
func (r *Root) AudioLength() int {
	return int(math.Round(float64(r.Pose.NPoses) / r.Pose.ResamplingFPS * float64(r.Audio.SampleRate)))
}

// MFCCLength is the exact number of feature columns per sample.
func (r *Root) MFCCLength() int {
	return int(math.Ceil(float64(r.AudioLength()) / float64(r.Audio.HopSize)))
}

// NumMFCCCombined is the channel count of the stacked MFCC + delta +
// delta-delta feature matrix, after the fixed channel trim applied by
// the extraction service.
func (r *Root) NumMFCCCombined() int {
	return r.Audio.NumMFCC*3 - 5
}

// UnitTime is the duration in seconds of one synthesis window.
func (r *Root) UnitTime() float64 {
	return float64(r.Pose.NPoses) / r.Pose.ResamplingFPS
}

// StrideTime is the window advance in seconds; consecutive windows
// share NPrePoses frames.
func (r *Root) StrideTime() float64 {
	return float64(r.Pose.NPoses-r.Pose.NPrePoses) / r.Pose.ResamplingFPS
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "speech2gesture")
	v.SetDefault("pipeline.log_level", "info")
	v.SetDefault("pose.n_poses", 34)
	v.SetDefault("pose.pose_dim", 27)
	v.SetDefault("pose.resampling_fps", 15)
	v.SetDefault("pose.subdivision_stride", 10)
	v.SetDefault("pose.n_pre_poses", 4)
	v.SetDefault("pose.remove_word_timing", false)
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.hop_size", 512)
	v.SetDefault("audio.num_mfcc", 14)
	v.SetDefault("emotion.block_size", 300)
	v.SetDefault("emotion.filter_num", 40)
	v.SetDefault("emotion.dimensional_min", 0.0)
	v.SetDefault("emotion.dimensional_max", 6.0)
	v.SetDefault("emotion.train_sessions", []int{1, 2, 3, 4})
	v.SetDefault("emotion.held_out_sessions", []int{5})
	v.SetDefault("synthesis.clip_duration_min", 5)
	v.SetDefault("synthesis.clip_duration_max", 12)
	v.SetDefault("synthesis.fade_out", true)
	v.SetDefault("paths.data", "data")
	v.SetDefault("paths.cache", "data/cache")
	v.SetDefault("paths.outputs", "outputs")
	v.SetDefault("training.batch_size", 128)
	v.SetDefault("training.seed", 1234)
}

// Load reads config.yaml from the given path (or the working directory
// when empty), with S2G_-prefixed environment overrides.
func Load(path string) (*Root, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}
	v.SetEnvPrefix("S2G")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// defaults alone are a valid configuration
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (r *Root) Validate() error {
	if r.Pose.NPoses <= 0 || r.Pose.ResamplingFPS <= 0 {
		return fmt.Errorf("config: n_poses and resampling_fps must be positive")
	}
	if r.Pose.NPrePoses <= 0 || r.Pose.NPrePoses >= r.Pose.NPoses {
		return fmt.Errorf("config: n_pre_poses must be in (0, n_poses)")
	}
	if r.Audio.SampleRate <= 0 || r.Audio.HopSize <= 0 {
		return fmt.Errorf("config: sample_rate and hop_size must be positive")
	}
	if r.Synthesis.ClipDurationMin > r.Synthesis.ClipDurationMax {
		return fmt.Errorf("config: clip_duration_min > clip_duration_max")
	}
	return nil
}

// Save writes the effective configuration as YAML, used to snapshot
// the exact parameters next to generated outputs.
func (r *Root) Save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config snapshot: %w", err)
	}
	return nil
}
