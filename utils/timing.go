package utils

import (
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// TimingStats summarizes the wall time of a training run.
type TimingStats struct {
	TotalTime     time.Duration
	DataLoadTime  time.Duration
	ModelInitTime time.Duration
	TrainTime     time.Duration
	Epochs        int
	MeanEpoch     time.Duration
	StdDevEpoch   time.Duration
	SlowestEpoch  time.Duration
}

// SummarizeEpochs fills the per-epoch fields of stats from the epoch durations.
func (stats *TimingStats) SummarizeEpochs(durations []time.Duration) {
	stats.Epochs = len(durations)
	if len(durations) == 0 {
		return
	}
	us := make([]float64, len(durations))
	var total time.Duration
	for i, d := range durations {
		us[i] = DurationUS(d)
		total += d
		if d > stats.SlowestEpoch {
			stats.SlowestEpoch = d
		}
	}
	mean, std := stat.MeanStdDev(us, nil)
	if len(us) < 2 {
		std = 0
	}
	stats.TrainTime = total
	stats.MeanEpoch = fromUS(mean)
	stats.StdDevEpoch = fromUS(std)
}

// PrintTimingStats logs stats at info level.
func PrintTimingStats(logger *logrus.Logger, stats *TimingStats) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"total":      stats.TotalTime,
		"data_load":  stats.DataLoadTime,
		"model_init": stats.ModelInitTime,
		"train":      stats.TrainTime,
		"train_pct":  percent(stats.TrainTime, stats.TotalTime),
	}).Info("timing statistics")
	if stats.Epochs == 0 {
		return
	}
	logger.WithFields(logrus.Fields{
		"epochs":  stats.Epochs,
		"mean":    stats.MeanEpoch,
		"std_dev": stats.StdDevEpoch,
		"slowest": stats.SlowestEpoch,
	}).Info("epoch timing")
}

func percent(part, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}

func fromUS(us float64) time.Duration {
	return time.Duration(us * 1_000.0)
}
