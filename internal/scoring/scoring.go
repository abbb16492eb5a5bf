// Package scoring computes importance, freshness and composite quality
// scores for candidate stories. Every function is pure: identical inputs
// always produce identical scores, which keeps re-scoring deterministic.
package scoring

import (
	"math"
	"time"

	"newsloom/internal/core"
)

// Config holds scoring policy knobs.
type Config struct {
	// MaxClusterSize is the cluster size at which importance saturates.
	MaxClusterSize int
	// FreshnessHorizon is the age of the newest article at which freshness
	// reaches zero.
	FreshnessHorizon time.Duration
	// LLMBonus is added to quality when the synthesis came from the model
	// rather than the fallback composer.
	LLMBonus float64
}

// DefaultConfig returns the default scoring policy.
func DefaultConfig() Config {
	return Config{
		MaxClusterSize:   12,
		FreshnessHorizon: 48 * time.Hour,
		LLMBonus:         0.05,
	}
}

// Quality blend weights.
const (
	importanceWeight = 0.6
	freshnessWeight  = 0.4

	// neutralReputation substitutes for sources with no supplied reputation.
	neutralReputation = 0.5
)

// Scorer computes story scores from cluster shape and article health.
type Scorer struct {
	config Config
}

// NewScorer creates a scorer with the given policy.
func NewScorer(config Config) *Scorer {
	if config.MaxClusterSize <= 0 {
		config.MaxClusterSize = DefaultConfig().MaxClusterSize
	}
	if config.FreshnessHorizon <= 0 {
		config.FreshnessHorizon = DefaultConfig().FreshnessHorizon
	}
	return &Scorer{config: config}
}

// Score computes (importance, freshness, quality) for a cluster, each in
// [0,1]. usedLLM marks model-backed synthesis; now anchors freshness decay.
func (s *Scorer) Score(cluster core.Cluster, usedLLM bool, now time.Time) (importance, freshness, quality float64) {
	importance = s.Importance(cluster)
	freshness = s.Freshness(cluster, now)

	quality = importanceWeight*importance + freshnessWeight*freshness
	if usedLLM {
		quality += s.config.LLMBonus
	}
	return importance, freshness, clamp01(quality)
}

// Importance grows monotonically with cluster size (diminishing returns)
// and with the mean per-source reputation of the contributing articles.
func (s *Scorer) Importance(cluster core.Cluster) float64 {
	n := len(cluster.Articles)
	if n == 0 {
		return 0
	}

	sizeScore := math.Log(1+float64(n)) / math.Log(1+float64(s.config.MaxClusterSize))
	if sizeScore > 1 {
		sizeScore = 1
	}

	totalRep := 0.0
	for _, a := range cluster.Articles {
		rep := a.SourceReputation
		if rep <= 0 {
			rep = neutralReputation
		}
		totalRep += rep
	}
	meanRep := totalRep / float64(n)

	return clamp01(0.7*sizeScore + 0.3*meanRep)
}

// Freshness decays linearly with the age of the newest article in the
// cluster, reaching zero at the configured horizon.
func (s *Scorer) Freshness(cluster core.Cluster, now time.Time) float64 {
	if len(cluster.Articles) == 0 {
		return 0
	}
	age := now.Sub(cluster.Newest().Published)
	if age < 0 {
		age = 0
	}
	if age >= s.config.FreshnessHorizon {
		return 0
	}
	return 1 - float64(age)/float64(s.config.FreshnessHorizon)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
