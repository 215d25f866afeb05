package profile

import (
	"math"
	"sort"

	"prepengine/models"
)

const (
	weakAccuracyThreshold   = 65.0
	weakMinAttempts         = 2
	mistakeAccuracyCeiling  = 50.0
	mistakeMinAttempts      = 3
	strongAccuracyThreshold = 80.0

	// recencyWeight stands in for a time-decay factor until per-topic
	// attempt timestamps carry enough history to compute a real one.
	recencyWeight = 0.8
)

// WeakTopics ranks the subject's below-threshold topics by remediation
// priority: low accuracy weighs most, then attempt volume, then recency.
func WeakTopics(p *models.PerformanceProfile, subject string, limit int) []models.WeakTopic {
	var weak []models.WeakTopic
	for _, stat := range p.TopicStats {
		if stat.Subject != subject || stat.Attempts < weakMinAttempts {
			continue
		}
		accuracy := stat.Accuracy()
		if accuracy >= weakAccuracyThreshold {
			continue
		}
		weak = append(weak, models.WeakTopic{
			Topic:    stat.Topic,
			Subject:  stat.Subject,
			Chapter:  stat.Chapter,
			Accuracy: accuracy,
			Attempts: stat.Attempts,
			Priority: weakTopicPriority(accuracy, stat.Attempts),
		})
	}

	sort.Slice(weak, func(i, j int) bool {
		if weak[i].Priority != weak[j].Priority {
			return weak[i].Priority > weak[j].Priority
		}
		return weak[i].Topic < weak[j].Topic
	})
	return truncateWeak(weak, limit)
}

func weakTopicPriority(accuracy float64, attempts int) float64 {
	volume := math.Min(float64(attempts)/10, 1)
	return 0.5*(100-accuracy)/100 + 0.3*volume + 0.2*recencyWeight
}

// MistakePatterns lists the subject's topics where errors persist, worst
// error rate first.
func MistakePatterns(p *models.PerformanceProfile, subject string, limit int) []models.MistakePattern {
	var patterns []models.MistakePattern
	for _, stat := range p.TopicStats {
		if stat.Subject != subject || stat.Attempts < mistakeMinAttempts {
			continue
		}
		accuracy := stat.Accuracy()
		if accuracy >= mistakeAccuracyCeiling {
			continue
		}
		patterns = append(patterns, models.MistakePattern{
			Topic:     stat.Topic,
			Subject:   stat.Subject,
			Chapter:   stat.Chapter,
			ErrorRate: 100 - accuracy,
			Attempts:  stat.Attempts,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].ErrorRate != patterns[j].ErrorRate {
			return patterns[i].ErrorRate > patterns[j].ErrorRate
		}
		return patterns[i].Topic < patterns[j].Topic
	})
	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns
}

// StrongTopics lists topics the learner has demonstrably mastered.
func StrongTopics(p *models.PerformanceProfile, subject string, limit int) []models.WeakTopic {
	var strong []models.WeakTopic
	for _, stat := range p.TopicStats {
		if stat.Subject != subject || stat.Attempts < weakMinAttempts {
			continue
		}
		accuracy := stat.Accuracy()
		if accuracy <= strongAccuracyThreshold {
			continue
		}
		strong = append(strong, models.WeakTopic{
			Topic:    stat.Topic,
			Subject:  stat.Subject,
			Chapter:  stat.Chapter,
			Accuracy: accuracy,
			Attempts: stat.Attempts,
		})
	}

	sort.Slice(strong, func(i, j int) bool {
		if strong[i].Accuracy != strong[j].Accuracy {
			return strong[i].Accuracy > strong[j].Accuracy
		}
		return strong[i].Topic < strong[j].Topic
	})
	return truncateWeak(strong, limit)
}

// CalculateVelocity compares the current test percentage against the mean of
// the two most recent previous scores. Fewer than two previous scores is not
// enough signal.
func CalculateVelocity(previous []models.RecentScore, currentPercentage float64) models.LearningVelocity {
	if len(previous) < 2 {
		return models.LearningVelocity{Status: "insufficient_data"}
	}

	latest := previous[len(previous)-1].Percentage
	secondLatest := previous[len(previous)-2].Percentage
	improvement := currentPercentage - (latest+secondLatest)/2

	trend := models.TrendStable
	if improvement > 2 {
		trend = models.TrendImproving
	} else if improvement <= -2 {
		trend = models.TrendDeclining
	}

	all := make([]float64, 0, len(previous)+1)
	for _, s := range previous {
		all = append(all, s.Percentage)
	}
	all = append(all, currentPercentage)

	return models.LearningVelocity{
		Status:          "calculated",
		ImprovementRate: math.Round(improvement*100) / 100,
		Trend:           trend,
		Consistency:     consistency(all),
	}
}

// consistency grades the spread of score percentages by sample standard
// deviation.
func consistency(scores []float64) models.Consistency {
	if len(scores) < 3 {
		return models.ConsistencyUnknown
	}

	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(scores)-1))

	switch {
	case stdDev < 5:
		return models.ConsistencyHigh
	case stdDev < 15:
		return models.ConsistencyModerate
	default:
		return models.ConsistencyLow
	}
}

func truncateWeak(topics []models.WeakTopic, limit int) []models.WeakTopic {
	if limit > 0 && len(topics) > limit {
		return topics[:limit]
	}
	return topics
}
