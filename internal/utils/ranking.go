package utils

import (
	"math"
	"time"
)

type RankConfig struct {
	Gravity        float64 // 时间重力
	WeightReply    float64
	WeightUpvote   float64
	WeightDownvote float64
	ScaleFactor    float64
}

var DefaultRankConfig = RankConfig{
	Gravity:        1.5,
	WeightReply:    2.0,
	WeightUpvote:   1.0,
	WeightDownvote: 1.5,
	ScaleFactor:    100.0,
}

// HotScore 讨论帖热度：互动加权后取对数，再按发帖时间衰减
func HotScore(t time.Time, up, down, replies int) float64 {
	return DefaultRankConfig.Score(time.Since(t), up, down, replies)
}

func (c RankConfig) Score(age time.Duration, up, down, replies int) float64 {
	weighted := float64(up)*c.WeightUpvote +
		float64(replies)*c.WeightReply -
		float64(down)*c.WeightDownvote
	if weighted < 0 {
		weighted = 0
	}
	// sum=0 时得分为 0
	numerator := math.Log10(weighted+1) * c.ScaleFactor
	decay := math.Pow(age.Hours()+2, c.Gravity)
	return numerator / decay
}
