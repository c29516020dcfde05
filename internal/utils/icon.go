package utils

import (
	"math/rand"
)

var topicIcons = []string{
	"📘", "🧮", "🔬", "🌍", "🎨", "💡", "🧠", "⚙️",
	"📜", "🎵", "🧬", "🚀", "🏛️", "🌿", "💻", "📐",
}

// PickIcon 随机返回一个主题图标，r 为空时使用全局随机源
func PickIcon(r *rand.Rand) string {
	if r == nil {
		return topicIcons[rand.Intn(len(topicIcons))]
	}
	return topicIcons[r.Intn(len(topicIcons))]
}
