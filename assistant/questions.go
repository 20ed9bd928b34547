package assistant

// SuggestedQuestion 表示前端展示的推荐提问项。
type SuggestedQuestion struct {
	ID       uint64 `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

// suggestedQuestions 是固定的推荐问题列表，按展示顺序返回。
var suggestedQuestions = []SuggestedQuestion{
	{ID: 1, Text: "能介绍一下相声艺术的特点吗？", Category: "相声"},
	{ID: 2, Text: "评书和说书有什么区别？", Category: "评书"},
	{ID: 3, Text: "传统曲艺有哪些表演形式？", Category: "综合"},
	{ID: 4, Text: "京剧的四大行当有哪些？", Category: "京剧"},
}

// SuggestedQuestions 返回推荐问题列表的副本。
func SuggestedQuestions() []SuggestedQuestion {
	out := make([]SuggestedQuestion, len(suggestedQuestions))
	copy(out, suggestedQuestions)
	return out
}
