package domain

// AgentTag names the specialized capability that answers a message.
// The vocabulary is closed: adding a tag requires registering a
// handler for it at startup at the same time.
type AgentTag string

const (
	// TagGeneral is the general-purpose assistant and the fallback
	// for low-confidence or unrecognized classifications.
	TagGeneral AgentTag = "general"
	// TagLearning explains concepts and answers study questions.
	TagLearning AgentTag = "learning"
	// TagTask helps with the user's task list.
	TagTask AgentTag = "task"
	// TagCode answers programming questions.
	TagCode AgentTag = "code"
	// TagRoadmap works with learning roadmaps.
	TagRoadmap AgentTag = "roadmap"
)

// AgentTags lists the legal capability tags in a stable order.
var AgentTags = []AgentTag{TagGeneral, TagLearning, TagTask, TagCode, TagRoadmap}

// ParseAgentTag reports whether s names a legal capability tag.
func ParseAgentTag(s string) (AgentTag, bool) {
	for _, t := range AgentTags {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}
