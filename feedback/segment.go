package feedback

import "strings"

// UserSegment is a coarse user cohort inferred from post text.
type UserSegment string

const (
	SegmentChurned   UserSegment = "churned"
	SegmentNewUser   UserSegment = "new_user"
	SegmentPowerUser UserSegment = "power_user"
	SegmentGeneral   UserSegment = "general"
)

var (
	churnedKeywords   = []string{"switched to", "moved to", "left", "cancelled", "used to use", "former"}
	newUserKeywords   = []string{"new to", "just started", "beginner", "first time", "how do i", "getting started"}
	powerUserKeywords = []string{"power user", "heavy user", "enterprise", "team", "advanced", "workflow", "automation", "api"}
)

// InferUserType matches keywords over the lowercased title and body.
// Churned is checked before new user, new user before power user.
func InferUserType(title, body string) UserSegment {
	text := strings.ToLower(title + " " + body)
	switch {
	case containsAny(text, churnedKeywords):
		return SegmentChurned
	case containsAny(text, newUserKeywords):
		return SegmentNewUser
	case containsAny(text, powerUserKeywords):
		return SegmentPowerUser
	}
	return SegmentGeneral
}

// Label is the audience phrase used in stakes messages.
func (s UserSegment) Label() string {
	switch s {
	case SegmentChurned:
		return "at-risk users"
	case SegmentNewUser:
		return "new users"
	case SegmentPowerUser:
		return "power users"
	}
	return "active users"
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
