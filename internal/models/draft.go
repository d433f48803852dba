package models

// Draft is a message that has not been persisted yet.
//
// Only assistant drafts carry a continuation token; user drafts are built
// without one so the token can't be attached to the wrong side of a turn.
type Draft struct {
	role             Role
	content          string
	previousAIChatID string
}

// UserDraft builds a user-authored message.
func UserDraft(content string) Draft {
	return Draft{role: RoleUser, content: content}
}

// AssistantDraft builds an assistant reply. An empty previousAIChatID means
// the AI integration returned no continuation token.
func AssistantDraft(content, previousAIChatID string) Draft {
	return Draft{role: RoleAssistant, content: content, previousAIChatID: previousAIChatID}
}

func (d Draft) Role() Role {
	return d.role
}

func (d Draft) Content() string {
	return d.content
}

// PreviousAIChatID returns the continuation token and whether one is set.
func (d Draft) PreviousAIChatID() (string, bool) {
	if d.role != RoleAssistant || d.previousAIChatID == "" {
		return "", false
	}
	return d.previousAIChatID, true
}

// Valid reports whether the draft was built through one of the constructors.
func (d Draft) Valid() bool {
	return d.role == RoleUser || d.role == RoleAssistant
}
