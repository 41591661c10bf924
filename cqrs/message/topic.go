package message

import (
	"strings"
	"unicode"
)

// TopicForCommand maps a command type to a pub/sub topic name.
func TopicForCommand(commandType string) string {
	return metadataNamespace + "_command_" + sanitizeTopic(commandType)
}

// ReplyTopic is the topic a service listens on for asynchronous replies.
func ReplyTopic(service string) string {
	if strings.TrimSpace(service) == "" {
		service = "default"
	}

	return metadataNamespace + "_reply_" + sanitizeTopic(service)
}

func sanitizeTopic(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune('_')
		}
	}

	return strings.Trim(b.String(), "_")
}
