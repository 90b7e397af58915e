// Package settings resolves runtime configuration stored in the config table,
// falling back to environment variables and built-in defaults.
package settings

// Persisted configuration keys.
const (
	KeyWelcome          = "welcome_msg"
	KeyVerifyQuestion   = "verif_q"
	KeyVerifyAnswer     = "verif_a"
	KeyBlockThreshold   = "block_threshold"
	KeyBlockKeywords    = "block_keywords"
	KeyKeywordResponses = "keyword_responses"
	KeyAuthorizedAdmins = "authorized_admins"
	KeyBackupGroupID    = "backup_group_id"

	KeyImageForwarding   = "enable_image_forwarding"
	KeyLinkForwarding    = "enable_link_forwarding"
	KeyTextForwarding    = "enable_text_forwarding"
	KeyChannelForwarding = "enable_channel_forwarding"
	KeyForwardForwarding = "enable_forward_forwarding"
	KeyAudioForwarding   = "enable_audio_forwarding"
	KeyStickerForwarding = "enable_sticker_forwarding"
)

// DefaultBlockThreshold is the number of keyword hits that blocks a user.
const DefaultBlockThreshold = 5

// ForwardingKeys lists the boolean forwarding switches in menu order.
var ForwardingKeys = []string{
	KeyTextForwarding,
	KeyImageForwarding,
	KeyLinkForwarding,
	KeyAudioForwarding,
	KeyStickerForwarding,
	KeyForwardForwarding,
	KeyChannelForwarding,
}

// envNames maps a config key to the environment variable consulted when the
// key is absent from the store. Keys missing here never fall back to env.
var envNames = map[string]string{
	KeyWelcome:           "WELCOME_MESSAGE",
	KeyVerifyQuestion:    "VERIFICATION_QUESTION",
	KeyVerifyAnswer:      "VERIFICATION_ANSWER",
	KeyBlockThreshold:    "BLOCK_THRESHOLD",
	KeyBlockKeywords:     "BLOCK_KEYWORDS",
	KeyKeywordResponses:  "KEYWORD_RESPONSES",
	KeyAuthorizedAdmins:  "AUTHORIZED_ADMINS",
	KeyBackupGroupID:     "BACKUP_GROUP_ID",
	KeyImageForwarding:   "ENABLE_IMAGE_FORWARDING",
	KeyLinkForwarding:    "ENABLE_LINK_FORWARDING",
	KeyTextForwarding:    "ENABLE_TEXT_FORWARDING",
	KeyChannelForwarding: "ENABLE_CHANNEL_FORWARDING",
	KeyForwardForwarding: "ENABLE_FORWARD_FORWARDING",
	KeyAudioForwarding:   "ENABLE_AUDIO_FORWARDING",
	KeyStickerForwarding: "ENABLE_STICKER_FORWARDING",
}

// EnvName returns the environment variable backing key.
func EnvName(key string) (string, bool) {
	name, ok := envNames[key]
	return name, ok
}

var defaults = map[string]string{
	KeyWelcome:           "Welcome! Messages you send here are forwarded to our team.",
	KeyVerifyQuestion:    "Before we start, please answer: what is 3 + 4?",
	KeyVerifyAnswer:      "7|seven",
	KeyBlockThreshold:    "5",
	KeyBlockKeywords:     "[]",
	KeyKeywordResponses:  "[]",
	KeyAuthorizedAdmins:  "[]",
	KeyBackupGroupID:     "",
	KeyImageForwarding:   "true",
	KeyLinkForwarding:    "true",
	KeyTextForwarding:    "true",
	KeyChannelForwarding: "true",
	KeyForwardForwarding: "true",
	KeyAudioForwarding:   "true",
	KeyStickerForwarding: "true",
}

// Default returns the built-in value for key, or "" for unknown keys.
func Default(key string) string {
	return defaults[key]
}
