package common

import "time"

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderContentType = "Content-Type"
	HeaderAccept      = "Accept"
	ContentTypeJSON   = "application/json"
)

// API paths, relative to the configured base URL.
const (
	PathAPIPrefix = "/api/v1"

	PathAuthLogin  = "/auth/login"
	PathAuthLogout = "/auth/logout"
	PathAuthMe     = "/auth/me"

	PathContentCreate = "/agent/generated-content"
	PathContentResult = "/agent/generated-result/" // + runId

	PathSpeechGenerate = "/speech/generate"
	PathSpeechHistory  = "/speech/history"
	PathSpeechDelete   = "/speech/delete"
	PathSpeechVoices   = "/speech/voices/existing"

	PathVideoCreate  = "/video/create"
	PathVideoStatus  = "/video/status"
	PathVideoHistory = "/video/history/" // + userId
	PathVideoDelete  = "/video/delete"
	PathVideoAvatars = "/video/fetch-avatars"
	PathVideoVoices  = "/video/fetch-voices"

	PathScriptsCreate    = "/scripts/create"
	PathScriptsMine      = "/scripts/get-scripts"
	PathScriptsVoiceOver = "/scripts/get-scripts-for-voice-over"
	PathScriptsUpdate    = "/scripts/update-script/" // + id
	PathScriptsDelete    = "/scripts/delete-script/" // + id

	PathAdminUsers        = "/admin/get-all-users"
	PathAdminUpdateUser   = "/admin/update-user/" // + id
	PathAdminAssignRole   = "/admin/assign-role"
	PathAdminDeleteUser   = "/admin/delete-user/" // + id
	PathUserRegisterEmail = "/user/register-email"
)

// Defaults and limits
const (
	DefaultBaseURL        = "http://localhost:8080"
	DefaultRequestTimeout = 30 * time.Second
	DefaultQueueCapacity  = 64
	DefaultWorkerCount    = 2
	SQLiteBusyTimeoutMS   = 5000
	ErrorSnippetLimit     = 400
)

// Polling defaults per job kind.
const (
	ContentPollInterval    = 2 * time.Second
	ContentPollMaxAttempts = 60

	SpeechPollInterval    = 1500 * time.Millisecond
	SpeechPollMaxAttempts = 200
	SpeechHistoryLimit    = 10 // history entries scanned per speech status check

	VideoPollInterval    = 5 * time.Second
	VideoPollMaxAttempts = 120
	VideoDiscoveryDelay  = 2 * time.Second
)

// User-facing messages for terminal failures synthesized on the client.
const (
	MessageTimeout          = "Request timed out. Please try again."
	MessageNetworkExhausted = "An error occurred. Please try again."
	MessageGenerationFailed = "Generation failed. Please try again."
	MessageSessionExpired   = "Your session has expired. Please log in again."
)

// Speech request defaults
const (
	LanguageMultilingual = "multilingual"
	VideoDurationAuto    = "Auto"
)

// Subdirectory names
const (
	DownloadsDirName = "downloads"
	DatabaseFileName = "studio.db"
	CookieFileName   = "cookies.json"
)

// Callback status strings
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)
