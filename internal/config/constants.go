package config

import "time"

const (
	// Attachment limits
	MaxUploadSize  int64 = 50 << 20
	PhotoSizeLimit int64 = 10 << 20

	// Album debounce
	AlbumQuietPeriod  = 2 * time.Second
	AlbumFlushTimeout = 5 * time.Minute

	// Duplicate-tap guard for interactive controls
	ActionCooldown = 10 * time.Second

	// Processed webhook ids
	DedupTTL           = 1 * time.Hour
	DedupPruneInterval = 5 * time.Minute

	// Issue records fetched to resolve webhook destinations
	IssueCacheTTL = 10 * time.Minute

	// Telegram limits
	MaxTelegramMessageLen = 4096
	MaxMediaGroupSize     = 10

	// Parallel transfers inside one album or one webhook event
	TransferConcurrency = 4

	// Webhook processing budget
	WebhookTimeout = 3 * time.Minute

	// Issues shown in the "my issues" list
	IssuesListLimit = 30
)

// ImageExtensions are the file suffixes delivered as photos when small enough.
var ImageExtensions = []string{".jpg", ".jpeg", ".png"}

// ClosedStatusKeys are tracker status keys that hide an issue from the active list.
var ClosedStatusKeys = []string{"closed", "cancelled", "canceled", "done", "resolved"}

// ClosedStatusNames are lowercase substrings of localized status names with the same meaning.
var ClosedStatusNames = []string{"закрыт", "отмен", "выполнен", "решен", "готово", "closed", "cancel", "done"}
