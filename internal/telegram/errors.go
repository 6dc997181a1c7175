package telegram

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"

	"github.com/set-night/trackerbot/internal/domain"
)

var imageRejections = []string{
	"IMAGE_PROCESS_FAILED",
	"PHOTO_INVALID_DIMENSIONS",
	"PHOTO_SAVE_FILE_INVALID",
}

var goneMessages = []string{
	"message to delete not found",
	"message can't be deleted",
	"message to edit not found",
}

// classify maps bad-request descriptions onto domain errors. The original
// error stays in the chain.
func classify(err error) error {
	if err == nil || !errors.Is(err, bot.ErrorBadRequest) {
		return err
	}
	msg := err.Error()
	for _, s := range imageRejections {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", domain.ErrImageRejected, err)
		}
	}
	for _, s := range goneMessages {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", domain.ErrMessageNotFound, err)
		}
	}
	return err
}

func isParseError(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) && strings.Contains(err.Error(), "can't parse entities")
}
