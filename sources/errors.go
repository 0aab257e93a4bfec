package sources

import "errors"

var (
	// ErrSourceUnavailable covers network and auth failures that survived the
	// client's bounded retries. The run fails; the next scheduled run retries.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrSourceDataGap means the provider answered but holds no data for the
	// requested range.
	ErrSourceDataGap = errors.New("source returned no data for range")
)
