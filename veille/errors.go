// CLAUDE:SUMMARY Sentinel errors and the failure taxonomy of the poll cycle.
package veille

import "errors"

// Failure taxonomy of the crawl loop. Every external call boundary wraps
// its error into one of these kinds before the cycle proceeds.
var (
	// ErrNetwork marks fetch failures: non-2xx, timeout, transport.
	// Retried at the next scheduled poll, never immediately.
	ErrNetwork = errors.New("torref: network error")

	// ErrExtraction marks a malformed or unexpected page shape. The
	// source skips this cycle; other sources are unaffected.
	ErrExtraction = errors.New("torref: extraction error")

	// ErrPersistence marks a transaction failure. The cycle aborts
	// without partial commit and the error surfaces to the operator.
	ErrPersistence = errors.New("torref: persistence error")

	// ErrSummarization marks a failed or malformed summarizer call.
	// Always local to one item, never fatal to the cycle.
	ErrSummarization = errors.New("torref: summarization error")
)

// Input validation sentinels for the management API.
var (
	ErrInvalidInput    = errors.New("torref: invalid input")
	ErrDuplicateSource = errors.New("torref: source with this URL already exists")
)
