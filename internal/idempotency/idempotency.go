// Package idempotency replays previously recorded responses for mutating
// endpoints when a caller retries with the same Idempotency-Key.
package idempotency

import "context"

type Store interface {
	GetIdempotencyRecord(ctx context.Context, userID, key, endpoint string) (int, map[string]any, bool, error)
	SaveIdempotencyRecord(ctx context.Context, userID, key, endpoint string, responseStatus int, responseBody map[string]any) error
}

// Replay returns the recorded response for (user, key, endpoint) when one
// exists. An empty key disables replay.
func Replay(ctx context.Context, st Store, userID, key, endpoint string) (int, map[string]any, bool, error) {
	if key == "" {
		return 0, nil, false, nil
	}
	return st.GetIdempotencyRecord(ctx, userID, key, endpoint)
}

func Save(ctx context.Context, st Store, userID, key, endpoint string, status int, response map[string]any) error {
	if key == "" {
		return nil
	}
	return st.SaveIdempotencyRecord(ctx, userID, key, endpoint, status, response)
}
