package port

import "context"

// IncidentArchive stores frozen incident snapshots.
type IncidentArchive interface {
	// PutObject uploads body and returns a URL to read it.
	PutObject(ctx context.Context, key, contentType string, body []byte) (string, error)
}
