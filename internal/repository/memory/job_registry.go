package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// GenerationJob is one in-flight generation run. Cancel aborts its stream.
type GenerationJob struct {
	NoteId    uuid.UUID
	UserId    uuid.UUID
	Stage     string
	StartedAt time.Time
	Cancel    context.CancelFunc
}

// JobRegistry tracks in-flight generation runs so a later request can
// cancel them. At most one run per note is kept; entries expire on their
// own in case a run never deregisters.
type JobRegistry struct {
	cache *cache.Cache
}

func NewJobRegistry() *JobRegistry {
	// Runs are bounded by the request timeout, so a 10 minute expiry only
	// catches leaked entries.
	c := cache.New(10*time.Minute, 1*time.Minute)
	return &JobRegistry{
		cache: c,
	}
}

func (r *JobRegistry) Register(job *GenerationJob) {
	r.cache.Set(job.NoteId.String(), job, cache.DefaultExpiration)
}

func (r *JobRegistry) Get(noteId uuid.UUID) (*GenerationJob, bool) {
	if x, found := r.cache.Get(noteId.String()); found {
		return x.(*GenerationJob), true
	}
	return nil, false
}

func (r *JobRegistry) Deregister(noteId uuid.UUID) {
	r.cache.Delete(noteId.String())
}
