package preview

import (
	"errors"
	"os"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ocrchat/internal/logger"
)

// Registry hands out refcounted handles to locally stored preview files.
// Each acquired resource gets an opaque token; the UI renders the token's
// URL and the API serves the bytes behind it. The stored file is removed
// when the last reference goes away or when the owning session is torn
// down, whichever comes first.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	basePath string
}

type entry struct {
	storedPath string
	mediaType  string
	sessionID  string
	refs       int
}

// Handle is one reference to a registered preview resource. Releasing a
// handle twice is a safe no-op.
type Handle struct {
	reg      *Registry
	token    string
	released bool
}

// NewRegistry creates a registry whose URLs are rooted at basePath
// (e.g. "/api/previews").
func NewRegistry(basePath string) *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		basePath: basePath,
	}
}

// Acquire registers a stored file as a renderable preview and returns the
// initial owning handle.
func (r *Registry) Acquire(sessionID, storedPath, mediaType string) (*Handle, error) {
	if storedPath == "" {
		return nil, errors.New("stored path is required")
	}
	token := uuid.NewString()

	r.mu.Lock()
	r.entries[token] = &entry{
		storedPath: storedPath,
		mediaType:  mediaType,
		sessionID:  sessionID,
		refs:       1,
	}
	r.mu.Unlock()

	return &Handle{reg: r, token: token}, nil
}

// URL returns the path the UI can render for this preview.
func (h *Handle) URL() string {
	if h == nil {
		return ""
	}
	return path.Join(h.reg.basePath, h.token)
}

// Retain creates an additional reference to the same resource. Used when
// an attachment snapshot is frozen into a sent message so the preview
// outlives the live attachment.
func (h *Handle) Retain() *Handle {
	if h == nil {
		return nil
	}
	h.reg.mu.Lock()
	if e, ok := h.reg.entries[h.token]; ok {
		e.refs++
	}
	h.reg.mu.Unlock()
	return &Handle{reg: h.reg, token: h.token}
}

// Release drops this handle's reference. Repeated calls on the same
// handle are ignored. When the last reference is dropped the token is
// unregistered and the stored file deleted.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.reg.mu.Lock()
	if h.released {
		h.reg.mu.Unlock()
		return
	}
	h.released = true
	e, ok := h.reg.entries[h.token]
	if !ok {
		h.reg.mu.Unlock()
		return
	}
	e.refs--
	var remove string
	if e.refs <= 0 {
		delete(h.reg.entries, h.token)
		remove = e.storedPath
	}
	h.reg.mu.Unlock()

	if remove != "" {
		removeStored(remove)
	}
}

// Open resolves a token to its stored file for serving.
func (r *Registry) Open(token string) (storedPath, mediaType string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[token]
	if !ok {
		return "", "", false
	}
	return e.storedPath, e.mediaType, true
}

// ReleaseSession force-drops every resource owned by the session,
// regardless of outstanding references. Outstanding handles become inert.
func (r *Registry) ReleaseSession(sessionID string) {
	var remove []string
	r.mu.Lock()
	for token, e := range r.entries {
		if e.sessionID == sessionID {
			delete(r.entries, token)
			remove = append(remove, e.storedPath)
		}
	}
	r.mu.Unlock()

	for _, p := range remove {
		removeStored(p)
	}
}

// Active reports the number of live preview resources.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func removeStored(storedPath string) {
	if err := os.Remove(storedPath); err != nil && !os.IsNotExist(err) {
		logger.WithFields(logrus.Fields{
			"path":  storedPath,
			"error": err.Error(),
		}).Warn("remove preview file failed")
	}
}
