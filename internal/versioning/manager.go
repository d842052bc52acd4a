// Package versioning owns the committed history of every continent and run
// type: it reads the latest version, and commits new versions with a
// create-only blob write followed by a compare-and-swap of the latest pointer.
//
// The pointer, not the presence of a blob, decides what is committed. A
// version blob above the pointer is either a commit in flight or a leftover of
// a writer that failed between the two writes; such blobs are reported by
// Dangling and replaced by the next writer once they are older than
// Config.DanglingAfter.
package versioning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/specialistvlad/sosappend/internal/blobstore"
	"github.com/specialistvlad/sosappend/internal/ctxlog"
	"github.com/specialistvlad/sosappend/internal/module"
	"github.com/specialistvlad/sosappend/internal/sos"
	"github.com/specialistvlad/sosappend/internal/sosid"
)

var (
	// ErrVersionConflict means another writer committed first. The caller must
	// re-read the latest version and merge again.
	ErrVersionConflict = errors.New("version conflict")

	// ErrCorrupt is returned when a committed blob does not match its pointer.
	ErrCorrupt = errors.New("committed version is corrupt")

	// ErrNoVersion is returned by Get for a version that was never committed.
	ErrNoVersion = errors.New("version not committed")
)

// DefaultDanglingAfter is the age past which an uncommitted version blob is
// treated as abandoned.
const DefaultDanglingAfter = 10 * time.Minute

// Config configures a Manager.
type Config struct {
	Layout Layout
	// Writer identifies this process in pointers and containers.
	Writer        string
	DanglingAfter time.Duration
	Retry         RetryPolicy
	// Attributes are set on a continent's empty version 0.
	Attributes map[string]string
	// Now defaults to time.Now.
	Now func() time.Time
	// OnRetry is called with the operation name before each store retry.
	OnRetry func(op string)
}

// Manager reads and commits versions. It is safe for concurrent use; writers
// to the same continent and run type are serialized by the pointer
// compare-and-swap, not by the Manager.
type Manager struct {
	store blobstore.Store
	index sosid.Builder
	codec sos.Codec
	cfg   Config
}

// New returns a Manager writing to store. index supplies the identifier index
// of continents without a committed version.
func New(store blobstore.Store, index sosid.Builder, cfg Config) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DanglingAfter <= 0 {
		cfg.DanglingAfter = DefaultDanglingAfter
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy
	}
	return &Manager{
		store: store,
		index: index,
		codec: sos.Codec{Writer: cfg.Writer, Now: cfg.Now},
		cfg:   cfg,
	}
}

// Layout returns the key layout in use.
func (m *Manager) Layout() Layout {
	return m.cfg.Layout
}

// head is the pointer and the token it was read with. A nil pointer means
// nothing was committed yet.
type head struct {
	pointer *Pointer
	token   string
}

func (h head) version() uint64 {
	if h.pointer == nil {
		return 0
	}
	return h.pointer.Version
}

func (m *Manager) readHead(ctx context.Context, continent string, runType module.RunType) (head, error) {
	key := m.cfg.Layout.PointerKey(continent, runType)
	var obj blobstore.Object
	err := m.retry(ctx, "get_pointer", func() error {
		var err error
		obj, err = m.store.Get(ctx, key)
		return err
	})
	if errors.Is(err, blobstore.ErrNotExist) {
		return head{}, nil
	}
	if err != nil {
		return head{}, fmt.Errorf("read pointer %s: %w", key, err)
	}
	p, err := decodePointer(key, obj.Data)
	if err != nil {
		return head{}, err
	}
	return head{pointer: p, token: obj.Token}, nil
}

func (m *Manager) getBlob(ctx context.Context, key string) ([]byte, error) {
	var obj blobstore.Object
	err := m.retry(ctx, "get_version", func() error {
		var err error
		obj, err = m.store.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}

// LatestPointer returns the current pointer, or nil when nothing was committed.
func (m *Manager) LatestPointer(ctx context.Context, continent string, runType module.RunType) (*Pointer, error) {
	h, err := m.readHead(ctx, continent, runType)
	if err != nil {
		return nil, err
	}
	return h.pointer, nil
}

// Latest returns the latest committed aggregate, or the empty version 0 when
// nothing was committed yet.
func (m *Manager) Latest(ctx context.Context, continent string, runType module.RunType) (*sos.Aggregate, error) {
	logger := ctxlog.FromContext(ctx).With("continent", continent, "run_type", runType)
	h, err := m.readHead(ctx, continent, runType)
	if err != nil {
		return nil, err
	}
	if h.pointer == nil {
		index, err := m.index.Build(ctx, continent)
		if err != nil {
			return nil, fmt.Errorf("build index for %s: %w", continent, err)
		}
		logger.Debug("No committed version, starting from version 0.", "identifiers", index.Len())
		return sos.Empty(continent, runType, index, sos.WithAttributes(m.cfg.Attributes)), nil
	}

	data, err := m.getBlob(ctx, h.pointer.Key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotExist) {
			return nil, fmt.Errorf("%w: pointer names missing blob %s", ErrCorrupt, h.pointer.Key)
		}
		return nil, fmt.Errorf("read version %d: %w", h.pointer.Version, err)
	}
	if err := h.pointer.verify(data); err != nil {
		return nil, err
	}
	a, err := m.decode(data, continent, runType, h.pointer.Version)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded latest version.", "version", a.Version, "key", h.pointer.Key)
	return a, nil
}

func (m *Manager) decode(data []byte, continent string, runType module.RunType, version uint64) (*sos.Aggregate, error) {
	a, _, err := m.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: version %d: %v", ErrCorrupt, version, err)
	}
	if a.Version != version || a.Continent != continent || a.RunType != runType {
		return nil, fmt.Errorf("%w: blob holds %s/%s v%d, want %s/%s v%d",
			ErrCorrupt, a.Continent, a.RunType, a.Version, continent, runType, version)
	}
	return a, nil
}

// Get loads a committed version. Version 0 is the empty aggregate.
func (m *Manager) Get(ctx context.Context, continent string, runType module.RunType, version uint64) (*sos.Aggregate, error) {
	h, err := m.readHead(ctx, continent, runType)
	if err != nil {
		return nil, err
	}
	if version > h.version() {
		return nil, fmt.Errorf("%w: %s/%s v%d, latest is v%d", ErrNoVersion, continent, runType, version, h.version())
	}
	if version == h.version() {
		return m.Latest(ctx, continent, runType)
	}
	if version == 0 {
		index, err := m.index.Build(ctx, continent)
		if err != nil {
			return nil, fmt.Errorf("build index for %s: %w", continent, err)
		}
		return sos.Empty(continent, runType, index, sos.WithAttributes(m.cfg.Attributes)), nil
	}
	key := m.cfg.Layout.VersionKey(continent, runType, version)
	data, err := m.getBlob(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s v%d has no blob", ErrCorrupt, continent, runType, version)
		}
		return nil, fmt.Errorf("read version %d: %w", version, err)
	}
	return m.decode(data, continent, runType, version)
}

func (m *Manager) listVersions(ctx context.Context, continent string, runType module.RunType) ([]uint64, error) {
	prefix := m.cfg.Layout.versionsPrefix(continent, runType)
	var keys []string
	err := m.retry(ctx, "list", func() error {
		var err error
		keys, err = m.store.List(ctx, prefix)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list versions of %s/%s: %w", continent, runType, err)
	}
	out := make([]uint64, 0, len(keys))
	for _, k := range keys {
		v, err := m.cfg.Layout.ParseVersionKey(continent, runType, k)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Versions lists the committed version numbers in ascending order.
func (m *Manager) Versions(ctx context.Context, continent string, runType module.RunType) ([]uint64, error) {
	h, err := m.readHead(ctx, continent, runType)
	if err != nil {
		return nil, err
	}
	all, err := m.listVersions(ctx, continent, runType)
	if err != nil {
		return nil, err
	}
	committed := all[:0]
	for _, v := range all {
		if v <= h.version() {
			committed = append(committed, v)
		}
	}
	return committed, nil
}

// Dangling lists the keys of version blobs above the pointer.
func (m *Manager) Dangling(ctx context.Context, continent string, runType module.RunType) ([]string, error) {
	h, err := m.readHead(ctx, continent, runType)
	if err != nil {
		return nil, err
	}
	all, err := m.listVersions(ctx, continent, runType)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, v := range all {
		if v > h.version() {
			keys = append(keys, m.cfg.Layout.VersionKey(continent, runType, v))
		}
	}
	return keys, nil
}

// Commit makes next the latest version of its continent and run type. next
// must be exactly one version above the current pointer; otherwise, or when
// another writer advances the pointer first, Commit fails with
// ErrVersionConflict and the store is left as the winner wrote it.
func (m *Manager) Commit(ctx context.Context, next *sos.Aggregate, modules []module.Name) (uint64, error) {
	continent, runType := next.Continent, next.RunType
	logger := ctxlog.FromContext(ctx).With("continent", continent, "run_type", runType, "version", next.Version)

	h, err := m.readHead(ctx, continent, runType)
	if err != nil {
		return 0, err
	}
	if next.Version != h.version()+1 {
		return 0, fmt.Errorf("%w: %s/%s is at v%d, cannot commit v%d",
			ErrVersionConflict, continent, runType, h.version(), next.Version)
	}

	data, err := m.codec.Encode(next)
	if err != nil {
		return 0, err
	}
	key := m.cfg.Layout.VersionKey(continent, runType, next.Version)
	if err := m.writeVersion(ctx, continent, runType, next.Version, key, data); err != nil {
		return 0, err
	}
	logger.Debug("Version blob written.", "key", key, "bytes", len(data))

	p := Pointer{
		Version:     next.Version,
		Key:         key,
		Checksum:    checksum(data),
		Size:        len(data),
		CommittedAt: m.cfg.Now().UTC(),
		Writer:      m.cfg.Writer,
		Modules:     make([]string, len(modules)),
	}
	for i, mod := range modules {
		p.Modules[i] = string(mod)
	}
	if err := m.swapPointer(ctx, continent, runType, h.token, &p); err != nil {
		return 0, err
	}
	logger.Info("Committed new version.", "key", key, "modules", p.Modules)
	return next.Version, nil
}

// writeVersion performs the create-only write of a version blob, resolving
// an existing blob at the same key.
func (m *Manager) writeVersion(ctx context.Context, continent string, runType module.RunType, version uint64, key string, data []byte) error {
	err := m.retry(ctx, "put_version", func() error {
		_, err := m.store.PutIfAbsent(ctx, key, data)
		return err
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, blobstore.ErrPrecondition) {
		return fmt.Errorf("write %s: %w", key, err)
	}

	var existing blobstore.Object
	err = m.retry(ctx, "get_version", func() error {
		var err error
		existing, err = m.store.Get(ctx, key)
		return err
	})
	if errors.Is(err, blobstore.ErrNotExist) {
		return fmt.Errorf("%w: %s vanished during commit", ErrVersionConflict, key)
	}
	if err != nil {
		return fmt.Errorf("inspect %s: %w", key, err)
	}
	if bytes.Equal(existing.Data, data) {
		// A retried write that had already landed.
		return nil
	}

	logger := ctxlog.FromContext(ctx).With("key", key)
	if h, herr := m.codec.DecodeHeader(existing.Data); herr == nil {
		age := m.cfg.Now().Sub(h.WrittenAt)
		if age < m.cfg.DanglingAfter {
			return fmt.Errorf("%w: %s was written %s ago by %q and may still be committing",
				ErrVersionConflict, key, age.Round(time.Second), h.Writer)
		}
		logger.Warn("Replacing abandoned version blob.", "age", age.Round(time.Second), "writer", h.Writer)
	} else {
		logger.Warn("Replacing unreadable version blob.", "error", herr)
	}

	// A stalled writer may have swapped the pointer onto this blob since
	// Commit read it; a committed blob is never replaced.
	h, err := m.readHead(ctx, continent, runType)
	if err != nil {
		return err
	}
	if h.version() >= version {
		return fmt.Errorf("%w: %s was committed while resolving it", ErrVersionConflict, key)
	}

	err = m.retry(ctx, "replace_version", func() error {
		_, err := m.store.Swap(ctx, key, existing.Token, data)
		return err
	})
	if errors.Is(err, blobstore.ErrPrecondition) {
		return fmt.Errorf("%w: %s changed while replacing it", ErrVersionConflict, key)
	}
	if err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

// swapPointer advances the pointer from the state read as token.
func (m *Manager) swapPointer(ctx context.Context, continent string, runType module.RunType, token string, p *Pointer) error {
	key := m.cfg.Layout.PointerKey(continent, runType)
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pointer: %w", err)
	}
	err = m.retry(ctx, "swap_pointer", func() error {
		_, err := m.store.Swap(ctx, key, token, data)
		return err
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, blobstore.ErrPrecondition) {
		return fmt.Errorf("advance pointer %s: %w", key, err)
	}

	// The swap may have landed on an attempt that reported unavailable.
	h, herr := m.readHead(ctx, continent, runType)
	if herr == nil && h.pointer != nil && h.pointer.Key == p.Key && h.pointer.Checksum == p.Checksum {
		return nil
	}
	return fmt.Errorf("%w: pointer %s moved past v%d", ErrVersionConflict, key, p.Version-1)
}
