// Package store defines the abstract ObjectStore/SetStore persistence
// contract. Concrete implementations live in the sqlstore, mongostore
// (ObjectStore) and redisqueue (SetStore) sub-packages.
package store

import "context"

// EntityKind names one of the per-{platform, record-type} collections.
type EntityKind string

const (
	KindCFMod         EntityKind = "cf_mod"
	KindCFFile        EntityKind = "cf_file"
	KindCFFingerprint EntityKind = "cf_fingerprint"
	KindCFCategory    EntityKind = "cf_category"

	KindMRProject     EntityKind = "mr_project"
	KindMRVersion     EntityKind = "mr_version"
	KindMRCategory    EntityKind = "mr_category"
	KindMRLoader      EntityKind = "mr_loader"
	KindMRGameVersion EntityKind = "mr_game_version"
)

// Entity is one persisted record: an opaque id, an optional owning
// project id (for versions/files/fingerprints), an optional owning
// record id one level narrower than ProjectID (OwnerID, e.g. a CF
// Fingerprint's owning file id, distinct from both its own ID, which is
// the fingerprint hash, and its ProjectID, which is the mod id), and the
// full payload as already-marshaled JSON. The syncers and BatchWriter
// only ever move Entity values; nothing downstream of the adapter
// boundary touches raw encoding/json.
type Entity struct {
	ID        string
	ProjectID string
	OwnerID   string
	Payload   []byte
}

// Filter narrows FindPage/FindByIDs/DeleteMany/Count to a subset of a
// kind's records. A zero Filter matches everything.
type Filter struct {
	ProjectID       string
	IDs             []string
	ExcludeIDs      []string
	ExcludeOwnerIDs []string
}

// ObjectStore is the abstract document store: plain find/upsert/delete
// by key and by filter. Both the sqlstore and mongostore implementations
// satisfy this interface; sqlstore's tests run the storetest conformance
// suite against it.
type ObjectStore interface {
	UpsertMany(ctx context.Context, kind EntityKind, entities []Entity) error
	FindPage(ctx context.Context, kind EntityKind, filter Filter, skip, limit int) ([]Entity, error)
	FindByIDs(ctx context.Context, kind EntityKind, ids []string) ([]Entity, error)
	DeleteMany(ctx context.Context, kind EntityKind, filter Filter) (int64, error)
	Count(ctx context.Context, kind EntityKind, filter Filter) (int64, error)
	Ping(ctx context.Context) error
}

// SetStore is the abstract miss-queue store: set-membership semantics
// over an external queue written by a sibling read service.
type SetStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Members(ctx context.Context, name string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// MissQueue names the platform-scoped queues the read service writes.
type MissQueue string

const (
	QueueCFModIDs       MissQueue = "cf.modids"
	QueueCFFileIDs      MissQueue = "cf.fileids"
	QueueCFFingerprints MissQueue = "cf.fingerprints"
	QueueMRProjectIDs   MissQueue = "mr.projectids"
	QueueMRVersionIDs   MissQueue = "mr.versionids"
	QueueMRHashesSHA1   MissQueue = "mr.hashes.sha1"
	QueueMRHashesSHA512 MissQueue = "mr.hashes.sha512"
)
