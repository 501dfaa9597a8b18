package store

import (
	"fmt"
	"maps"
	"reflect"
	"sync"

	"github.com/hashicorp/go-memdb"
	log "github.com/sirupsen/logrus"

	"github.com/squidstack/squidflags/pkg/model"
)

const flagsTable = "flags"

type NotificationType string

const (
	NotificationCreate NotificationType = "write"
	NotificationUpdate NotificationType = "update"
	NotificationDelete NotificationType = "delete"
)

// Notification describes one flag change applied by Update.
type Notification struct {
	Type   NotificationType
	Source string
}

// State holds the remote flag configuration last fetched by a provider.
type State struct {
	mx                sync.RWMutex
	db                *memdb.MemDB
	metadataPerSource map[string]model.Metadata
}

func NewFlags() *State {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			flagsTable: {
				Name: flagsTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					"source": {
						Name:         "source",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "Source"},
					},
				},
			},
		},
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		panic(err)
	}

	return &State{
		db:                db,
		metadataPerSource: map[string]model.Metadata{},
	}
}

func (f *State) Get(key string) (model.Flag, bool) {
	txn := f.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(flagsTable, "id", key)
	if err != nil || raw == nil {
		return model.Flag{}, false
	}
	flag, ok := raw.(model.Flag)
	return flag, ok
}

// GetAll returns a copy of every stored flag keyed by flag key.
func (f *State) GetAll() map[string]model.Flag {
	txn := f.db.Txn(false)
	defer txn.Abort()

	flags := map[string]model.Flag{}
	it, err := txn.Get(flagsTable, "id_prefix", "")
	if err != nil {
		log.Errorf("unable to list flags: %v", err)
		return flags
	}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		flag := obj.(model.Flag)
		flags[flag.Key] = flag
	}
	return flags
}

// Update replaces the flags owned by source with flags, in a single transaction.
// Flags previously owned by source and missing from flags are deleted.
func (f *State) Update(source string, flags map[string]model.Flag, metadata model.Metadata) (map[string]Notification, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	notifications := map[string]Notification{}
	txn := f.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(flagsTable, "source", source)
	if err != nil {
		return nil, fmt.Errorf("unable to list flags for source %s: %w", source, err)
	}
	var stale []model.Flag
	for obj := it.Next(); obj != nil; obj = it.Next() {
		stored := obj.(model.Flag)
		if _, ok := flags[stored.Key]; !ok {
			stale = append(stale, stored)
		}
	}
	for _, s := range stale {
		if err := txn.Delete(flagsTable, s); err != nil {
			return nil, fmt.Errorf("unable to delete flag %s: %w", s.Key, err)
		}
		notifications[s.Key] = Notification{Type: NotificationDelete, Source: source}
		log.Debugf("flag %s has been deleted from source %s", s.Key, source)
	}

	for k, newFlag := range flags {
		newFlag.Key = k
		newFlag.Source = source

		raw, err := txn.First(flagsTable, "id", k)
		if err != nil {
			return nil, fmt.Errorf("unable to read flag %s: %w", k, err)
		}
		nType := NotificationCreate
		if raw != nil {
			if reflect.DeepEqual(raw.(model.Flag), newFlag) {
				continue
			}
			nType = NotificationUpdate
		}
		if err := txn.Insert(flagsTable, newFlag); err != nil {
			return nil, fmt.Errorf("unable to store flag %s: %w", k, err)
		}
		notifications[k] = Notification{Type: nType, Source: source}
	}

	txn.Commit()
	f.metadataPerSource[source] = maps.Clone(metadata)
	return notifications, nil
}

func (f *State) GetMetadataForSource(source string) model.Metadata {
	f.mx.RLock()
	defer f.mx.RUnlock()

	perSource, ok := f.metadataPerSource[source]
	if ok && perSource != nil {
		return maps.Clone(perSource)
	}
	return model.Metadata{}
}
