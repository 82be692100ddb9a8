// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/datapipe/services/pipeline/catalog"
	"github.com/AleutianAI/datapipe/services/pipeline/validation"
)

const keyPrefix = "catalog/"

// record is the stored form of one collection. Items holds the gob
// encoding of a []T.
type record struct {
	Type    catalog.TypeTag
	Version uint64
	Items   []byte
}

var containerTypesRegistered sync.Once

// registerContainerTypes lets interface values hold the generic containers
// found in row-shaped data. Basic kinds are registered by gob itself.
func registerContainerTypes() {
	containerTypesRegistered.Do(func() {
		gob.Register([]any(nil))
		gob.Register(map[string]any(nil))
	})
}

func encode(v any) ([]byte, error) {
	registerContainerTypes()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	registerContainerTypes()
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

// Entry is a catalog.Entry whose collection lives in BadgerDB. Items are
// gob encoded, so dynamic values keep their Go types: an int saved inside a
// map[string]any loads as an int. Named types stored behind interface values
// must be passed to gob.Register, and struct elements need exported fields.
//
// A key that was never saved loads as an empty collection.
type Entry[T any] struct {
	db  *DB
	key string
}

// NewEntry creates an entry for key backed by db.
func NewEntry[T any](db *DB, key string) *Entry[T] {
	return &Entry[T]{db: db, key: key}
}

// Key returns the catalog key.
func (e *Entry[T]) Key() string { return e.key }

// ElementType returns the TypeTag of T.
func (e *Entry[T]) ElementType() catalog.TypeTag { return catalog.TypeOf[T]() }

// Load returns the stored collection as a []T.
func (e *Entry[T]) Load(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, catalog.IOError(e.key, "load", err)
	}
	rec, err := e.read()
	if err != nil {
		return nil, catalog.IOError(e.key, "load", err)
	}
	if rec == nil {
		return []T{}, nil
	}
	if want := e.ElementType(); rec.Type != want {
		return nil, catalog.IOError(e.key, "load",
			validation.KeyError(validation.TypeMismatch, e.key, "stored []%s, entry expects []%s", rec.Type, want))
	}
	var items []T
	if err := decode(rec.Items, &items); err != nil {
		return nil, catalog.IOError(e.key, "decode", err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Save replaces the stored collection in one transaction. data must be a []T.
func (e *Entry[T]) Save(ctx context.Context, data any) error {
	if err := ctx.Err(); err != nil {
		return catalog.IOError(e.key, "save", err)
	}
	items, ok := data.([]T)
	if !ok {
		return validation.KeyError(validation.TypeMismatch, e.key,
			"cannot save %T into entry of []%s", data, e.ElementType())
	}
	if items == nil {
		items = []T{}
	}
	raw, err := encode(items)
	if err != nil {
		return catalog.IOError(e.key, "encode", err)
	}

	err = e.db.db.Update(func(txn *badger.Txn) error {
		version, err := versionOf(txn, e.key)
		if err != nil {
			return err
		}
		value, err := encode(record{Type: e.ElementType(), Version: version + 1, Items: raw})
		if err != nil {
			return err
		}
		return txn.Set(storageKey(e.key), value)
	})
	if err != nil {
		return catalog.IOError(e.key, "save", err)
	}
	return nil
}

// Version returns how many saves the stored collection has seen.
func (e *Entry[T]) Version() (uint64, error) {
	rec, err := e.read()
	if err != nil || rec == nil {
		return 0, err
	}
	return rec.Version, nil
}

func (e *Entry[T]) read() (*record, error) {
	var rec *record
	err := e.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(e.key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &record{}
			return decode(val, rec)
		})
	})
	return rec, err
}

func versionOf(txn *badger.Txn, key string) (uint64, error) {
	item, err := txn.Get(storageKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var rec record
	if err := item.Value(func(val []byte) error { return decode(val, &rec) }); err != nil {
		return 0, fmt.Errorf("decode stored record: %w", err)
	}
	return rec.Version, nil
}

func storageKey(key string) []byte {
	return []byte(keyPrefix + key)
}

// StoredKeys returns every catalog key with a saved collection, sorted.
func (d *DB) StoredKeys() ([]string, error) {
	var keys []string
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list stored keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the stored collection for key, if any.
func (d *DB) Delete(key string) error {
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storageKey(key))
	})
}
