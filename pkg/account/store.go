// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package account

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

const (
	accountBucket = "accounts"

	fileMode    = 0600
	lockTimeout = time.Second
)

// Store persists account records in a bolt database.
type Store struct {
	log *zap.Logger
	db  *bolt.DB

	Path string
}

// OpenStore opens (creating if necessary) the account database at path.
func OpenStore(log *zap.Logger, path string) (*Store, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(accountBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, Error.Wrap(err)
	}
	return &Store{
		log:  log,
		db:   db,
		Path: path,
	}, nil
}

// accountKey encodes an account id as a big-endian bolt key.
func accountKey(id int16) []byte {
	var key [2]byte
	binary.BigEndian.PutUint16(key[:], uint16(id))
	return key[:]
}

// Update writes the given accounts, replacing existing records with the
// same id.
func (store *Store) Update(accounts ...*Account) error {
	return Error.Wrap(store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(accountBucket))
		for _, account := range accounts {
			value, err := json.Marshal(account)
			if err != nil {
				return err
			}
			if err := bucket.Put(accountKey(account.ID), value); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Load reads every account record from the database.
func (store *Store) Load() ([]*Account, error) {
	var accounts []*Account
	err := store.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(accountBucket))
		return bucket.ForEach(func(key, value []byte) error {
			account := &Account{}
			if err := json.Unmarshal(value, account); err != nil {
				return err
			}
			accounts = append(accounts, account)
			return nil
		})
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return accounts, nil
}

// Close closes the underlying database.
func (store *Store) Close() error {
	return Error.Wrap(store.db.Close())
}
