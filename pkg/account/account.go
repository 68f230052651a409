// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

// Package account implements the account and container directory the
// frontend resolves POST targets and blob ownership against.
package account

import (
	"github.com/zeebo/errs"
)

// Error is the errs class of account directory errors.
var Error = errs.Class("account error")

// Status gates whether an account or container accepts traffic.
type Status string

// Account and container statuses.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Distinguished directory records. The unknown pseudo-account owns blobs
// uploaded before accounts existed (and v1 blob ids, which cannot name
// one). Ids 0 and 1 are the synthetic legacy containers an account may
// have populated.
const (
	UnknownAccountID   = int16(-1)
	UnknownAccountName = "ambry-unknown-account"

	UnknownContainerID   = int16(-1)
	UnknownContainerName = "ambry-unknown-container"

	DefaultPublicContainerID   = int16(0)
	DefaultPublicContainerName = "default-public-container"

	DefaultPrivateContainerID   = int16(1)
	DefaultPrivateContainerName = "default-private-container"
)

// Container is one namespace within an account.
type Container struct {
	ID              int16  `json:"containerId"`
	Name            string `json:"containerName"`
	Status          Status `json:"status"`
	Private         bool   `json:"private"`
	ParentAccountID int16  `json:"parentAccountId"`
}

// Account is one directory record with its containers.
type Account struct {
	ID         int16        `json:"accountId"`
	Name       string       `json:"accountName"`
	Status     Status       `json:"status"`
	Containers []*Container `json:"containers"`
}

// Container looks a container up by name.
func (a *Account) Container(name string) (*Container, bool) {
	for _, container := range a.Containers {
		if container.Name == name {
			return container, true
		}
	}
	return nil, false
}

// ContainerByID looks a container up by id.
func (a *Account) ContainerByID(id int16) (*Container, bool) {
	for _, container := range a.Containers {
		if container.ID == id {
			return container, true
		}
	}
	return nil, false
}

// LegacyContainer returns the account's default-public or
// default-private container, when populated.
func (a *Account) LegacyContainer(private bool) (*Container, bool) {
	if private {
		return a.ContainerByID(DefaultPrivateContainerID)
	}
	return a.ContainerByID(DefaultPublicContainerID)
}

// Directory is the read view of the account service. Implementations
// must be safe for concurrent read; updates happen out of band.
type Directory interface {
	ByName(name string) (*Account, bool)
	ByID(id int16) (*Account, bool)
	All() []*Account
	// Unknown returns the unknown pseudo-account. Always present.
	Unknown() *Account
}

// unknownAccount builds the unknown pseudo-account with its unknown and
// legacy default containers.
func unknownAccount() *Account {
	return &Account{
		ID:     UnknownAccountID,
		Name:   UnknownAccountName,
		Status: StatusActive,
		Containers: []*Container{
			{
				ID:              UnknownContainerID,
				Name:            UnknownContainerName,
				Status:          StatusActive,
				ParentAccountID: UnknownAccountID,
			},
			{
				ID:              DefaultPublicContainerID,
				Name:            DefaultPublicContainerName,
				Status:          StatusActive,
				ParentAccountID: UnknownAccountID,
			},
			{
				ID:              DefaultPrivateContainerID,
				Name:            DefaultPrivateContainerName,
				Status:          StatusActive,
				Private:         true,
				ParentAccountID: UnknownAccountID,
			},
		},
	}
}

// InMemory is an immutable Directory snapshot.
type InMemory struct {
	byID    map[int16]*Account
	byName  map[string]*Account
	all     []*Account
	unknown *Account
}

// NewInMemory builds a directory from the given accounts. The unknown
// pseudo-account is always included.
func NewInMemory(accounts ...*Account) *InMemory {
	dir := &InMemory{
		byID:   make(map[int16]*Account, len(accounts)+1),
		byName: make(map[string]*Account, len(accounts)+1),
	}
	dir.unknown = unknownAccount()
	dir.add(dir.unknown)
	for _, account := range accounts {
		dir.add(account)
	}
	return dir
}

func (dir *InMemory) add(account *Account) {
	dir.byID[account.ID] = account
	dir.byName[account.Name] = account
	dir.all = append(dir.all, account)
}

// ByName implements Directory.
func (dir *InMemory) ByName(name string) (*Account, bool) {
	account, ok := dir.byName[name]
	return account, ok
}

// ByID implements Directory.
func (dir *InMemory) ByID(id int16) (*Account, bool) {
	account, ok := dir.byID[id]
	return account, ok
}

// All implements Directory.
func (dir *InMemory) All() []*Account { return dir.all }

// Unknown implements Directory.
func (dir *InMemory) Unknown() *Account { return dir.unknown }
