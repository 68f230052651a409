// Copyright (C) 2019 Ambry Labs, Inc.
// See LICENSE for copying information.

package frontend

import (
	"ambry.io/ambry/pkg/account"
	"ambry.io/ambry/pkg/blob"
	"ambry.io/ambry/pkg/rest"
)

// hasInternalTargets reports whether a request arrived with the
// internal target keys already populated. Clients may not set these.
func hasInternalTargets(args map[string]interface{}) bool {
	_, hasAccount := args[rest.TargetAccountKey]
	_, hasContainer := args[rest.TargetContainerKey]
	return hasAccount || hasContainer
}

// injectTargets records the resolved account and container on the
// request for the downstream stages.
func injectTargets(req rest.Request, acct *account.Account, container *account.Container) {
	args := req.Args()
	args[rest.TargetAccountKey] = acct
	args[rest.TargetContainerKey] = container
}

// targetsOf returns the previously injected account and container.
func targetsOf(req rest.Request) (*account.Account, *account.Container, error) {
	args := req.Args()
	acct, _ := args[rest.TargetAccountKey].(*account.Account)
	container, _ := args[rest.TargetContainerKey].(*account.Container)
	if acct == nil || container == nil {
		return nil, nil, rest.NewError(rest.InternalError, "account and container were not resolved")
	}
	return acct, container, nil
}

// injectTargetsForPost resolves the upload target from the
// x-ambry-target-account and x-ambry-target-container headers. Uploads
// without the account header fall back to service-id keyed resolution.
func (s *Service) injectTargetsForPost(req rest.Request) error {
	args := req.Args()
	accountName, err := rest.GetHeader(args, rest.TargetAccountHeader, false)
	if err != nil {
		return err
	}
	containerName, err := rest.GetHeader(args, rest.TargetContainerHeader, false)
	if err != nil {
		return err
	}
	if accountName == "" {
		return s.injectTargetsFromServiceID(req, containerName)
	}
	if accountName == account.UnknownAccountName {
		return rest.Errorf(rest.InvalidAccount, "%s is a reserved account name", accountName)
	}
	if containerName == "" {
		return rest.Errorf(rest.MissingArgs, "%s is required with %s", rest.TargetContainerHeader, rest.TargetAccountHeader)
	}
	if containerName == account.UnknownContainerName {
		return rest.Errorf(rest.InvalidContainer, "%s is a reserved container name", containerName)
	}
	acct, ok := s.accounts.ByName(accountName)
	if !ok {
		return rest.Errorf(rest.InvalidAccount, "account %s is not known", accountName)
	}
	container, ok := acct.Container(containerName)
	if !ok {
		return rest.Errorf(rest.InvalidContainer, "container %s is not known in account %s", containerName, accountName)
	}
	injectTargets(req, acct, container)
	return nil
}

// injectTargetsFromServiceID is the legacy upload resolution. A service
// id naming a real account lands in that account's legacy container; a
// service id naming nothing lands in the unknown account.
func (s *Service) injectTargetsFromServiceID(req rest.Request, containerName string) error {
	args := req.Args()
	serviceID, err := rest.GetHeader(args, rest.ServiceIDHeader, false)
	if err != nil {
		return err
	}
	if serviceID == account.UnknownAccountName {
		return rest.Errorf(rest.InvalidAccount, "service id %s is a reserved account name", serviceID)
	}
	if containerName != "" {
		if containerName == account.UnknownContainerName {
			return rest.Errorf(rest.InvalidContainer, "%s is a reserved container name", containerName)
		}
		return rest.Errorf(rest.MissingArgs, "%s is required with %s", rest.TargetAccountHeader, rest.TargetContainerHeader)
	}
	private, err := rest.GetBoolHeader(args, rest.PrivateHeader)
	if err != nil {
		return err
	}
	unknown := s.accounts.Unknown()
	if acct, ok := s.accounts.ByName(serviceID); ok {
		legacy, ok := acct.LegacyContainer(private)
		if !ok {
			// account exists but was never backfilled with legacy
			// containers; the blob lands without a resolvable container
			container, _ := unknown.ContainerByID(account.UnknownContainerID)
			injectTargets(req, unknown, container)
			return nil
		}
		injectTargets(req, acct, legacy)
		return nil
	}
	legacy, _ := unknown.LegacyContainer(private)
	injectTargets(req, unknown, legacy)
	return nil
}

// injectTargetsFromBlobID resolves the account and container encoded in
// a blob id for reads and deletes. Ids from the v1 format carry the
// unknown sentinels and resolve to the unknown account.
func (s *Service) injectTargetsFromBlobID(req rest.Request, blobID string) error {
	id, err := blob.Parse(blobID)
	if err != nil {
		return rest.WrapError(rest.BadRequest, err)
	}
	accountID, containerID := id.AccountID(), id.ContainerID()
	unknown := s.accounts.Unknown()
	if accountID == account.UnknownAccountID {
		if containerID != account.UnknownContainerID {
			return rest.Errorf(rest.InvalidContainer, "blob id names container %d without an account", containerID)
		}
		container, _ := unknown.ContainerByID(account.UnknownContainerID)
		injectTargets(req, unknown, container)
		return nil
	}
	acct, ok := s.accounts.ByID(accountID)
	if !ok {
		return rest.Errorf(rest.InvalidAccount, "account %d is not known", accountID)
	}
	if containerID == account.UnknownContainerID {
		return rest.Errorf(rest.InvalidContainer, "blob id names account %d without a container", accountID)
	}
	container, ok := acct.ContainerByID(containerID)
	if !ok {
		return rest.Errorf(rest.InvalidContainer, "container %d is not known in account %d", containerID, accountID)
	}
	injectTargets(req, acct, container)
	return nil
}
