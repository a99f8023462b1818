// Package sysacct is the OS account database collaborator: it reads the
// passwd and group files directly and mutates accounts through the
// shadow-utils tools (groupadd, useradd, userdel).
//
// Accounts and groups with numeric ids below the configured protected floors
// are immune to deletion; attempting it returns ErrProtectedUser, which the
// reconciler treats as fatal for the whole run.
package sysacct

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
	ErrProtectedUser = errors.New("user is protected")
)

// Ops performs account reads and mutations on the local host.
type Ops struct {
	PasswdPath   string
	GroupPath    string
	HomeBase     string
	DefaultShell string

	// Ids below these floors belong to the system, not to us.
	ProtectedUIDStart int
	ProtectedGIDStart int

	run *runner
}

func NewOps(homeBase string, protectedUID, protectedGID int) *Ops {
	return &Ops{
		PasswdPath:        "/etc/passwd",
		GroupPath:         "/etc/group",
		HomeBase:          homeBase,
		DefaultShell:      "/bin/bash",
		ProtectedUIDStart: protectedUID,
		ProtectedGIDStart: protectedGID,
		run:               newRunner(),
	}
}

// ResolveGID returns the gid of a named group, or ErrGroupNotFound.
func (o *Ops) ResolveGID(name string) (int, error) {
	groups, err := LoadGroup(o.GroupPath)
	if err != nil {
		return 0, err
	}
	for _, g := range groups {
		if g.Name == name {
			return g.GID, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
}

// CreateGroup adds a new system group.
func (o *Ops) CreateGroup(name string) error {
	return o.run.run("groupadd", name)
}

// ListGroupMembers returns every username belonging to the gid, whether the
// membership is primary (passwd gid field) or supplementary (group file
// member list).
func (o *Ops) ListGroupMembers(gid int) (map[string]struct{}, error) {
	members := make(map[string]struct{})

	passwd, err := LoadPasswd(o.PasswdPath)
	if err != nil {
		return nil, err
	}
	for _, e := range passwd {
		if e.GID == gid {
			members[e.Name] = struct{}{}
		}
	}

	groups, err := LoadGroup(o.GroupPath)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.GID != gid {
			continue
		}
		for _, m := range g.Members {
			members[m] = struct{}{}
		}
	}
	return members, nil
}

// LookupUser returns the passwd entry for a username, or ErrUserNotFound.
func (o *Ops) LookupUser(name string) (PasswdEntry, error) {
	passwd, err := LoadPasswd(o.PasswdPath)
	if err != nil {
		return PasswdEntry{}, err
	}
	for _, e := range passwd {
		if e.Name == name {
			return e, nil
		}
	}
	return PasswdEntry{}, fmt.Errorf("%w: %s", ErrUserNotFound, name)
}

// CreateUser adds an account with the given primary group and supplementary
// groups, creating the home directory. Returns ErrUserExists when an account
// of that name is already present, whatever its primary group.
func (o *Ops) CreateUser(name, primaryGroup string, otherGroups []string) error {
	if _, err := o.LookupUser(name); err == nil {
		return fmt.Errorf("%w: %s", ErrUserExists, name)
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	args := []string{
		"-m",
		"-d", filepath.Join(o.HomeBase, name),
		"-s", o.DefaultShell,
		"-g", primaryGroup,
	}
	if len(otherGroups) > 0 {
		args = append(args, "-G", strings.Join(otherGroups, ","))
	}
	args = append(args, name)
	return o.run.run("useradd", args...)
}

// DeleteUser removes an account and its home directory. Accounts under the
// protected uid floor are never touched: the attempt returns
// ErrProtectedUser without running anything.
func (o *Ops) DeleteUser(name string) error {
	entry, err := o.LookupUser(name)
	if err != nil {
		return err
	}
	if entry.UID < o.ProtectedUIDStart {
		return fmt.Errorf("%w: %s has uid %d, floor is %d", ErrProtectedUser, name, entry.UID, o.ProtectedUIDStart)
	}
	return o.run.run("userdel", "-r", name)
}
