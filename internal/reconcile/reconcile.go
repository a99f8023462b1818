// Package reconcile computes and applies the account mutations that bring
// one managed Linux group in line with its desired membership.
//
// The engine is deliberately conservative: protected accounts are never
// deleted (targeting one aborts the whole run), every decision is logged
// before it is applied, and an identity claimed by an earlier group in the
// same run is never created twice.
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/automata-ops/glautomata/internal/config"
	"github.com/automata-ops/glautomata/internal/identity"
	"github.com/automata-ops/glautomata/internal/logger"
	"github.com/automata-ops/glautomata/internal/sysacct"
)

// SystemOps is the OS account capability contract the engine mutates
// through. sysacct implements it against the live host; tests fake it.
type SystemOps interface {
	ResolveGID(name string) (int, error)
	CreateGroup(name string) error
	ListGroupMembers(gid int) (map[string]struct{}, error)
	CreateUser(name, primaryGroup string, otherGroups []string) error
	DeleteUser(name string) error
}

// RunState accumulates the sanitized usernames already provisioned during
// this run. It is owned by the driver loop, mutated only here, and never
// persists across runs. It is what guarantees at-most-once creation when
// several groups reference the same identity.
type RunState struct {
	finished map[string]struct{}
}

func NewRunState() *RunState {
	return &RunState{finished: make(map[string]struct{})}
}

func (s *RunState) done(name string) bool {
	_, ok := s.finished[name]
	return ok
}

func (s *RunState) finish(names map[string]struct{}) {
	for n := range names {
		s.finished[n] = struct{}{}
	}
}

// Plan is the per-group diff between current and desired membership. It is
// computed, logged, applied, and discarded; never persisted.
type Plan struct {
	ToDelete []string
	ToCreate []string
}

// Reconciler applies group membership changes on the host.
type Reconciler struct {
	Sys SystemOps

	// ProtectedGIDStart guards against a configuration pointing a managed
	// group at a system group: reconciling one would mass-delete system
	// accounts, so it is refused outright.
	ProtectedGIDStart int
}

// Reconcile brings the group's Linux membership in line with desired and
// returns the gid for key materialization. The returned error is fatal for
// the whole run when it wraps sysacct.ErrProtectedUser.
func (r *Reconciler) Reconcile(group config.GroupConfig, desired []identity.KeyedIdentity, state *RunState) (int, error) {
	gid, err := r.ensureGroup(group.LinuxGroup)
	if err != nil {
		return 0, err
	}
	if gid < r.ProtectedGIDStart {
		return 0, fmt.Errorf("group %s has gid %d below the protected floor %d; refusing to manage it",
			group.LinuxGroup, gid, r.ProtectedGIDStart)
	}

	current, err := r.Sys.ListGroupMembers(gid)
	if err != nil {
		return 0, err
	}
	desiredUsers := make(map[string]struct{}, len(desired))
	for _, ki := range desired {
		desiredUsers[identity.Sanitize(ki.Username)] = struct{}{}
	}
	plan := buildPlan(current, desiredUsers)

	if err := r.applyDeletions(group, plan.ToDelete); err != nil {
		return 0, err
	}
	if err := r.applyCreations(group, plan.ToCreate, state); err != nil {
		return 0, err
	}

	state.finish(desiredUsers)
	return gid, nil
}

// ensureGroup resolves the gid, creating the group first if it does not
// exist yet. A missing group is self-healing, not an error.
func (r *Reconciler) ensureGroup(name string) (int, error) {
	gid, err := r.Sys.ResolveGID(name)
	if errors.Is(err, sysacct.ErrGroupNotFound) {
		logger.Info("Group not found, creating the '%s' group.", name)
		if err := r.Sys.CreateGroup(name); err != nil {
			return 0, err
		}
		return r.Sys.ResolveGID(name)
	}
	return gid, err
}

func (r *Reconciler) applyDeletions(group config.GroupConfig, toDelete []string) error {
	if len(toDelete) == 0 {
		logger.Info("No users to delete in group %s.", group.LinuxGroup)
		return nil
	}
	logger.Info("Found %d users to delete in group %s: %s",
		len(toDelete), group.LinuxGroup, strings.Join(toDelete, ", "))
	for _, user := range toDelete {
		logger.Info("Deleting user %s.", user)
		if err := r.Sys.DeleteUser(user); err != nil {
			if errors.Is(err, sysacct.ErrProtectedUser) {
				logger.Error("Cannot delete user '%s' as it is a protected system user.", user)
			}
			return err
		}
	}
	return nil
}

func (r *Reconciler) applyCreations(group config.GroupConfig, toCreate []string, state *RunState) error {
	if len(toCreate) == 0 {
		logger.Info("No users to add to group %s.", group.LinuxGroup)
		return nil
	}
	logger.Info("Found %d users to create in group %s: %s",
		len(toCreate), group.LinuxGroup, strings.Join(toCreate, ", "))
	for _, user := range toCreate {
		if state.done(user) {
			logger.Info("Skipping user %s, handled previously in another group.", user)
			continue
		}
		if err := r.createUser(group, user); err != nil {
			return err
		}
	}
	return nil
}

// createUser creates one account, recovering once from a stale same-named
// account outside the managed group by deleting it and retrying. The
// deletion is subject to the same protected-floor abort as any other.
func (r *Reconciler) createUser(group config.GroupConfig, user string) error {
	logger.Info("Creating user %s.", user)
	err := r.Sys.CreateUser(user, group.LinuxGroup, group.OtherGroups)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sysacct.ErrUserExists) {
		return err
	}

	logger.Info("User '%s' already exists, deleting user.", user)
	if err := r.Sys.DeleteUser(user); err != nil {
		if errors.Is(err, sysacct.ErrProtectedUser) {
			logger.Error("Cannot delete user '%s' as it is a protected system user.", user)
		}
		return err
	}
	logger.Info("Recreating user '%s'.", user)
	return r.Sys.CreateUser(user, group.LinuxGroup, group.OtherGroups)
}

func buildPlan(current, desired map[string]struct{}) Plan {
	var plan Plan
	for user := range current {
		if _, ok := desired[user]; !ok {
			plan.ToDelete = append(plan.ToDelete, user)
		}
	}
	for user := range desired {
		if _, ok := current[user]; !ok {
			plan.ToCreate = append(plan.ToCreate, user)
		}
	}
	sort.Strings(plan.ToDelete)
	sort.Strings(plan.ToCreate)
	return plan
}
