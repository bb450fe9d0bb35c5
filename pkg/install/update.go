package install

import (
	"context"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/catalog"
)

// Group is a set of variants installed in one session.
type Group []*catalog.Variant

// Names returns the package names of g.
func (g Group) Names() []string {
	out := make([]string, len(g))
	for i, v := range g {
		out[i] = v.Name()
	}
	return out
}

type groupSet struct {
	order    []string
	variants map[string]*catalog.Variant
}

func newGroupSet() *groupSet {
	return &groupSet{variants: make(map[string]*catalog.Variant)}
}

// add keeps the highest version of every package.
func (g *groupSet) add(v *catalog.Variant) {
	cur, ok := g.variants[v.Name()]
	if !ok {
		g.order = append(g.order, v.Name())
		g.variants[v.Name()] = v
		return
	}
	if v.VersionCode > cur.VersionCode {
		g.variants[v.Name()] = v
	}
}

func (g *groupSet) overlaps(o *groupSet) bool {
	for name := range o.variants {
		if _, ok := g.variants[name]; ok {
			return true
		}
	}
	return false
}

func (g *groupSet) merge(o *groupSet) {
	for _, name := range o.order {
		g.add(o.variants[name])
	}
}

func (g *groupSet) group() Group {
	out := make(Group, len(g.order))
	for i, name := range g.order {
		out[i] = g.variants[name]
	}
	return out
}

// OutdatedGroups collects the outdated packages that are not installing,
// together with their missing dependencies, merged into groups that share
// no package. The group containing the client itself is returned apart.
func (m *Manager) OutdatedGroups() (groups []Group, self Group) {
	m.Store.Loop().AssertOnLoop()

	var sets []*groupSet
	for _, st := range m.Store.CurrentStates() {
		if !st.IsOutdated() || st.IsInstalling() {
			continue
		}
		v := st.Variant()
		if v.Container.OptOutOfBulkUpdates {
			continue
		}
		deps, err := m.Resolver.MissingDependencies(v, true)
		if err != nil {
			logger.Warn("Skipping update", logger.Fields{"package": st.Name, "error": err.Error()})
			m.report(err)
			continue
		}
		busy := false
		for _, d := range deps {
			if ds := m.Store.State(d.Name()); ds != nil && ds.IsInstalling() {
				busy = true
				break
			}
		}
		if busy {
			continue
		}
		set := newGroupSet()
		for _, d := range deps {
			set.add(d)
		}
		set.add(v)
		sets = append(sets, set)
	}

	for merged := true; merged; {
		merged = false
		for i := 0; i < len(sets); i++ {
			for j := i + 1; j < len(sets); j++ {
				if sets[i].overlaps(sets[j]) {
					sets[i].merge(sets[j])
					sets = append(sets[:j], sets[j+1:]...)
					j--
					merged = true
				}
			}
		}
	}

	selfName := m.Store.Device().SelfPackage
	for _, set := range sets {
		if _, ok := set.variants[selfName]; ok && selfName != "" {
			self = set.group()
			continue
		}
		groups = append(groups, set.group())
	}
	return groups, self
}

// UpdateAll starts one job per outdated group. Background runs only update
// the client itself when it is outdated, and nothing when auto-update is
// off. The self-update of a user-initiated run commits after every other
// job has finished.
func (m *Manager) UpdateAll(ctx context.Context, userInitiated bool) []*Job {
	m.Store.Loop().AssertOnLoop()
	groups, self := m.OutdatedGroups()
	if !userInitiated {
		if !m.Options.AutoUpdate {
			if len(groups) > 0 || self != nil {
				logger.Info("Updates available", logger.Fields{"groups": len(groups), "self": self != nil})
			}
			return nil
		}
		if self != nil {
			groups = nil
		}
	}

	var jobs []*Job
	for _, g := range groups {
		job, err := m.start(ctx, g, userInitiated, true, nil)
		if err != nil {
			logger.Warn("Unable to start update", logger.Fields{"packages": g.Names(), "error": err.Error()})
			m.report(err)
			continue
		}
		jobs = append(jobs, job)
	}
	if self == nil {
		return jobs
	}

	others := append([]*Job(nil), jobs...)
	waitForOthers := func(ctx context.Context) error {
		for _, j := range others {
			select {
			case <-j.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
	job, err := m.start(ctx, self, userInitiated, true, waitForOthers)
	if err != nil {
		logger.Warn("Unable to start self-update", logger.Fields{"packages": self.Names(), "error": err.Error()})
		m.report(err)
		return jobs
	}
	return append(jobs, job)
}
