package conflict

import (
	"sort"

	"github.com/orgdesk/realtime-go/pkg/record"
)

// Divergence is one compared field whose values differ.
type Divergence struct {
	Field       string
	LocalValue  any
	RemoteValue any
}

// Report is the result of one resolution. It is not persisted.
type Report struct {
	// Resolved is the merged record.
	Resolved record.Record

	// Divergent lists differing fields in the order they were compared.
	Divergent []Divergence

	// LocalFields lists the divergent fields whose local value was kept.
	LocalFields []string
}

// HasConflicts reports whether any compared field diverged.
func (r Report) HasConflicts() bool {
	return len(r.Divergent) > 0
}

// Resolve merges local and remote over fields. It has no side effects and
// does not modify its inputs.
func Resolve(local, remote record.Record, fields []string) Report {
	rep := Report{Resolved: remote.Clone()}
	if rep.Resolved == nil {
		rep.Resolved = record.Record{}
	}

	localTS, _ := local.UpdatedAt()
	remoteTS, _ := remote.UpdatedAt()
	localNewer := localTS.After(remoteTS)

	for _, field := range fields {
		lv, lok := local[field]
		rv, rok := remote[field]
		if lok == rok && record.Equal(lv, rv) {
			continue
		}

		rep.Divergent = append(rep.Divergent, Divergence{
			Field:       field,
			LocalValue:  lv,
			RemoteValue: rv,
		})

		if !localNewer {
			continue
		}
		rep.LocalFields = append(rep.LocalFields, field)
		if lok {
			rep.Resolved[field] = lv
		} else {
			delete(rep.Resolved, field)
		}
	}

	return rep
}

// Fields returns the sorted union of the keys of local and remote, without
// updated_at.
func Fields(local, remote record.Record) []string {
	seen := make(map[string]struct{}, len(local)+len(remote))
	for k := range local {
		seen[k] = struct{}{}
	}
	for k := range remote {
		seen[k] = struct{}{}
	}
	delete(seen, record.FieldUpdatedAt)

	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
