package layout

import (
	"github.com/google/uuid"

	"schoolcal/internal/model"
)

// groupNamespace seeds the name-based UUIDs used as cluster ids.
var groupNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("schoolcal:layout:cluster"))

// Cluster is a maximal set of transitively overlapping events. Events are
// kept in Compare order.
type Cluster struct {
	GroupID string
	Events  []model.Event
}

// GroupID derives a cluster id from the id of the cluster's first event.
// Equal inputs always yield equal ids.
func GroupID(firstEventID string) string {
	return uuid.NewSHA1(groupNamespace, []byte(firstEventID)).String()
}

// disjointSet is a union-find over event indices with path compression and
// union by size.
type disjointSet struct {
	parent []int
	size   []int
}

func newDisjointSet(n int) *disjointSet {
	d := &disjointSet{parent: make([]int, n), size: make([]int, n)}
	for i := range d.parent {
		d.parent[i] = i
		d.size[i] = 1
	}
	return d
}

func (d *disjointSet) find(x int) int {
	root := x
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for d.parent[x] != root {
		next := d.parent[x]
		d.parent[x] = root
		x = next
	}
	return root
}

func (d *disjointSet) union(a, b int) {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return
	}
	if d.size[ra] < d.size[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	d.size[ra] += d.size[rb]
}

// Clusters partitions events into overlap clusters. Every overlapping pair
// is unioned; since the input is scanned in start order, the inner scan for
// event i stops at the first event starting at or after i's end.
//
// Clusters are returned ordered by their first event, which makes the output
// independent of input order.
func Clusters(events []model.Event) []Cluster {
	sorted := Sort(events)
	n := len(sorted)
	if n == 0 {
		return nil
	}

	ds := newDisjointSet(n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !sorted[j].Start.Before(sorted[i].End) {
				break
			}
			if sorted[i].Overlaps(sorted[j]) {
				ds.union(i, j)
			}
		}
	}

	index := make(map[int]int)
	var out []Cluster
	for i, ev := range sorted {
		root := ds.find(i)
		ci, ok := index[root]
		if !ok {
			ci = len(out)
			index[root] = ci
			out = append(out, Cluster{GroupID: GroupID(ev.ID)})
		}
		out[ci].Events = append(out[ci].Events, ev)
	}
	return out
}
