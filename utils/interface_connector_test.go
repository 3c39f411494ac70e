package utils

import (
	"testing"
)

// stripInterfaces builds three partitions of a strip: 0 and 1 share objects
// 10 and 11, 1 and 2 share 20 and 21, and object 30 sits on all three.
func stripInterfaces() [][]SharedObject {
	return [][]SharedObject{
		{{GID: 10, Procs: []int{1}}, {GID: 30, Procs: []int{1, 2}}, {GID: 11, Procs: []int{1}}},
		{{GID: 20, Procs: []int{2}}, {GID: 11, Procs: []int{0}}, {GID: 30, Procs: []int{0, 2}},
			{GID: 10, Procs: []int{0}}, {GID: 21, Procs: []int{2}}},
		{{GID: 30, Procs: []int{0, 1}}, {GID: 21, Procs: []int{1}}, {GID: 20, Procs: []int{1}}},
	}
}

// simulateExchange moves the value of every picked object to its place on
// the receiving partition and returns the received values per partition
func simulateExchange(ic *InterfaceConnector, values [][]int64) [][]int64 {
	got := make([][]int64, ic.NumPartitions)
	for p := range got {
		got[p] = make([]int64, len(ic.Objects[p]))
	}
	for p := 0; p < ic.NumPartitions; p++ {
		for q := 0; q < ic.NumPartitions; q++ {
			pick := ic.GetPickIndices(p, q)
			place := ic.GetPlaceIndices(q, p)
			for k := range pick {
				got[q][place[k]] += values[p][pick[k]]
			}
		}
	}
	return got
}

func TestInterfaceConnector_Strip(t *testing.T) {
	ic, err := NewInterfaceConnector(stripInterfaces())
	if err != nil {
		t.Fatalf("NewInterfaceConnector: %v", err)
	}
	if err := ic.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ic.Dangling != 0 {
		t.Errorf("Expected no dangling entries, got %d", ic.Dangling)
	}

	want := map[[2]int]int{{0, 1}: 3, {1, 0}: 3, {1, 2}: 3, {2, 1}: 3, {0, 2}: 1, {2, 0}: 1}
	for p := 0; p < 3; p++ {
		for q := 0; q < 3; q++ {
			if n := len(ic.GetPickIndices(p, q)); n != want[[2]int{p, q}] {
				t.Errorf("pick[%d][%d]: expected %d indices, got %d", p, q, want[[2]int{p, q}], n)
			}
		}
	}

	// every partition sends the id of the object: each copy must receive its
	// own id once from every other holder
	values := make([][]int64, 3)
	for p, objs := range ic.Objects {
		for _, o := range objs {
			values[p] = append(values[p], o.GID)
		}
	}
	got := simulateExchange(ic, values)
	for p, objs := range ic.Objects {
		for i, o := range objs {
			if got[p][i] != o.GID*int64(len(o.Procs)) {
				t.Errorf("partition %d object %d: received %d, expected %d",
					p, o.GID, got[p][i], o.GID*int64(len(o.Procs)))
			}
		}
	}
	t.Logf("pick 0→1 %v, place 1←0 %v", ic.GetPickIndices(0, 1), ic.GetPlaceIndices(1, 0))
}

func TestInterfaceConnector_Dangling(t *testing.T) {
	objs := stripInterfaces()
	// partition 2 forgot it shares object 30 with partition 0
	objs[2][0].Procs = []int{1}
	ic, err := NewInterfaceConnector(objs)
	if err != nil {
		t.Fatalf("NewInterfaceConnector: %v", err)
	}
	if err := ic.Verify(); err == nil {
		t.Errorf("Expected an asymmetric interface to fail verification")
	}

	// partition 0 names partition 2 for an object 2 does not hold
	objs = stripInterfaces()
	objs[0][0].Procs = []int{1, 2}
	ic, err = NewInterfaceConnector(objs)
	if err != nil {
		t.Fatalf("NewInterfaceConnector: %v", err)
	}
	if ic.Dangling != 1 {
		t.Errorf("Expected 1 dangling entry, got %d", ic.Dangling)
	}
	if err := ic.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestInterfaceConnector_InvalidInput(t *testing.T) {
	if _, err := NewInterfaceConnector(nil); err == nil {
		t.Errorf("Expected an error for no partitions")
	}
	objs := stripInterfaces()
	objs[1][0].Procs = []int{1}
	if _, err := NewInterfaceConnector(objs); err == nil {
		t.Errorf("Expected an error for a partition naming itself")
	}
	objs = stripInterfaces()
	objs[0] = append(objs[0], SharedObject{GID: 10, Procs: []int{1}})
	if _, err := NewInterfaceConnector(objs); err == nil {
		t.Errorf("Expected an error for a duplicated object")
	}
}
